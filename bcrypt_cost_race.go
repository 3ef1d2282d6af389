//go:build race

package account

import "golang.org/x/crypto/bcrypt"

func passwordHashCost() int {
	// Race builds run hashing far slower.
	return bcrypt.DefaultCost
}
