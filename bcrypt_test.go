package account_test

import (
	"testing"

	account "github.com/goliatone/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{
			name:     "Valid password",
			password: "securePassword123!",
			wantErr:  false,
		},
		{
			name:     "Empty password",
			password: "",
			wantErr:  true,
		},
	}

	hasher := account.NewBcryptHasher(bcrypt.MinCost)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := hasher.HashPassword(tt.password)

			if tt.wantErr {
				assert.ErrorIs(t, err, account.ErrNoEmptyString)
				return
			}

			assert.NoError(t, err)
			assert.NotEmpty(t, hash)
			assert.NoError(t, hasher.ComparePasswordAndHash(tt.password, hash))
		})
	}
}

func TestHashPassword_IsSalted(t *testing.T) {
	hasher := account.NewBcryptHasher(bcrypt.MinCost)

	first, err := hasher.HashPassword("engine1843")
	require.NoError(t, err)
	second, err := hasher.HashPassword("engine1843")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.NoError(t, hasher.ComparePasswordAndHash("engine1843", first))
	assert.NoError(t, hasher.ComparePasswordAndHash("engine1843", second))
}

func TestComparePasswordAndHash(t *testing.T) {
	hasher := account.NewBcryptHasher(bcrypt.MinCost)
	hash, err := hasher.HashPassword("testPassword123!")
	require.NoError(t, err)

	t.Run("Correct password", func(t *testing.T) {
		assert.NoError(t, hasher.ComparePasswordAndHash("testPassword123!", hash))
	})

	t.Run("Incorrect password", func(t *testing.T) {
		err := hasher.ComparePasswordAndHash("wrongPassword", hash)
		assert.ErrorIs(t, err, account.ErrMismatchedHashAndPassword)
	})

	t.Run("Invalid hash", func(t *testing.T) {
		err := hasher.ComparePasswordAndHash("testPassword123!", "not-a-hash")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, account.ErrMismatchedHashAndPassword)
	})
}

func TestNewBcryptHasher_OutOfRangeCostFallsBack(t *testing.T) {
	hasher := account.NewBcryptHasher(bcrypt.MaxCost + 1)
	hash, err := hasher.HashPassword("x1")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cost, bcrypt.DefaultCost)
}
