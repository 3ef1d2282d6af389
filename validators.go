package account

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

const (
	PasswordMinLength = 8
	PasswordMaxLength = 64

	// DefaultAvatarMaxSize caps avatar uploads at 3 MiB.
	DefaultAvatarMaxSize = 3 * 1024 * 1024
)

var (
	hasLetter = regexp.MustCompile(`\pL`)
	hasDigit  = regexp.MustCompile(`\pN`)

	avatarMimeTypes = map[string]bool{
		"image/png":  true,
		"image/jpeg": true,
	}
)

// passwordRules are the strength rules applied to every new password.
func passwordRules() []validation.Rule {
	return []validation.Rule{
		validation.Length(PasswordMinLength, PasswordMaxLength),
		validation.Match(hasLetter).Error("must contain at least one letter"),
		validation.Match(hasDigit).Error("must contain at least one digit"),
	}
}

// requiredPassword is passwordRules behind Required.
func requiredPassword() []validation.Rule {
	return append([]validation.Rule{validation.Required}, passwordRules()...)
}

// runeLength counts characters, not bytes, so non latin names are
// measured the way users see them.
func runeLength(min, max int) validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		n := utf8.RuneCountInString(s)
		if n < min || n > max {
			return fmt.Errorf("the length must be between %d and %d", min, max)
		}
		return nil
	})
}

// notEqualTo fails when the value equals other.
func notEqualTo(other, message string) validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if s != "" && s == other {
			return errors.New(message)
		}
		return nil
	})
}

// phoneNumber accepts numbers in international format, e.g. +14155552671.
func phoneNumber() validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		num, err := phonenumbers.Parse(s, "")
		if err != nil || !phonenumbers.IsValidNumber(num) {
			return errors.New("must be a valid phone number in international format")
		}
		return nil
	})
}

// avatarImage checks size and sniffed content type of an upload.
func avatarImage(maxSize int) validation.Rule {
	return validation.By(func(value any) error {
		buf, _ := value.([]byte)
		if len(buf) == 0 {
			return nil
		}
		if len(buf) > maxSize {
			return fmt.Errorf("must not exceed %d bytes", maxSize)
		}
		if !avatarMimeTypes[http.DetectContentType(buf)] {
			return errors.New("must be a png or jpeg image")
		}
		return nil
	})
}

// requiredID fails on the nil uuid, which ozzo Required accepts.
func requiredID() validation.Rule {
	return validation.By(func(value any) error {
		if idFromValue(value) == uuid.Nil {
			return errors.New("cannot be blank")
		}
		return nil
	})
}

// emailNotRegistered fails when a live account uses the address.
func emailNotRegistered(ctx context.Context, store Store) validation.Rule {
	return availability(ctx, store, func(s string) AccountQuery {
		return AccountQuery{Email: s}
	}, "email is already registered")
}

// emailAvailableFor fails when an account other than id uses the address.
func emailAvailableFor(ctx context.Context, store Store, id uuid.UUID) validation.Rule {
	return availability(ctx, store, func(s string) AccountQuery {
		return AccountQuery{Email: s, ExcludeID: id}
	}, "email is already registered")
}

func phoneNotRegistered(ctx context.Context, store Store) validation.Rule {
	return availability(ctx, store, func(s string) AccountQuery {
		return AccountQuery{MobilePhone: s}
	}, "mobile phone is already registered")
}

func availability(ctx context.Context, store Store, query func(string) AccountQuery, message string) validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		_, err := store.FindOne(ctx, query(s))
		switch {
		case err == nil:
			return errors.New(message)
		case IsNotFound(err):
			return nil
		default:
			return validation.NewInternalError(err)
		}
	})
}

// passwordOf fails when password does not verify for account id.
func passwordOf(ctx context.Context, store Store, hasher PasswordHasher, id uuid.UUID) validation.Rule {
	return validation.By(func(value any) error {
		password, _ := value.(string)
		if password == "" {
			return nil
		}
		acc, err := store.GetByID(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				return errors.New("wrong password")
			}
			return validation.NewInternalError(err)
		}
		if err := hasher.ComparePasswordAndHash(password, acc.PasswordHash); err != nil {
			if errors.Is(err, ErrMismatchedHashAndPassword) {
				return errors.New("wrong password")
			}
			return validation.NewInternalError(err)
		}
		return nil
	})
}

// existingAccount loads the account into dst, failing when it is missing.
func existingAccount(ctx context.Context, store Store, dst **Account) validation.Rule {
	return validation.By(func(value any) error {
		id := idFromValue(value)
		if id == uuid.Nil {
			return nil
		}
		acc, err := store.GetByID(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				return errors.New("account does not exist")
			}
			return validation.NewInternalError(err)
		}
		*dst = acc
		return nil
	})
}

// phoneAwaitingConfirmation requires the loaded account to have a phone
// that is not confirmed yet. It must follow existingAccount.
func phoneAwaitingConfirmation(acc **Account) validation.Rule {
	return validation.By(func(any) error {
		if *acc == nil {
			return nil
		}
		switch {
		case (*acc).MobilePhone == "":
			return errors.New("account has no mobile phone")
		case (*acc).MobilePhoneConfirmed:
			return errors.New("mobile phone is already confirmed")
		}
		return nil
	})
}

func idFromValue(value any) uuid.UUID {
	switch v := value.(type) {
	case uuid.UUID:
		return v
	case *uuid.UUID:
		if v != nil {
			return *v
		}
	case string:
		if id, err := uuid.Parse(v); err == nil {
			return id
		}
	}
	return uuid.Nil
}
