package account

import (
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCreds    = "INVALID_CREDENTIALS"
	TextCodeAccountNotFound = "ACCOUNT_NOT_FOUND"
	TextCodeNotOwner        = "NOT_ACCOUNT_OWNER"
	TextCodeUnauthenticated = "UNAUTHENTICATED"
	TextCodeValidation      = "VALIDATION_FAILED"
	TextCodeEmptyPassword   = "EMPTY_PASSWORD"
	TextCodeTokenExpired    = "TOKEN_EXPIRED"
	TextCodeTokenMalformed  = "TOKEN_MALFORMED"
	TextCodeOtpCooldown     = "OTP_COOLDOWN"
)

// ErrInvalidCredentials is returned by sign in for any credential failure.
// Unknown email, inactive account and wrong password are indistinguishable.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrMismatchedHashAndPassword is returned by the hasher when the
// password does not verify against the stored hash.
var ErrMismatchedHashAndPassword = goerrors.New("password does not match hash", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountNotFound is returned by the store when no live row matches.
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrNotAccountOwner is returned when a caller targets an account other than their own.
var ErrNotAccountOwner = goerrors.New("operation is only allowed on your own account", goerrors.CategoryAuthz).
	WithTextCode(TextCodeNotOwner).
	WithCode(goerrors.CodeForbidden)

// ErrUnauthenticated is returned when an operation needs an authenticated actor.
var ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrOtpCooldown is returned when a code for the same key is still live.
var ErrOtpCooldown = goerrors.New("a one-time code was already sent, try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeOtpCooldown)

// ValidationError carries per field messages for input that failed
// structural or store backed validation.
type ValidationError struct {
	Fields map[string]string `json:"errors"`
}

func NewValidationError(fields map[string]string) *ValidationError {
	if fields == nil {
		fields = map[string]string{}
	}
	return &ValidationError{Fields: fields}
}

// fieldError builds a single field failure.
func fieldError(field, message string) *ValidationError {
	return NewValidationError(map[string]string{field: message})
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field returns the message recorded for name, or an empty string.
func (e *ValidationError) Field(name string) string {
	return e.Fields[name]
}

// RichError converts the failure into a go-errors validation error so
// transports can render it like every other categorized error.
func (e *ValidationError) RichError() *goerrors.Error {
	return goerrors.New("validation failed", goerrors.CategoryValidation).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"fields": e.Fields})
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	_, ok := AsValidationError(err)
	return ok
}

func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if goerrors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// IsNotFound reports whether err means the account row does not exist.
func IsNotFound(err error) bool {
	return goerrors.Is(err, ErrAccountNotFound)
}

// fromOzzo maps ozzo output into this package's error surface. Store
// failures raised inside rules come back unwrapped.
func fromOzzo(err error) error {
	if err == nil {
		return nil
	}

	var internal validation.InternalError
	if goerrors.As(err, &internal) {
		return internal.InternalError()
	}

	var errs validation.Errors
	if goerrors.As(err, &errs) {
		fields := map[string]string{}
		flattenOzzo("", errs, fields)
		return NewValidationError(fields)
	}

	if verr, ok := AsValidationError(err); ok {
		return verr
	}

	return err
}

func flattenOzzo(prefix string, errs validation.Errors, out map[string]string) {
	for key, err := range errs {
		if err == nil {
			continue
		}
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}
		if nested, ok := err.(validation.Errors); ok {
			flattenOzzo(name, nested, out)
			continue
		}
		out[name] = err.Error()
	}
}
