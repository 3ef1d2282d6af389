package account

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type SignInMessage struct {
	Email    string `json:"email"`
	Password string `json:"password"`

	OnResponse func(SessionPayload) `json:"-"`
}

func (m SignInMessage) Type() string { return "account.sign_in" }

func (m SignInMessage) Validate() error {
	m.Email = NormalizeEmail(m.Email)
	m.Password = strings.TrimSpace(m.Password)
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Password, validation.Required),
	)
}

// SignInHandler verifies credentials and returns the session payload.
// Every failure mode surfaces as ErrInvalidCredentials.
type SignInHandler struct {
	*core
}

func (h *SignInHandler) Execute(ctx context.Context, msg SignInMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during sign in",
		)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *SignInHandler) execute(ctx context.Context, msg SignInMessage) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	if err := msg.Validate(); err != nil {
		return ErrInvalidCredentials
	}
	email := NormalizeEmail(msg.Email)
	password := strings.TrimSpace(msg.Password)

	acc, err := h.store.FindOne(ctx, AccountQuery{Email: email})
	if err != nil {
		if IsNotFound(err) {
			h.logger.Debug("sign in for unknown email %s", email)
			h.compareDummy(password)
			return ErrInvalidCredentials
		}
		return err
	}

	if err := h.hasher.ComparePasswordAndHash(password, acc.PasswordHash); err != nil {
		if goerrors.Is(err, ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return err
	}

	if !acc.IsActive() {
		h.logger.Debug("sign in for inactive account %s", acc.ID)
		return ErrInvalidCredentials
	}

	respond(msg.OnResponse, newSessionPayload(acc, h.policy.AvatarHosting))
	return nil
}

type SignInRefreshMessage struct {
	ID uuid.UUID `json:"id"`

	OnResponse func(SessionPayload) `json:"-"`
}

func (m SignInRefreshMessage) Type() string { return "account.sign_in_refresh" }

func (m SignInRefreshMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, requiredID()),
	)
}

// SignInRefreshHandler rebuilds the session payload of a signed in
// account so role or avatar changes reach the client.
type SignInRefreshHandler struct {
	*core
}

func (h *SignInRefreshHandler) Execute(ctx context.Context, msg SignInRefreshMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during sign in refresh",
		)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *SignInRefreshHandler) execute(ctx context.Context, msg SignInRefreshMessage) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	if err := msg.Validate(); err != nil {
		return ErrUnauthenticated
	}

	acc, err := h.store.GetByID(ctx, msg.ID)
	if err != nil {
		if IsNotFound(err) {
			return ErrInvalidCredentials
		}
		return err
	}

	if !acc.IsActive() {
		return ErrInvalidCredentials
	}

	respond(msg.OnResponse, newSessionPayload(acc, h.policy.AvatarHosting))
	return nil
}
