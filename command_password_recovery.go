package account

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	msgTokenInvalid = "token is invalid"
	msgTokenExpired = "token expired"
	msgSamePassword = "new password must differ from the current one"
)

type RecoverPasswordMessage struct {
	Token    string `json:"token"`
	Password string `json:"password"`

	OnResponse func(IDResult) `json:"-"`
}

func (m RecoverPasswordMessage) Type() string { return "account.password_recovery" }

func (m RecoverPasswordMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Token, validation.Required),
		validation.Field(&m.Password, requiredPassword()...),
	)
}

// RecoverPasswordHandler redeems a recovery token. The token embeds the
// password hash at issuance, so it stops working once the password
// changes, including through this handler.
type RecoverPasswordHandler struct {
	*core
}

func (h *RecoverPasswordHandler) Execute(ctx context.Context, msg RecoverPasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password recovery",
		)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *RecoverPasswordHandler) execute(ctx context.Context, msg RecoverPasswordMessage) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	msg.Token = strings.TrimSpace(msg.Token)
	msg.Password = strings.TrimSpace(msg.Password)
	if err := fromOzzo(msg.Validate()); err != nil {
		return err
	}

	payload, err := h.tokens.VerifyRecoveryToken(msg.Token)
	if err != nil {
		h.logger.Debug("recovery token rejected: %v", err)
		if goerrors.Is(err, ErrTokenExpired) {
			return fieldError("token", msgTokenExpired)
		}
		return fieldError("token", msgTokenInvalid)
	}
	if payload.Email == "" || payload.PasswordHash == "" {
		return fieldError("token", msgTokenInvalid)
	}

	hash, err := h.hasher.HashPassword(msg.Password)
	if err != nil {
		return err
	}

	switch err := h.hasher.ComparePasswordAndHash(msg.Password, payload.PasswordHash); {
	case err == nil:
		return fieldError("password", msgSamePassword)
	case !goerrors.Is(err, ErrMismatchedHashAndPassword):
		h.logger.Debug("recovery token carries an unusable hash: %v", err)
		return fieldError("token", msgTokenInvalid)
	}

	acc, err := h.store.FindOne(ctx, AccountQuery{
		Email:        payload.Email,
		PasswordHash: payload.PasswordHash,
	})
	if err != nil {
		if IsNotFound(err) {
			return fieldError("token", msgTokenExpired)
		}
		return err
	}

	// Guarded on the old hash so two redemptions of one token cannot both win.
	updated, err := h.store.Update(ctx, acc.ID, AccountPatch{
		PasswordHash: &hash,
		UpdatedBy:    &acc.ID,
		Where:        AccountQuery{PasswordHash: payload.PasswordHash},
	})
	if err != nil {
		if IsNotFound(err) {
			return fieldError("token", msgTokenExpired)
		}
		return err
	}

	email := updated.Email
	h.queue.Submit("account.password_changed", func(ctx context.Context) error {
		return h.notifier.PasswordChanged(ctx, PasswordChangedNotice{Email: email})
	})

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordRecovered,
		ActorID:   &acc.ID,
		AccountID: acc.ID,
	})

	respond(msg.OnResponse, IDResult{ID: updated.ID})
	return nil
}
