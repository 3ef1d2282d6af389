package account

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

type RequestPasswordRecoveryMessage struct {
	Email string `json:"email"`
}

func (m RequestPasswordRecoveryMessage) Type() string { return "account.password_recovery_request" }

func (m RequestPasswordRecoveryMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
	)
}

// RequestPasswordRecoveryHandler mails a recovery link. The caller sees
// the same outcome whether or not the email belongs to an account.
type RequestPasswordRecoveryHandler struct {
	*core
}

func (h *RequestPasswordRecoveryHandler) Execute(ctx context.Context, msg RequestPasswordRecoveryMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password recovery request",
		)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *RequestPasswordRecoveryHandler) execute(ctx context.Context, msg RequestPasswordRecoveryMessage) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	msg.Email = NormalizeEmail(msg.Email)
	if err := fromOzzo(msg.Validate()); err != nil {
		return err
	}

	acc, err := h.store.FindOne(ctx, AccountQuery{Email: msg.Email})
	if err != nil {
		if IsNotFound(err) {
			h.logger.Info("password recovery requested for unknown email %s", msg.Email)
			return nil
		}
		return err
	}

	token, err := h.tokens.IssueRecoveryToken(RecoveryPayload{
		Email:        acc.Email,
		PasswordHash: acc.PasswordHash,
	})
	if err != nil {
		return err
	}

	email := acc.Email
	h.queue.Submit("account.restore_password", func(ctx context.Context) error {
		return h.notifier.RestorePassword(ctx, RestorePasswordNotice{
			Email: email,
			Token: token,
		})
	})

	return nil
}
