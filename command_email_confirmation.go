package account

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

const msgUnableToActivate = "unable to activate account"

type ResendEmailConfirmationMessage struct {
	Email string `json:"email"`
}

func (m ResendEmailConfirmationMessage) Type() string { return "account.email_confirmation_resend" }

func (m ResendEmailConfirmationMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
	)
}

// ResendEmailConfirmationHandler mails a fresh confirmation link to an
// unconfirmed address. Unknown or confirmed addresses are a silent no-op.
type ResendEmailConfirmationHandler struct {
	*core
}

func (h *ResendEmailConfirmationHandler) Execute(ctx context.Context, msg ResendEmailConfirmationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email confirmation resend",
		)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *ResendEmailConfirmationHandler) execute(ctx context.Context, msg ResendEmailConfirmationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	msg.Email = NormalizeEmail(msg.Email)
	if err := fromOzzo(msg.Validate()); err != nil {
		return err
	}

	acc, err := h.store.FindOne(ctx, AccountQuery{
		Email:          msg.Email,
		EmailConfirmed: ref(false),
	})
	if err != nil {
		if IsNotFound(err) {
			h.logger.Info("no unconfirmed account for email %s", msg.Email)
			return nil
		}
		return err
	}

	h.submitConfirmEmail(acc.ID, acc.Email, acc.FirstName)
	return nil
}

type ConfirmEmailMessage struct {
	Token string `json:"token"`

	OnResponse func(IDResult) `json:"-"`
}

func (m ConfirmEmailMessage) Type() string { return "account.email_confirm" }

func (m ConfirmEmailMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Token, validation.Required),
	)
}

// ConfirmEmailHandler redeems an email confirmation token.
type ConfirmEmailHandler struct {
	*core
}

func (h *ConfirmEmailHandler) Execute(ctx context.Context, msg ConfirmEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email confirmation",
		)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *ConfirmEmailHandler) execute(ctx context.Context, msg ConfirmEmailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	msg.Token = strings.TrimSpace(msg.Token)
	if err := fromOzzo(msg.Validate()); err != nil {
		return err
	}

	payload, err := h.tokens.VerifyEmailToken(msg.Token)
	if err != nil {
		h.logger.Debug("email token rejected: %v", err)
		return fieldError("token", msgTokenInvalid)
	}
	if payload.Email == "" {
		return fieldError("token", msgTokenInvalid)
	}

	// A token minted for a previous address no longer matches the record.
	acc, err := h.store.FindOne(ctx, AccountQuery{
		ID:             payload.ID,
		Email:          payload.Email,
		EmailConfirmed: ref(false),
	})
	if err != nil {
		if IsNotFound(err) {
			return fieldError("token", msgUnableToActivate)
		}
		return err
	}

	// An email changed between the read and this write stays unconfirmed.
	updated, err := h.store.Update(ctx, acc.ID, AccountPatch{
		EmailConfirmed: ref(true),
		UpdatedBy:      &acc.ID,
		Where:          AccountQuery{Email: payload.Email, EmailConfirmed: ref(false)},
	})
	if err != nil {
		if IsNotFound(err) {
			return fieldError("token", msgUnableToActivate)
		}
		return err
	}

	email, firstName := updated.Email, updated.FirstName
	h.queue.Submit("account.sign_up_success", func(ctx context.Context) error {
		return h.notifier.SignUpSuccess(ctx, SignUpSuccessNotice{
			Email:     email,
			FirstName: firstName,
		})
	})

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventEmailConfirmed,
		ActorID:   &acc.ID,
		AccountID: acc.ID,
	})

	respond(msg.OnResponse, IDResult{ID: updated.ID})
	return nil
}
