package account

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type CreateActivationOtpMessage struct {
	ID uuid.UUID `json:"id"`

	OnResponse func(OtpResult) `json:"-"`
}

func (m CreateActivationOtpMessage) Type() string { return "account.activation_otp_create" }

func (m CreateActivationOtpMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, requiredID()),
	)
}

// CreateActivationOtpHandler sends a one-time code to the account phone.
type CreateActivationOtpHandler struct {
	*core
}

func (h *CreateActivationOtpHandler) Execute(ctx context.Context, msg CreateActivationOtpMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during activation code request",
		)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *CreateActivationOtpHandler) execute(ctx context.Context, msg CreateActivationOtpMessage) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	if err := fromOzzo(msg.Validate()); err != nil {
		return err
	}

	var acc *Account
	if err := fromOzzo(validation.ValidateStruct(&msg,
		validation.Field(&msg.ID,
			existingAccount(ctx, h.store, &acc),
			phoneAwaitingConfirmation(&acc),
		),
	)); err != nil {
		return err
	}

	ttl := h.policy.OtpTTL
	if err := h.otp.Send(ctx, ComposeActivationOtpKey(acc.ID), ttl, acc.MobilePhone); err != nil {
		return err
	}

	respond(msg.OnResponse, OtpResult{CanRepeatAfterSeconds: int(ttl.Seconds())})
	return nil
}

type ConfirmActivationOtpMessage struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`

	OnResponse func(IDResult) `json:"-"`
}

func (m ConfirmActivationOtpMessage) Type() string { return "account.activation_otp_confirm" }

func (m ConfirmActivationOtpMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, requiredID()),
		validation.Field(&m.Code, validation.Required, is.Digit, validation.Length(4, 10)),
	)
}

// ConfirmActivationOtpHandler marks the phone confirmed once the code
// sent by CreateActivationOtpHandler is redeemed.
type ConfirmActivationOtpHandler struct {
	*core
}

func (h *ConfirmActivationOtpHandler) Execute(ctx context.Context, msg ConfirmActivationOtpMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during activation code confirmation",
		)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *ConfirmActivationOtpHandler) execute(ctx context.Context, msg ConfirmActivationOtpMessage) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	msg.Code = strings.TrimSpace(msg.Code)
	if err := fromOzzo(msg.Validate()); err != nil {
		return err
	}

	var acc *Account
	if err := fromOzzo(validation.ValidateStruct(&msg,
		validation.Field(&msg.ID,
			existingAccount(ctx, h.store, &acc),
			phoneAwaitingConfirmation(&acc),
		),
	)); err != nil {
		return err
	}

	if err := h.otp.Confirm(ctx, ComposeActivationOtpKey(acc.ID), acc.MobilePhone, msg.Code); err != nil {
		return err
	}

	// A phone changed after the read stays unconfirmed.
	updated, err := h.store.Update(ctx, acc.ID, AccountPatch{
		MobilePhoneConfirmed: ref(true),
		UpdatedBy:            &acc.ID,
		Where:                AccountQuery{MobilePhone: acc.MobilePhone},
	})
	if err != nil {
		if IsNotFound(err) {
			return fieldError("code", msgOtpInvalid)
		}
		return err
	}

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventPhoneConfirmed,
		ActorID:   &msg.ID,
		AccountID: updated.ID,
	})

	respond(msg.OnResponse, IDResult{ID: updated.ID})
	return nil
}
