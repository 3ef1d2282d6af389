package account

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

type UpdatePasswordMessage struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`

	Actor      Actor          `json:"-"`
	OnResponse func(IDResult) `json:"-"`
}

func (m UpdatePasswordMessage) Type() string { return "account.password_update" }

func (m UpdatePasswordMessage) Validate() error {
	m.OldPassword = strings.TrimSpace(m.OldPassword)
	m.NewPassword = strings.TrimSpace(m.NewPassword)
	return validation.ValidateStruct(&m,
		validation.Field(&m.OldPassword, validation.Required),
		validation.Field(&m.NewPassword,
			append(requiredPassword(), notEqualTo(m.OldPassword, "new password must differ from the old one"))...,
		),
	)
}

// UpdatePasswordHandler changes the password of the signed in account
// after checking the current one.
type UpdatePasswordHandler struct {
	*core
}

func (h *UpdatePasswordHandler) Execute(ctx context.Context, msg UpdatePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password update",
		)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *UpdatePasswordHandler) execute(ctx context.Context, msg UpdatePasswordMessage) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	id, err := requireOwner(msg.Actor, msg.Actor.ID)
	if err != nil {
		return err
	}

	msg.OldPassword = strings.TrimSpace(msg.OldPassword)
	msg.NewPassword = strings.TrimSpace(msg.NewPassword)

	if err := fromOzzo(msg.Validate()); err != nil {
		return err
	}

	if err := fromOzzo(validation.ValidateStruct(&msg,
		validation.Field(&msg.OldPassword, passwordOf(ctx, h.store, h.hasher, id)),
	)); err != nil {
		return err
	}

	hash, err := h.hasher.HashPassword(msg.NewPassword)
	if err != nil {
		return err
	}

	updated, err := h.store.Update(ctx, id, AccountPatch{
		PasswordHash: &hash,
		UpdatedBy:    msg.Actor.Ref(),
	})
	if err != nil {
		return err
	}

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		ActorID:   msg.Actor.Ref(),
		AccountID: updated.ID,
	})

	respond(msg.OnResponse, IDResult{ID: updated.ID})
	return nil
}
