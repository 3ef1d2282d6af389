package account

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type ReadProfileMessage struct {
	command.BaseMessage

	ID    uuid.UUID `json:"id"`
	Actor Actor     `json:"-"`

	OnResponse func(Profile) `json:"-"`
}

func (m ReadProfileMessage) Type() string { return "account.profile_read" }

// ReadProfileHandler returns the self view of the signed in account.
type ReadProfileHandler struct {
	*core
}

func (h *ReadProfileHandler) Execute(ctx context.Context, msg ReadProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile read",
		)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *ReadProfileHandler) execute(ctx context.Context, msg ReadProfileMessage) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	id, err := requireOwner(msg.Actor, msg.ID)
	if err != nil {
		return err
	}

	acc, err := h.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	respond(msg.OnResponse, newProfile(acc, h.policy.AvatarHosting))
	return nil
}

type UpdateProfileMessage struct {
	ID          uuid.UUID `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Email       string    `json:"email"`
	MobilePhone string    `json:"mobile_phone"`

	Actor      Actor          `json:"-"`
	OnResponse func(IDResult) `json:"-"`
}

func (m UpdateProfileMessage) Type() string { return "account.profile_update" }

func (m UpdateProfileMessage) normalized() UpdateProfileMessage {
	m.FirstName = strings.TrimSpace(m.FirstName)
	m.LastName = strings.TrimSpace(m.LastName)
	m.Email = NormalizeEmail(m.Email)
	m.MobilePhone = NormalizePhone(m.MobilePhone)
	return m
}

func (m UpdateProfileMessage) Validate() error {
	m = m.normalized()
	return validation.ValidateStruct(&m,
		validation.Field(&m.FirstName, validation.Required, runeLength(1, 30)),
		validation.Field(&m.LastName, validation.Required, runeLength(1, 30)),
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.MobilePhone, validation.Required, phoneNumber()),
	)
}

// UpdateProfileHandler edits the signed in account. Changing the email
// or the phone revokes that channel's confirmation.
type UpdateProfileHandler struct {
	*core
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, msg UpdateProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile update",
		)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *UpdateProfileHandler) execute(ctx context.Context, msg UpdateProfileMessage) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	id, err := requireOwner(msg.Actor, msg.ID)
	if err != nil {
		return err
	}

	current, err := h.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	msg = msg.normalized()
	if err := fromOzzo(msg.Validate()); err != nil {
		return err
	}

	if err := fromOzzo(validation.ValidateStruct(&msg,
		validation.Field(&msg.Email, emailAvailableFor(ctx, h.store, id)),
	)); err != nil {
		return err
	}

	patch, emailChanged := profilePatch(current, msg)
	if patch.IsEmpty() {
		respond(msg.OnResponse, IDResult{ID: current.ID})
		return nil
	}
	patch.UpdatedBy = msg.Actor.Ref()

	updated, err := h.store.Update(ctx, id, patch)
	if err != nil {
		return err
	}

	if emailChanged && h.policy.ReconfirmEmailAfterChange {
		h.submitConfirmEmail(updated.ID, updated.Email, updated.FirstName)
	}

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventProfileUpdated,
		ActorID:   msg.Actor.Ref(),
		AccountID: updated.ID,
		Metadata: map[string]any{
			"email_changed": emailChanged,
			"phone_changed": patch.MobilePhone != nil,
		},
	})

	respond(msg.OnResponse, IDResult{ID: updated.ID})
	return nil
}

// profilePatch diffs the request against the stored record. A changed
// channel value also writes its confirmation flag as false; an unchanged
// one leaves the flag alone.
func profilePatch(current *Account, msg UpdateProfileMessage) (AccountPatch, bool) {
	var patch AccountPatch

	if msg.FirstName != current.FirstName {
		patch.FirstName = &msg.FirstName
	}
	if msg.LastName != current.LastName {
		patch.LastName = &msg.LastName
	}

	emailChanged := msg.Email != current.Email
	if emailChanged {
		patch.Email = &msg.Email
		patch.EmailConfirmed = ref(false)
	}

	if msg.MobilePhone != current.MobilePhone {
		patch.MobilePhone = &msg.MobilePhone
		patch.MobilePhoneConfirmed = ref(false)
	}

	return patch, emailChanged
}
