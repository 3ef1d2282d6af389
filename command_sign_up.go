package account

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

type SignUpMessage struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	MobilePhone string `json:"mobile_phone"`
	Password    string `json:"password"`

	Actor      Actor          `json:"-"`
	OnResponse func(IDResult) `json:"-"`
}

func (m SignUpMessage) Type() string { return "account.sign_up" }

func (m SignUpMessage) normalized() SignUpMessage {
	m.FirstName = strings.TrimSpace(m.FirstName)
	m.LastName = strings.TrimSpace(m.LastName)
	m.Email = NormalizeEmail(m.Email)
	m.MobilePhone = NormalizePhone(m.MobilePhone)
	m.Password = strings.TrimSpace(m.Password)
	return m
}

// Validate checks the message shape without touching the store.
func (m SignUpMessage) Validate() error {
	m = m.normalized()
	return validation.ValidateStruct(&m,
		validation.Field(&m.FirstName, validation.Required, runeLength(2, 30)),
		validation.Field(&m.LastName, validation.Required, runeLength(2, 30)),
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.MobilePhone, validation.Required, phoneNumber()),
		validation.Field(&m.Password, requiredPassword()...),
	)
}

// SignUpHandler registers a new account. The account starts inactive
// with no channel confirmed.
type SignUpHandler struct {
	*core
}

func (h *SignUpHandler) Execute(ctx context.Context, msg SignUpMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during sign up",
		)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *SignUpHandler) execute(ctx context.Context, msg SignUpMessage) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	msg = msg.normalized()
	if err := fromOzzo(msg.Validate()); err != nil {
		return err
	}

	if err := fromOzzo(validation.ValidateStruct(&msg,
		validation.Field(&msg.Email, emailNotRegistered(ctx, h.store)),
		validation.Field(&msg.MobilePhone, phoneNotRegistered(ctx, h.store)),
	)); err != nil {
		return err
	}

	hash, err := h.hasher.HashPassword(msg.Password)
	if err != nil {
		return err
	}

	record := &Account{
		ID:           h.newID(),
		Email:        msg.Email,
		PasswordHash: hash,
		FirstName:    msg.FirstName,
		LastName:     msg.LastName,
		MobilePhone:  msg.MobilePhone,
		Roles:        FormatRoles(nil),
		CreatedBy:    msg.Actor.Ref(),
		UpdatedBy:    msg.Actor.Ref(),
	}

	created, err := h.store.Create(ctx, record)
	if err != nil {
		return err
	}

	if h.policy.SendWelcomeEmail {
		h.submitConfirmEmail(created.ID, created.Email, created.FirstName)
	}

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventAccountCreated,
		ActorID:   msg.Actor.Ref(),
		AccountID: created.ID,
	})

	respond(msg.OnResponse, IDResult{ID: created.ID})
	return nil
}
