package account

import (
	"context"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type UploadAvatarMessage struct {
	ID    uuid.UUID `json:"id"`
	Image []byte    `json:"image"`

	Actor      Actor              `json:"-"`
	OnResponse func(AvatarResult) `json:"-"`
}

func (m UploadAvatarMessage) Type() string { return "account.avatar_upload" }

func (m UploadAvatarMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Image, validation.Required),
	)
}

// UploadAvatarHandler stores a new avatar and then drops the previous
// object. The old object is only removed after the record points at the
// new one.
type UploadAvatarHandler struct {
	*core
}

func (h *UploadAvatarHandler) Execute(ctx context.Context, msg UploadAvatarMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during avatar upload",
		)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *UploadAvatarHandler) execute(ctx context.Context, msg UploadAvatarMessage) error {
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

	if err := fromOzzo(validation.ValidateStruct(&msg,
		validation.Field(&msg.Image, validation.Required, avatarImage(h.policy.AvatarMaxSize)),
	)); err != nil {
		return err
	}

	reference := h.newID().String()
	uploaded, err := h.avatars.UploadBuffer(ctx, UploadInput{
		FileName:     reference,
		Buffer:       msg.Image,
		MimeType:     http.DetectContentType(msg.Image),
		PublicAccess: true,
		Tags:         map[string]string{"accountId": id.String()},
	})
	if err != nil {
		return err
	}

	updated, err := h.store.Update(ctx, id, AccountPatch{
		Avatar:    &reference,
		UpdatedBy: msg.Actor.Ref(),
	})
	if err != nil {
		return err
	}

	if old := current.Avatar; old != nil && *old != "" && *old != reference {
		if err := h.avatars.Remove(ctx, *old); err != nil {
			h.logger.Warn("failed to remove previous avatar %s of account %s: %v", *old, id, err)
		}
	}

	h.record(ctx, ActivityEvent{
		EventType: ActivityEventAvatarReplaced,
		ActorID:   msg.Actor.Ref(),
		AccountID: updated.ID,
		Metadata:  map[string]any{"reference": reference},
	})

	respond(msg.OnResponse, AvatarResult{ID: updated.ID, AvatarURL: uploaded.Location})
	return nil
}
