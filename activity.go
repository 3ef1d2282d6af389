package account

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActivityEventType enumerates account state changes worth auditing.
type ActivityEventType string

const (
	ActivityEventAccountCreated    ActivityEventType = "account.created"
	ActivityEventPasswordChanged   ActivityEventType = "account.password.changed"
	ActivityEventPasswordRecovered ActivityEventType = "account.password.recovered"
	ActivityEventEmailConfirmed    ActivityEventType = "account.email.confirmed"
	ActivityEventPhoneConfirmed    ActivityEventType = "account.phone.confirmed"
	ActivityEventProfileUpdated    ActivityEventType = "account.profile.updated"
	ActivityEventAvatarReplaced    ActivityEventType = "account.avatar.replaced"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	ActorID    *uuid.UUID
	AccountID  uuid.UUID
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
// Recording is best effort: errors are logged and never fail the flow.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// LogActivitySink writes events to a Logger.
type LogActivitySink struct {
	Logger Logger
}

func (s LogActivitySink) Record(_ context.Context, event ActivityEvent) error {
	logger := s.Logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Info("activity %s account=%s metadata=%v", event.EventType, event.AccountID, event.Metadata)
	return nil
}
