package account

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// LoggerProvider hands out named loggers.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// Store is the account persistence contract. Reads never return soft
// deleted rows and a missing row is reported as ErrAccountNotFound.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindOne(ctx context.Context, query AccountQuery) (*Account, error)
	Create(ctx context.Context, record *Account) (*Account, error)
	Update(ctx context.Context, id uuid.UUID, patch AccountPatch) (*Account, error)
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// TokenService signs and verifies the purpose bound tokens used by the
// recovery and confirmation flows.
type TokenService interface {
	IssueRecoveryToken(payload RecoveryPayload) (string, error)
	VerifyRecoveryToken(token string) (RecoveryPayload, error)
	IssueEmailToken(payload EmailConfirmationPayload) (string, error)
	VerifyEmailToken(token string) (EmailConfirmationPayload, error)
}

// SessionTokens issues and verifies bearer session tokens.
type SessionTokens interface {
	IssueSessionToken(payload SessionPayload) (string, time.Time, error)
	VerifySessionToken(token string) (SessionPayload, error)
}

// OtpService delivers and verifies one-time codes keyed by an opaque
// string. Confirm fails when destination is not where the code was sent.
type OtpService interface {
	Send(ctx context.Context, key string, ttl time.Duration, destination string) error
	Confirm(ctx context.Context, key, destination, code string) error
}

type RestorePasswordNotice struct {
	Email string
	Token string
}

type ConfirmEmailNotice struct {
	Email     string
	FirstName string
	Token     string
}

type SignUpSuccessNotice struct {
	Email     string
	FirstName string
}

type PasswordChangedNotice struct {
	Email string
}

// Notifier delivers the account lifecycle emails.
type Notifier interface {
	RestorePassword(ctx context.Context, notice RestorePasswordNotice) error
	ConfirmEmail(ctx context.Context, notice ConfirmEmailNotice) error
	SignUpSuccess(ctx context.Context, notice SignUpSuccessNotice) error
	PasswordChanged(ctx context.Context, notice PasswordChangedNotice) error
}

type UploadInput struct {
	FileName     string
	Buffer       []byte
	MimeType     string
	PublicAccess bool
	Tags         map[string]string
}

type UploadResult struct {
	Location string
}

// AvatarStorage stores avatar objects by reference.
type AvatarStorage interface {
	UploadBuffer(ctx context.Context, input UploadInput) (*UploadResult, error)
	Remove(ctx context.Context, reference string) error
}

// Task is a unit of background work.
type Task func(ctx context.Context) error

// TaskQueue runs tasks after the caller returned. Submit reports false
// when the task was dropped.
type TaskQueue interface {
	Submit(name string, task Task) bool
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNT "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNT "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNT "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNT "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
