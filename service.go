package account

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultOtpTTL is how long an activation code stays valid and how
	// long a caller waits before requesting a new one.
	DefaultOtpTTL = 60 * time.Second

	DefaultAvatarHosting = "http://localhost:8080/avatars"

	operationTimeout = 10 * time.Second
)

// Policy holds the behavior switches of the account flows.
type Policy struct {
	SendWelcomeEmail          bool
	ReconfirmEmailAfterChange bool
	OtpTTL                    time.Duration
	AvatarHosting             string
	AvatarMaxSize             int
}

func DefaultPolicy() Policy {
	return Policy{
		SendWelcomeEmail:          true,
		ReconfirmEmailAfterChange: true,
		OtpTTL:                    DefaultOtpTTL,
		AvatarHosting:             DefaultAvatarHosting,
		AvatarMaxSize:             DefaultAvatarMaxSize,
	}
}

// core bundles the collaborators every handler needs.
type core struct {
	store    Store
	hasher   PasswordHasher
	tokens   TokenService
	otp      OtpService
	notifier Notifier
	avatars  AvatarStorage
	queue    TaskQueue
	activity ActivitySink
	logger   Logger
	policy   Policy
	newID    func() uuid.UUID
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// compareDummy spends one hash comparison on a throwaway hash, so a sign
// in for an unknown email costs as much as a wrong password.
func (c *core) compareDummy(password string) {
	c.dummyOnce.Do(func() {
		hash, err := c.hasher.HashPassword("account-timing-equalizer")
		if err != nil {
			c.logger.Warn("failed to build timing hash: %v", err)
			return
		}
		c.dummyHash = hash
	})
	if c.dummyHash != "" {
		_ = c.hasher.ComparePasswordAndHash(password, c.dummyHash)
	}
}

// submitConfirmEmail mints an email token and sends the confirmation
// mail in the background.
func (c *core) submitConfirmEmail(id uuid.UUID, email, firstName string) {
	c.queue.Submit("account.confirm_email", func(ctx context.Context) error {
		token, err := c.tokens.IssueEmailToken(EmailConfirmationPayload{ID: id, Email: email})
		if err != nil {
			return err
		}
		return c.notifier.ConfirmEmail(ctx, ConfirmEmailNotice{
			Email:     email,
			FirstName: firstName,
			Token:     token,
		})
	})
}

func (c *core) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = c.now()
	}
	if err := c.activity.Record(ctx, event); err != nil {
		c.logger.Warn("failed to record activity %s: %v", event.EventType, err)
	}
}

// ServiceOption configures a Service.
type ServiceOption func(*core)

func WithPasswordHasher(h PasswordHasher) ServiceOption {
	return func(c *core) {
		if h != nil {
			c.hasher = h
		}
	}
}

func WithTokenService(t TokenService) ServiceOption {
	return func(c *core) { c.tokens = t }
}

func WithOtpService(o OtpService) ServiceOption {
	return func(c *core) { c.otp = o }
}

func WithNotifier(n Notifier) ServiceOption {
	return func(c *core) { c.notifier = n }
}

func WithAvatarStorage(s AvatarStorage) ServiceOption {
	return func(c *core) { c.avatars = s }
}

// WithTaskQueue sets where notification tasks run.
func WithTaskQueue(q TaskQueue) ServiceOption {
	return func(c *core) {
		if q != nil {
			c.queue = q
		}
	}
}

func WithActivitySink(s ActivitySink) ServiceOption {
	return func(c *core) { c.activity = normalizeActivitySink(s) }
}

func WithLogger(l Logger) ServiceOption {
	return func(c *core) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithLoggerProvider(p LoggerProvider) ServiceOption {
	return func(c *core) { c.logger = ResolveLogger("account", p, nil) }
}

func WithPolicy(p Policy) ServiceOption {
	return func(c *core) { c.policy = p }
}

// WithSendWelcomeEmail toggles the confirmation email after sign up.
func WithSendWelcomeEmail(enabled bool) ServiceOption {
	return func(c *core) { c.policy.SendWelcomeEmail = enabled }
}

// WithReconfirmEmailAfterChange toggles the confirmation email after an
// email change.
func WithReconfirmEmailAfterChange(enabled bool) ServiceOption {
	return func(c *core) { c.policy.ReconfirmEmailAfterChange = enabled }
}

func WithOtpTTL(ttl time.Duration) ServiceOption {
	return func(c *core) {
		if ttl > 0 {
			c.policy.OtpTTL = ttl
		}
	}
}

func WithAvatarHosting(base string) ServiceOption {
	return func(c *core) { c.policy.AvatarHosting = base }
}

func WithIDGenerator(fn func() uuid.UUID) ServiceOption {
	return func(c *core) {
		if fn != nil {
			c.newID = fn
		}
	}
}

func WithClock(fn func() time.Time) ServiceOption {
	return func(c *core) {
		if fn != nil {
			c.now = fn
		}
	}
}

// Service is the account lifecycle facade. Every method runs one command
// handler and returns its response.
type Service struct {
	core *core

	signUp               *SignUpHandler
	signIn               *SignInHandler
	signInRefresh        *SignInRefreshHandler
	updatePassword       *UpdatePasswordHandler
	requestRecovery      *RequestPasswordRecoveryHandler
	recoverPassword      *RecoverPasswordHandler
	resendConfirmation   *ResendEmailConfirmationHandler
	confirmEmail         *ConfirmEmailHandler
	createActivationOtp  *CreateActivationOtpHandler
	confirmActivationOtp *ConfirmActivationOtpHandler
	readProfile          *ReadProfileHandler
	updateProfile        *UpdateProfileHandler
	uploadAvatar         *UploadAvatarHandler
}

// NewService wires the handlers around store. Collaborators that are not
// given fall back to defaults: bcrypt hashing, a goroutine per task queue and
// a stdout logger. Flows that need a missing collaborator panic.
func NewService(store Store, opts ...ServiceOption) *Service {
	c := &core{
		store:    store,
		hasher:   NewBcryptHasher(0),
		activity: noopActivitySink{},
		logger:   defLogger{},
		policy:   DefaultPolicy(),
		newID:    uuid.New,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.queue == nil {
		c.queue = asyncQueue{logger: c.logger}
	}
	if c.policy.AvatarMaxSize <= 0 {
		c.policy.AvatarMaxSize = DefaultAvatarMaxSize
	}
	if c.policy.OtpTTL <= 0 {
		c.policy.OtpTTL = DefaultOtpTTL
	}

	return &Service{
		core:                 c,
		signUp:               &SignUpHandler{c},
		signIn:               &SignInHandler{c},
		signInRefresh:        &SignInRefreshHandler{c},
		updatePassword:       &UpdatePasswordHandler{c},
		requestRecovery:      &RequestPasswordRecoveryHandler{c},
		recoverPassword:      &RecoverPasswordHandler{c},
		resendConfirmation:   &ResendEmailConfirmationHandler{c},
		confirmEmail:         &ConfirmEmailHandler{c},
		createActivationOtp:  &CreateActivationOtpHandler{c},
		confirmActivationOtp: &ConfirmActivationOtpHandler{c},
		readProfile:          &ReadProfileHandler{c},
		updateProfile:        &UpdateProfileHandler{c},
		uploadAvatar:         &UploadAvatarHandler{c},
	}
}

func (s *Service) Policy() Policy {
	return s.core.policy
}

func (s *Service) SignUp(ctx context.Context, msg SignUpMessage) (IDResult, error) {
	var out IDResult
	msg.OnResponse = chain(msg.OnResponse, func(r IDResult) { out = r })
	err := s.signUp.Execute(ctx, msg)
	return out, err
}

func (s *Service) SignIn(ctx context.Context, msg SignInMessage) (SessionPayload, error) {
	var out SessionPayload
	msg.OnResponse = chain(msg.OnResponse, func(r SessionPayload) { out = r })
	err := s.signIn.Execute(ctx, msg)
	return out, err
}

func (s *Service) SignInRefresh(ctx context.Context, msg SignInRefreshMessage) (SessionPayload, error) {
	var out SessionPayload
	msg.OnResponse = chain(msg.OnResponse, func(r SessionPayload) { out = r })
	err := s.signInRefresh.Execute(ctx, msg)
	return out, err
}

func (s *Service) UpdatePassword(ctx context.Context, msg UpdatePasswordMessage) (IDResult, error) {
	var out IDResult
	msg.OnResponse = chain(msg.OnResponse, func(r IDResult) { out = r })
	err := s.updatePassword.Execute(ctx, msg)
	return out, err
}

// RequestPasswordRecovery returns nil for unknown emails as well.
func (s *Service) RequestPasswordRecovery(ctx context.Context, msg RequestPasswordRecoveryMessage) error {
	return s.requestRecovery.Execute(ctx, msg)
}

// RecoverPassword sets a new password from a recovery token. Callers that
// need the account id can set msg.OnResponse.
func (s *Service) RecoverPassword(ctx context.Context, msg RecoverPasswordMessage) error {
	return s.recoverPassword.Execute(ctx, msg)
}

func (s *Service) ResendEmailConfirmation(ctx context.Context, msg ResendEmailConfirmationMessage) error {
	return s.resendConfirmation.Execute(ctx, msg)
}

func (s *Service) ConfirmEmail(ctx context.Context, msg ConfirmEmailMessage) (IDResult, error) {
	var out IDResult
	msg.OnResponse = chain(msg.OnResponse, func(r IDResult) { out = r })
	err := s.confirmEmail.Execute(ctx, msg)
	return out, err
}

func (s *Service) CreateActivationOtp(ctx context.Context, msg CreateActivationOtpMessage) (OtpResult, error) {
	var out OtpResult
	msg.OnResponse = chain(msg.OnResponse, func(r OtpResult) { out = r })
	err := s.createActivationOtp.Execute(ctx, msg)
	return out, err
}

func (s *Service) ConfirmActivationOtp(ctx context.Context, msg ConfirmActivationOtpMessage) (IDResult, error) {
	var out IDResult
	msg.OnResponse = chain(msg.OnResponse, func(r IDResult) { out = r })
	err := s.confirmActivationOtp.Execute(ctx, msg)
	return out, err
}

func (s *Service) ReadProfile(ctx context.Context, msg ReadProfileMessage) (Profile, error) {
	var out Profile
	msg.OnResponse = chain(msg.OnResponse, func(r Profile) { out = r })
	err := s.readProfile.Execute(ctx, msg)
	return out, err
}

func (s *Service) UpdateProfile(ctx context.Context, msg UpdateProfileMessage) (IDResult, error) {
	var out IDResult
	msg.OnResponse = chain(msg.OnResponse, func(r IDResult) { out = r })
	err := s.updateProfile.Execute(ctx, msg)
	return out, err
}

func (s *Service) UploadAvatar(ctx context.Context, msg UploadAvatarMessage) (AvatarResult, error) {
	var out AvatarResult
	msg.OnResponse = chain(msg.OnResponse, func(r AvatarResult) { out = r })
	err := s.uploadAvatar.Execute(ctx, msg)
	return out, err
}

func chain[T any](first, second func(T)) func(T) {
	return func(v T) {
		if first != nil {
			first(v)
		}
		second(v)
	}
}

// respond calls fn when set.
func respond[T any](fn func(T), v T) {
	if fn != nil {
		fn(v)
	}
}

// requireOwner resolves the account an actor may act upon. A non nil
// target must match the actor.
func requireOwner(actor Actor, target uuid.UUID) (uuid.UUID, error) {
	if actor.IsAnonymous() {
		return uuid.Nil, ErrUnauthenticated
	}
	if target != uuid.Nil && target != actor.ID {
		return uuid.Nil, ErrNotAccountOwner
	}
	return actor.ID, nil
}
