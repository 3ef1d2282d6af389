package account_test

import (
	"context"
	"sync"
	"testing"
	"time"

	account "github.com/goliatone/go-account"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// MockStore implements account.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	args := m.Called(ctx, id)
	acc, _ := args.Get(0).(*account.Account)
	return acc, args.Error(1)
}

func (m *MockStore) FindOne(ctx context.Context, query account.AccountQuery) (*account.Account, error) {
	args := m.Called(ctx, query)
	acc, _ := args.Get(0).(*account.Account)
	return acc, args.Error(1)
}

func (m *MockStore) Create(ctx context.Context, record *account.Account) (*account.Account, error) {
	args := m.Called(ctx, record)
	if fn, ok := args.Get(0).(func(context.Context, *account.Account) *account.Account); ok {
		return fn(ctx, record), args.Error(1)
	}
	acc, _ := args.Get(0).(*account.Account)
	return acc, args.Error(1)
}

func (m *MockStore) Update(ctx context.Context, id uuid.UUID, patch account.AccountPatch) (*account.Account, error) {
	args := m.Called(ctx, id, patch)
	acc, _ := args.Get(0).(*account.Account)
	return acc, args.Error(1)
}

// MockTokens implements account.TokenService and account.SessionTokens
type MockTokens struct {
	mock.Mock
}

func (m *MockTokens) IssueRecoveryToken(payload account.RecoveryPayload) (string, error) {
	args := m.Called(payload)
	return args.String(0), args.Error(1)
}

func (m *MockTokens) VerifyRecoveryToken(token string) (account.RecoveryPayload, error) {
	args := m.Called(token)
	payload, _ := args.Get(0).(account.RecoveryPayload)
	return payload, args.Error(1)
}

func (m *MockTokens) IssueEmailToken(payload account.EmailConfirmationPayload) (string, error) {
	args := m.Called(payload)
	return args.String(0), args.Error(1)
}

func (m *MockTokens) VerifyEmailToken(token string) (account.EmailConfirmationPayload, error) {
	args := m.Called(token)
	payload, _ := args.Get(0).(account.EmailConfirmationPayload)
	return payload, args.Error(1)
}

func (m *MockTokens) IssueSessionToken(payload account.SessionPayload) (string, time.Time, error) {
	args := m.Called(payload)
	expires, _ := args.Get(1).(time.Time)
	return args.String(0), expires, args.Error(2)
}

func (m *MockTokens) VerifySessionToken(token string) (account.SessionPayload, error) {
	args := m.Called(token)
	payload, _ := args.Get(0).(account.SessionPayload)
	return payload, args.Error(1)
}

// MockOtp implements account.OtpService
type MockOtp struct {
	mock.Mock
}

func (m *MockOtp) Send(ctx context.Context, key string, ttl time.Duration, destination string) error {
	return m.Called(ctx, key, ttl, destination).Error(0)
}

func (m *MockOtp) Confirm(ctx context.Context, key, destination, code string) error {
	return m.Called(ctx, key, destination, code).Error(0)
}

// MockNotifier implements account.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) RestorePassword(ctx context.Context, notice account.RestorePasswordNotice) error {
	return m.Called(ctx, notice).Error(0)
}

func (m *MockNotifier) ConfirmEmail(ctx context.Context, notice account.ConfirmEmailNotice) error {
	return m.Called(ctx, notice).Error(0)
}

func (m *MockNotifier) SignUpSuccess(ctx context.Context, notice account.SignUpSuccessNotice) error {
	return m.Called(ctx, notice).Error(0)
}

func (m *MockNotifier) PasswordChanged(ctx context.Context, notice account.PasswordChangedNotice) error {
	return m.Called(ctx, notice).Error(0)
}

// MockAvatarStorage implements account.AvatarStorage
type MockAvatarStorage struct {
	mock.Mock
}

func (m *MockAvatarStorage) UploadBuffer(ctx context.Context, input account.UploadInput) (*account.UploadResult, error) {
	args := m.Called(ctx, input)
	res, _ := args.Get(0).(*account.UploadResult)
	return res, args.Error(1)
}

func (m *MockAvatarStorage) Remove(ctx context.Context, reference string) error {
	return m.Called(ctx, reference).Error(0)
}

// recordingQueue keeps submitted tasks so tests decide when they run.
type recordingQueue struct {
	mu    sync.Mutex
	names []string
	tasks []account.Task
}

func (q *recordingQueue) Submit(name string, task account.Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.names = append(q.names, name)
	q.tasks = append(q.tasks, task)
	return true
}

func (q *recordingQueue) Names() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.names...)
}

func (q *recordingQueue) runAll(t *testing.T) {
	t.Helper()
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	for _, task := range tasks {
		require.NoError(t, task(context.Background()))
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []account.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event account.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []account.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]account.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *MockStore
	tokens   *MockTokens
	otp      *MockOtp
	notifier *MockNotifier
	avatars  *MockAvatarStorage
	queue    *recordingQueue
	sink     *recordingSink
	hasher   *account.BcryptHasher
	newID    uuid.UUID
	service  *account.Service
}

func newFixture(t *testing.T, opts ...account.ServiceOption) *fixture {
	t.Helper()

	f := &fixture{
		store:    &MockStore{},
		tokens:   &MockTokens{},
		otp:      &MockOtp{},
		notifier: &MockNotifier{},
		avatars:  &MockAvatarStorage{},
		queue:    &recordingQueue{},
		sink:     &recordingSink{},
		hasher:   account.NewBcryptHasher(bcrypt.MinCost),
		newID:    uuid.New(),
	}

	base := []account.ServiceOption{
		account.WithPasswordHasher(f.hasher),
		account.WithTokenService(f.tokens),
		account.WithOtpService(f.otp),
		account.WithNotifier(f.notifier),
		account.WithAvatarStorage(f.avatars),
		account.WithTaskQueue(f.queue),
		account.WithActivitySink(f.sink),
		account.WithLogger(testLogger{}),
		account.WithAvatarHosting("https://cdn.example.com/avatars"),
		account.WithIDGenerator(func() uuid.UUID { return f.newID }),
		account.WithClock(func() time.Time { return fixedNow }),
	}
	f.service = account.NewService(f.store, append(base, opts...)...)

	t.Cleanup(func() {
		f.store.AssertExpectations(t)
		f.tokens.AssertExpectations(t)
		f.otp.AssertExpectations(t)
		f.notifier.AssertExpectations(t)
		f.avatars.AssertExpectations(t)
	})
	return f
}

// hash returns a bcrypt hash of password at the fixture cost.
func (f *fixture) hash(t *testing.T, password string) string {
	t.Helper()
	h, err := f.hasher.HashPassword(password)
	require.NoError(t, err)
	return h
}

func activeAccount(t *testing.T, f *fixture, password string) *account.Account {
	return &account.Account{
		ID:             uuid.New(),
		Email:          "ada@example.com",
		PasswordHash:   f.hash(t, password),
		EmailConfirmed: true,
		FirstName:      "Ada",
		LastName:       "Lovelace",
		MobilePhone:    "+14155552671",
		Roles:          "{}",
	}
}

func actorOf(acc *account.Account) account.Actor {
	return account.Actor{ID: acc.ID}
}

func requireFieldError(t *testing.T, err error, field string) string {
	t.Helper()
	require.Error(t, err)
	verr, ok := account.AsValidationError(err)
	require.True(t, ok, "expected a validation error, got %v", err)
	msg := verr.Field(field)
	require.NotEmpty(t, msg, "expected an error on %q, got %v", field, verr.Fields)
	return msg
}
