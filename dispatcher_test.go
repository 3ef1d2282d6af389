package account_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	account "github.com/goliatone/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type capturingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Info(string, ...any)  {}

func (l *capturingLogger) Warn(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, format)
}

func (l *capturingLogger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, format)
}

func (l *capturingLogger) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns), len(l.errors)
}

func TestDispatcher_RunsTasksAndDrainsOnClose(t *testing.T) {
	d := account.NewDispatcher(2, 16, account.WithDispatcherLogger(testLogger{}))

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.True(t, d.Submit("count", func(context.Context) error {
			ran.Add(1)
			return nil
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.Equal(t, int32(10), ran.Load())
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	logger := &capturingLogger{}
	d := account.NewDispatcher(1, 1, account.WithDispatcherLogger(logger))

	release := make(chan struct{})
	started := make(chan struct{})
	require.True(t, d.Submit("blocker", func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	require.True(t, d.Submit("queued", func(context.Context) error { return nil }))
	assert.False(t, d.Submit("dropped", func(context.Context) error { return nil }))

	warns, _ := logger.counts()
	assert.Equal(t, 1, warns)

	close(release)
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_RejectsAfterClose(t *testing.T) {
	d := account.NewDispatcher(1, 1, account.WithDispatcherLogger(testLogger{}))
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()), "close is idempotent")

	assert.False(t, d.Submit("late", func(context.Context) error { return nil }))
}

func TestDispatcher_LogsFailuresAndPanics(t *testing.T) {
	logger := &capturingLogger{}
	d := account.NewDispatcher(1, 4, account.WithDispatcherLogger(logger))

	d.Submit("fails", func(context.Context) error { return errors.New("smtp down") })
	d.Submit("panics", func(context.Context) error { panic("boom") })

	var after atomic.Bool
	d.Submit("after", func(context.Context) error {
		after.Store(true)
		return nil
	})

	require.NoError(t, d.Close(context.Background()))
	_, errs := logger.counts()
	assert.Equal(t, 2, errs)
	assert.True(t, after.Load(), "a panicking task does not kill the worker")
}

func TestDispatcher_TaskTimeout(t *testing.T) {
	d := account.NewDispatcher(1, 1,
		account.WithDispatcherLogger(testLogger{}),
		account.WithTaskTimeout(10*time.Millisecond),
	)

	done := make(chan error, 1)
	d.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		done <- ctx.Err()
		return ctx.Err()
	})

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("task context was not cancelled")
	}
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_ZeroBufferFallsBackToDefault(t *testing.T) {
	d := account.NewDispatcher(1, 0, account.WithDispatcherLogger(testLogger{}))

	release := make(chan struct{})
	started := make(chan struct{})
	require.True(t, d.Submit("blocker", func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	var ran atomic.Bool
	assert.True(t, d.Submit("queued", func(context.Context) error {
		ran.Store(true)
		return nil
	}), "a busy worker must not drop tasks when the buffer is left at zero")

	close(release)
	require.NoError(t, d.Close(context.Background()))
	assert.True(t, ran.Load())
}

// blockingNotifier holds ConfirmEmail until release is closed.
type blockingNotifier struct {
	MockNotifier
	called  chan account.ConfirmEmailNotice
	release chan struct{}
}

func (n *blockingNotifier) ConfirmEmail(ctx context.Context, notice account.ConfirmEmailNotice) error {
	n.called <- notice
	select {
	case <-n.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestNewService_DefaultQueueDoesNotBlockCaller(t *testing.T) {
	store := &MockStore{}
	store.On("FindOne", mock.Anything, mock.Anything).Return(nil, account.ErrAccountNotFound).Twice()
	store.On("Create", mock.Anything, mock.Anything).
		Return(func(_ context.Context, rec *account.Account) *account.Account { return rec }, nil).Once()

	notifier := &blockingNotifier{
		called:  make(chan account.ConfirmEmailNotice, 1),
		release: make(chan struct{}),
	}
	defer close(notifier.release)

	svc := account.NewService(store,
		account.WithPasswordHasher(account.NewBcryptHasher(bcrypt.MinCost)),
		account.WithTokenService(account.NewJWTTokens([]byte("0123456789abcdef0123456789abcdef"))),
		account.WithNotifier(notifier),
		account.WithLogger(testLogger{}),
	)

	done := make(chan error, 1)
	go func() {
		_, err := svc.SignUp(context.Background(), validSignUp())
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sign up waited on the confirmation mail")
	}

	select {
	case notice := <-notifier.called:
		assert.Equal(t, "ada@example.com", notice.Email)
		assert.NotEmpty(t, notice.Token)
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation mail was never handed off")
	}
	store.AssertExpectations(t)
}
