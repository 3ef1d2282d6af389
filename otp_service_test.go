package account_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	account "github.com/goliatone/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSMS struct {
	mu   sync.Mutex
	sent []string
	fail error
}

func (f *fakeSMS) SendSMS(_ context.Context, _ string, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, body)
	return nil
}

func (f *fakeSMS) lastCode(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	fields := strings.Fields(f.sent[len(f.sent)-1])
	return fields[len(fields)-1]
}

func newOtpService(t *testing.T, clock *testClock, sms *fakeSMS, opts ...account.OTPOption) *account.OTPService {
	t.Helper()
	base := []account.OTPOption{
		account.WithOtpClock(clock.Now),
		account.WithOtpLogger(testLogger{}),
	}
	return account.NewOTPService(newTestDB(t), sms, append(base, opts...)...)
}

const (
	otpKey   = "account-activation:test"
	otpPhone = "+14155552671"
)

func TestOTPService_SendAndConfirm(t *testing.T) {
	clock := &testClock{now: fixedNow}
	sms := &fakeSMS{}
	svc := newOtpService(t, clock, sms)
	ctx := context.Background()

	require.NoError(t, svc.Send(ctx, otpKey, time.Minute, otpPhone))
	code := sms.lastCode(t)
	assert.Len(t, code, 6)

	require.NoError(t, svc.Confirm(ctx, otpKey, otpPhone, code))

	err := svc.Confirm(ctx, otpKey, otpPhone, code)
	requireFieldError(t, err, "code")
}

func TestOTPService_Cooldown(t *testing.T) {
	clock := &testClock{now: fixedNow}
	sms := &fakeSMS{}
	svc := newOtpService(t, clock, sms)
	ctx := context.Background()

	require.NoError(t, svc.Send(ctx, otpKey, time.Minute, otpPhone))

	clock.Advance(30 * time.Second)
	require.ErrorIs(t, svc.Send(ctx, otpKey, time.Minute, otpPhone), account.ErrOtpCooldown)

	clock.Advance(31 * time.Second)
	require.NoError(t, svc.Send(ctx, otpKey, time.Minute, otpPhone))
	assert.Len(t, sms.sent, 2)
}

func TestOTPService_ResendReplacesCode(t *testing.T) {
	clock := &testClock{now: fixedNow}
	sms := &fakeSMS{}
	svc := newOtpService(t, clock, sms)
	ctx := context.Background()

	require.NoError(t, svc.Send(ctx, otpKey, time.Minute, otpPhone))
	first := sms.lastCode(t)

	clock.Advance(2 * time.Minute)
	require.NoError(t, svc.Send(ctx, otpKey, time.Minute, otpPhone))
	second := sms.lastCode(t)

	if first != second {
		requireFieldError(t, svc.Confirm(ctx, otpKey, otpPhone, first), "code")
	}
	require.NoError(t, svc.Confirm(ctx, otpKey, otpPhone, second))
}

func TestOTPService_Expired(t *testing.T) {
	clock := &testClock{now: fixedNow}
	sms := &fakeSMS{}
	svc := newOtpService(t, clock, sms)
	ctx := context.Background()

	require.NoError(t, svc.Send(ctx, otpKey, time.Minute, otpPhone))
	code := sms.lastCode(t)

	clock.Advance(time.Minute)
	assert.Equal(t, "code is invalid or expired", requireFieldError(t, svc.Confirm(ctx, otpKey, otpPhone, code), "code"))
}

func TestOTPService_AttemptsExhausted(t *testing.T) {
	clock := &testClock{now: fixedNow}
	sms := &fakeSMS{}
	svc := newOtpService(t, clock, sms, account.WithOtpMaxAttempts(2))
	ctx := context.Background()

	require.NoError(t, svc.Send(ctx, otpKey, time.Minute, otpPhone))
	code := sms.lastCode(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	requireFieldError(t, svc.Confirm(ctx, otpKey, otpPhone, wrong), "code")
	requireFieldError(t, svc.Confirm(ctx, otpKey, otpPhone, wrong), "code")
	requireFieldError(t, svc.Confirm(ctx, otpKey, otpPhone, code), "code")

	// The exhausted record is gone, so a new code can be requested at once.
	require.NoError(t, svc.Send(ctx, otpKey, time.Minute, otpPhone))
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestOTPService_LastAttemptStillAccepted(t *testing.T) {
	clock := &testClock{now: fixedNow}
	sms := &fakeSMS{}
	svc := newOtpService(t, clock, sms, account.WithOtpMaxAttempts(2))
	ctx := context.Background()

	require.NoError(t, svc.Send(ctx, otpKey, time.Minute, otpPhone))
	code := sms.lastCode(t)

	requireFieldError(t, svc.Confirm(ctx, otpKey, otpPhone, wrongCode(code)), "code")
	require.NoError(t, svc.Confirm(ctx, otpKey, otpPhone, code))
}

func TestOTPService_ConcurrentGuessesShareTheCap(t *testing.T) {
	clock := &testClock{now: fixedNow}
	sms := &fakeSMS{}
	svc := newOtpService(t, clock, sms, account.WithOtpMaxAttempts(3))
	ctx := context.Background()

	require.NoError(t, svc.Send(ctx, otpKey, time.Minute, otpPhone))
	code := sms.lastCode(t)
	wrong := wrongCode(code)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.Confirm(ctx, otpKey, otpPhone, wrong)
		}()
	}
	wg.Wait()

	requireFieldError(t, svc.Confirm(ctx, otpKey, otpPhone, code), "code")
}

func TestOTPService_OtherDestinationRejected(t *testing.T) {
	clock := &testClock{now: fixedNow}
	sms := &fakeSMS{}
	svc := newOtpService(t, clock, sms)
	ctx := context.Background()

	require.NoError(t, svc.Send(ctx, otpKey, time.Minute, otpPhone))
	code := sms.lastCode(t)

	requireFieldError(t, svc.Confirm(ctx, otpKey, "+442071838750", code), "code")

	// The stale code is dropped, so the new number can get one right away.
	require.NoError(t, svc.Send(ctx, otpKey, time.Minute, "+442071838750"))
	requireFieldError(t, svc.Confirm(ctx, otpKey, otpPhone, code), "code")
}

func TestOTPService_UnknownKey(t *testing.T) {
	svc := newOtpService(t, &testClock{now: fixedNow}, &fakeSMS{})
	requireFieldError(t, svc.Confirm(context.Background(), "missing", otpPhone, "123456"), "code")
}

func TestOTPService_DeliveryFailureAllowsRetry(t *testing.T) {
	clock := &testClock{now: fixedNow}
	sms := &fakeSMS{fail: errors.New("gateway down")}
	svc := newOtpService(t, clock, sms)
	ctx := context.Background()

	err := svc.Send(ctx, otpKey, time.Minute, otpPhone)
	require.Error(t, err)
	assert.NotErrorIs(t, err, account.ErrOtpCooldown)

	sms.fail = nil
	require.NoError(t, svc.Send(ctx, otpKey, time.Minute, otpPhone))
}

func TestOTPService_CustomMessage(t *testing.T) {
	sms := &fakeSMS{}
	svc := newOtpService(t, &testClock{now: fixedNow}, sms,
		account.WithOtpMessage("Code: %s"),
	)

	require.NoError(t, svc.Send(context.Background(), otpKey, time.Minute, otpPhone))
	require.Len(t, sms.sent, 1)
	assert.True(t, strings.HasPrefix(sms.sent[0], "Code: "))
}
