package account

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"github.com/uptrace/bun"
)

const (
	DefaultOtpDigits      = otp.DigitsSix
	DefaultOtpMaxAttempts = 5

	msgOtpInvalid = "code is invalid or expired"
)

// OtpRecord is the pending code for one key. The code itself is never
// stored, only the secret it derives from.
type OtpRecord struct {
	bun.BaseModel `bun:"table:account_otps,alias:otp"`

	Key         string    `bun:"otp_key,pk"`
	Secret      string    `bun:"secret,notnull"`
	Destination string    `bun:"destination,notnull"`
	Attempts    int       `bun:"attempts,notnull,default:0"`
	ExpiresAt   time.Time `bun:"expires_at,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// SMSSender delivers text messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// LogSMSSender writes messages to the log instead of a gateway.
type LogSMSSender struct {
	Logger Logger
}

func (s LogSMSSender) SendSMS(_ context.Context, to, body string) error {
	logger := s.Logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Info("sms to %s: %s", to, body)
	return nil
}

// OTPService implements OtpService with HOTP codes derived from a fresh
// secret per send. A code is single use, expires with its ttl, and a
// new one cannot be requested for the same key until then.
type OTPService struct {
	db          bun.IDB
	sms         SMSSender
	digits      otp.Digits
	maxAttempts int
	message     string
	now         func() time.Time
	logger      Logger
}

var _ OtpService = (*OTPService)(nil)

type OTPOption func(*OTPService)

func WithOtpDigits(d otp.Digits) OTPOption {
	return func(s *OTPService) { s.digits = d }
}

func WithOtpMaxAttempts(n int) OTPOption {
	return func(s *OTPService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithOtpMessage sets the SMS text; it must contain one %s for the code.
func WithOtpMessage(format string) OTPOption {
	return func(s *OTPService) { s.message = format }
}

func WithOtpClock(now func() time.Time) OTPOption {
	return func(s *OTPService) {
		if now != nil {
			s.now = now
		}
	}
}

func WithOtpLogger(l Logger) OTPOption {
	return func(s *OTPService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewOTPService(db bun.IDB, sms SMSSender, opts ...OTPOption) *OTPService {
	s := &OTPService{
		db:          db,
		sms:         sms,
		digits:      DefaultOtpDigits,
		maxAttempts: DefaultOtpMaxAttempts,
		message:     "Your activation code is %s",
		now:         time.Now,
		logger:      defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.sms == nil {
		s.sms = LogSMSSender{Logger: s.logger}
	}
	return s
}

func (s *OTPService) Send(ctx context.Context, key string, ttl time.Duration, destination string) error {
	now := s.now().UTC()

	existing, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	if existing != nil && now.Before(existing.ExpiresAt) {
		return ErrOtpCooldown
	}

	generated, err := hotp.Generate(hotp.GenerateOpts{
		Issuer:      "account",
		AccountName: key,
		Digits:      s.digits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate otp secret")
	}

	code, err := hotp.GenerateCodeCustom(generated.Secret(), 0, s.validateOpts())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate otp code")
	}

	record := &OtpRecord{
		Key:         key,
		Secret:      generated.Secret(),
		Destination: destination,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}

	_, err = s.db.NewInsert().
		Model(record).
		On("CONFLICT (otp_key) DO UPDATE").
		Set("secret = EXCLUDED.secret").
		Set("destination = EXCLUDED.destination").
		Set("attempts = 0").
		Set("expires_at = EXCLUDED.expires_at").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store otp")
	}

	if err := s.sms.SendSMS(ctx, destination, fmt.Sprintf(s.message, code)); err != nil {
		// Drop the record so the caller is not locked out by a code
		// that was never delivered.
		if derr := s.delete(ctx, key); derr != nil {
			s.logger.Error("failed to drop undelivered otp %s: %v", key, derr)
		}
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver otp")
	}

	return nil
}

// Confirm redeems the code sent for key. The code only counts for the
// destination it was sent to, and every call spends one attempt before
// the code is checked.
func (s *OTPService) Confirm(ctx context.Context, key, destination, code string) error {
	record, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	if record == nil {
		return fieldError("code", msgOtpInvalid)
	}

	if !s.now().UTC().Before(record.ExpiresAt) || record.Destination != destination {
		if err := s.delete(ctx, key); err != nil {
			return err
		}
		return fieldError("code", msgOtpInvalid)
	}

	res, err := s.db.NewUpdate().
		Model((*OtpRecord)(nil)).
		Set("attempts = attempts + 1").
		Where("otp_key = ?", key).
		Where("secret = ?", record.Secret).
		Where("attempts < ?", s.maxAttempts).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count otp attempt")
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		if err := s.delete(ctx, key); err != nil {
			return err
		}
		return fieldError("code", msgOtpInvalid)
	}

	valid, err := hotp.ValidateCustom(code, 0, record.Secret, s.validateOpts())
	if err != nil || !valid {
		return fieldError("code", msgOtpInvalid)
	}

	// Consume on the secret so a concurrent redemption cannot succeed twice.
	res, err = s.db.NewDelete().
		Model((*OtpRecord)(nil)).
		Where("otp_key = ?", key).
		Where("secret = ?", record.Secret).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume otp")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fieldError("code", msgOtpInvalid)
	}

	return nil
}

func (s *OTPService) validateOpts() hotp.ValidateOpts {
	return hotp.ValidateOpts{
		Digits:    s.digits,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func (s *OTPService) get(ctx context.Context, key string) (*OtpRecord, error) {
	record := &OtpRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("otp_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load otp")
	}
	return record, nil
}

func (s *OTPService) delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*OtpRecord)(nil)).
		Where("otp_key = ?", key).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete otp")
	}
	return nil
}
