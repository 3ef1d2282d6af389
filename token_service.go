package account

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	DefaultRecoveryTokenTTL = 24 * time.Hour
	DefaultEmailTokenTTL    = 72 * time.Hour
	DefaultSessionTokenTTL  = 24 * time.Hour

	purposeRecovery = "password_recovery"
	purposeEmail    = "email_confirmation"
	purposeSession  = "session"
)

var errTokenPurpose = errors.New("token was issued for another purpose", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

type purposeClaims interface {
	jwt.Claims
	purpose() string
}

type recoveryClaims struct {
	jwt.RegisteredClaims
	Purpose      string `json:"pur"`
	Email        string `json:"email"`
	PasswordHash string `json:"pwh"`
}

func (c *recoveryClaims) purpose() string { return c.Purpose }

type emailClaims struct {
	jwt.RegisteredClaims
	Purpose string `json:"pur"`
	Email   string `json:"email"`
}

func (c *emailClaims) purpose() string { return c.Purpose }

type sessionClaims struct {
	jwt.RegisteredClaims
	Purpose   string   `json:"pur"`
	Roles     []string `json:"roles"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	AvatarURL *string  `json:"avatar_url,omitempty"`
}

func (c *sessionClaims) purpose() string { return c.Purpose }

// JWTTokens signs every account token with HS256. Each token carries a
// purpose claim so a token minted for one flow is rejected by the others.
type JWTTokens struct {
	signingKey  []byte
	issuer      string
	recoveryTTL time.Duration
	emailTTL    time.Duration
	sessionTTL  time.Duration
	now         func() time.Time
	logger      Logger
}

type TokenOption func(*JWTTokens)

func WithTokenIssuer(issuer string) TokenOption {
	return func(t *JWTTokens) { t.issuer = issuer }
}

func WithRecoveryTokenTTL(ttl time.Duration) TokenOption {
	return func(t *JWTTokens) {
		if ttl > 0 {
			t.recoveryTTL = ttl
		}
	}
}

func WithEmailTokenTTL(ttl time.Duration) TokenOption {
	return func(t *JWTTokens) {
		if ttl > 0 {
			t.emailTTL = ttl
		}
	}
}

func WithSessionTokenTTL(ttl time.Duration) TokenOption {
	return func(t *JWTTokens) {
		if ttl > 0 {
			t.sessionTTL = ttl
		}
	}
}

func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *JWTTokens) {
		if now != nil {
			t.now = now
		}
	}
}

func WithTokenLogger(l Logger) TokenOption {
	return func(t *JWTTokens) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewJWTTokens creates a token service signing with signingKey
func NewJWTTokens(signingKey []byte, opts ...TokenOption) *JWTTokens {
	t := &JWTTokens{
		signingKey:  signingKey,
		recoveryTTL: DefaultRecoveryTokenTTL,
		emailTTL:    DefaultEmailTokenTTL,
		sessionTTL:  DefaultSessionTokenTTL,
		now:         time.Now,
		logger:      defLogger{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *JWTTokens) IssueRecoveryToken(payload RecoveryPayload) (string, error) {
	claims := &recoveryClaims{
		RegisteredClaims: t.registered(payload.Email, t.recoveryTTL),
		Purpose:          purposeRecovery,
		Email:            payload.Email,
		PasswordHash:     payload.PasswordHash,
	}
	return t.sign(claims)
}

func (t *JWTTokens) VerifyRecoveryToken(token string) (RecoveryPayload, error) {
	claims := &recoveryClaims{}
	if err := t.parse(token, claims, purposeRecovery); err != nil {
		return RecoveryPayload{}, err
	}
	return RecoveryPayload{Email: claims.Email, PasswordHash: claims.PasswordHash}, nil
}

func (t *JWTTokens) IssueEmailToken(payload EmailConfirmationPayload) (string, error) {
	claims := &emailClaims{
		RegisteredClaims: t.registered(payload.ID.String(), t.emailTTL),
		Purpose:          purposeEmail,
		Email:            payload.Email,
	}
	return t.sign(claims)
}

func (t *JWTTokens) VerifyEmailToken(token string) (EmailConfirmationPayload, error) {
	claims := &emailClaims{}
	if err := t.parse(token, claims, purposeEmail); err != nil {
		return EmailConfirmationPayload{}, err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return EmailConfirmationPayload{}, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}
	if claims.Email == "" {
		return EmailConfirmationPayload{}, ErrTokenMalformed
	}
	return EmailConfirmationPayload{ID: id, Email: claims.Email}, nil
}

// IssueSessionToken signs a sign in payload and returns its expiry.
func (t *JWTTokens) IssueSessionToken(payload SessionPayload) (string, time.Time, error) {
	registered := t.registered(payload.ID.String(), t.sessionTTL)
	claims := &sessionClaims{
		RegisteredClaims: registered,
		Purpose:          purposeSession,
		Roles:            payload.Roles,
		FirstName:        payload.FirstName,
		LastName:         payload.LastName,
		AvatarURL:        payload.AvatarURL,
	}
	token, err := t.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, registered.ExpiresAt.Time, nil
}

func (t *JWTTokens) VerifySessionToken(token string) (SessionPayload, error) {
	claims := &sessionClaims{}
	if err := t.parse(token, claims, purposeSession); err != nil {
		return SessionPayload{}, err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return SessionPayload{}, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}
	return SessionPayload{
		ID:        id,
		Roles:     claims.Roles,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		AvatarURL: claims.AvatarURL,
	}, nil
}

func (t *JWTTokens) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := t.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    t.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (t *JWTTokens) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(t.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

func (t *JWTTokens) parse(token string, claims purposeClaims, purpose string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	_, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.signingKey, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		t.logger.Debug("token rejected: %v", err)
		return errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	if claims.purpose() != purpose {
		return errTokenPurpose
	}
	return nil
}

var (
	_ TokenService  = (*JWTTokens)(nil)
	_ SessionTokens = (*JWTTokens)(nil)
)
