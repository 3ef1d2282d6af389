package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

func TestLoad_FileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account.yaml")
	raw := `
server:
  address: ":9090"
persistence:
  driver: postgres
  dsn: postgres://localhost/accounts
auth:
  signing_key: ` + testSigningKey + `
  session_token_ttl: 2h
account:
  otp_ttl: 90s
  app_url: https://app.example.com/
s3:
  bucket: avatars
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "postgres", cfg.Persistence.Driver)
	assert.Equal(t, 2*time.Hour, cfg.Auth.SessionTokenTTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.RecoveryTokenTTL, "unset values keep defaults")
	assert.Equal(t, 90*time.Second, cfg.Account.OtpTTL)
	assert.Equal(t, "https://app.example.com", cfg.GetAppURL())
	assert.True(t, cfg.StorageEnabled())
	assert.False(t, cfg.MailEnabled())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  signing_key: "+testSigningKey+"\n"), 0o600))

	t.Setenv("ACCOUNT_SMTP_HOST", "smtp.example.com")
	t.Setenv("ACCOUNT_SMTP_PORT", "2525")
	t.Setenv("ACCOUNT_SEND_WELCOME_EMAIL", "false")
	t.Setenv("ACCOUNT_OTP_TTL", "2m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com", cfg.Mail.Host)
	assert.Equal(t, 2525, cfg.Mail.Port)
	assert.False(t, cfg.Account.SendWelcomeEmail)
	assert.Equal(t, 2*time.Minute, cfg.Account.OtpTTL)
	assert.True(t, cfg.MailEnabled())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryBadInput, richErr.Category)
}

func TestLoad_InvalidEnvValues(t *testing.T) {
	cases := map[string]string{
		"ACCOUNT_DB_DEBUG":        "maybe",
		"ACCOUNT_SMTP_PORT":       "twenty",
		"ACCOUNT_EMAIL_TOKEN_TTL": "soon",
	}

	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("ACCOUNT_SIGNING_KEY", testSigningKey)
			t.Setenv(name, value)

			_, err := Load("")
			require.Error(t, err)

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, goerrors.CategoryBadInput, richErr.Category)
		})
	}
}

func TestLoad_UnknownEnvIsIgnored(t *testing.T) {
	t.Setenv("ACCOUNT_SIGNING_KEY", testSigningKey)
	t.Setenv("ACCOUNT_NOT_A_SETTING", "x")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, testSigningKey, cfg.GetSigningKey())
	assert.Equal(t, "sqlite", cfg.Persistence.Driver)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "persistence.dsn", envKey("ACCOUNT_DB_DSN"))
	assert.Equal(t, "", envKey("ACCOUNT_UNKNOWN"))
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err, "defaults carry no signing key")

	cfg.Auth.SigningKey = testSigningKey
	require.NoError(t, cfg.Validate())

	cfg.Persistence.Driver = "mysql"
	require.Error(t, cfg.Validate())

	cfg.Persistence.Driver = "sqlite"
	cfg.Account.OtpTTL = 0
	require.Error(t, cfg.Validate())
}
