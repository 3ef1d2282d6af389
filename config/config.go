package config

import (
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "ACCOUNT_"

type Config struct {
	Server      Server      `yaml:"server" json:"server"`
	Persistence Persistence `yaml:"persistence" json:"persistence"`
	Auth        Auth        `yaml:"auth" json:"auth"`
	Account     Account     `yaml:"account" json:"account"`
	Mail        Mail        `yaml:"mail" json:"mail"`
	S3          S3          `yaml:"s3" json:"s3"`
	Logging     Logging     `yaml:"logging" json:"logging"`
}

type Server struct {
	Address         string        `yaml:"address" json:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type Persistence struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
	Debug  bool   `yaml:"debug" json:"debug"`
}

type Auth struct {
	SigningKey       string        `yaml:"signing_key" json:"-"`
	Issuer           string        `yaml:"issuer" json:"issuer"`
	SessionTokenTTL  time.Duration `yaml:"session_token_ttl" json:"session_token_ttl"`
	RecoveryTokenTTL time.Duration `yaml:"recovery_token_ttl" json:"recovery_token_ttl"`
	EmailTokenTTL    time.Duration `yaml:"email_token_ttl" json:"email_token_ttl"`
	BcryptCost       int           `yaml:"bcrypt_cost" json:"bcrypt_cost"`
}

type Account struct {
	SendWelcomeEmail          bool          `yaml:"send_welcome_email" json:"send_welcome_email"`
	ReconfirmEmailAfterChange bool          `yaml:"reconfirm_email_after_change" json:"reconfirm_email_after_change"`
	OtpTTL                    time.Duration `yaml:"otp_ttl" json:"otp_ttl"`
	AppURL                    string        `yaml:"app_url" json:"app_url"`
	APIURL                    string        `yaml:"api_url" json:"api_url"`
	AvatarHosting             string        `yaml:"avatar_hosting" json:"avatar_hosting"`
	AvatarMaxSize             int           `yaml:"avatar_max_size" json:"avatar_max_size"`
	DispatcherWorkers         int           `yaml:"dispatcher_workers" json:"dispatcher_workers"`
	DispatcherBuffer          int           `yaml:"dispatcher_buffer" json:"dispatcher_buffer"`
}

type Mail struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	From     string `yaml:"from" json:"from"`
}

type S3 struct {
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"-"`
	SecretKey string `yaml:"secret_key" json:"-"`
	PublicURL string `yaml:"public_url" json:"public_url"`
}

type Logging struct {
	Level       string `yaml:"level" json:"level"`
	Development bool   `yaml:"development" json:"development"`
}

func Defaults() *Config {
	return &Config{
		Server: Server{
			Address:         ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Persistence: Persistence{
			Driver: "sqlite",
			DSN:    "file:account.db?cache=shared",
		},
		Auth: Auth{
			Issuer:           "go-account",
			SessionTokenTTL:  24 * time.Hour,
			RecoveryTokenTTL: 24 * time.Hour,
			EmailTokenTTL:    72 * time.Hour,
		},
		Account: Account{
			SendWelcomeEmail:          true,
			ReconfirmEmailAfterChange: true,
			OtpTTL:                    60 * time.Second,
			AppURL:                    "http://localhost:8080",
			APIURL:                    "http://localhost:8080",
			AvatarMaxSize:             3 * 1024 * 1024,
			DispatcherWorkers:         4,
			DispatcherBuffer:          256,
		},
		Mail: Mail{
			Port: 587,
			From: "no-reply@localhost",
		},
		S3: S3{
			Region: "us-east-1",
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// envKeys maps ACCOUNT_* variables onto config paths.
var envKeys = map[string]string{
	"SERVER_ADDRESS":               "server.address",
	"DB_DRIVER":                    "persistence.driver",
	"DB_DSN":                       "persistence.dsn",
	"DB_DEBUG":                     "persistence.debug",
	"SIGNING_KEY":                  "auth.signing_key",
	"TOKEN_ISSUER":                 "auth.issuer",
	"SESSION_TOKEN_TTL":            "auth.session_token_ttl",
	"RECOVERY_TOKEN_TTL":           "auth.recovery_token_ttl",
	"EMAIL_TOKEN_TTL":              "auth.email_token_ttl",
	"BCRYPT_COST":                  "auth.bcrypt_cost",
	"SEND_WELCOME_EMAIL":           "account.send_welcome_email",
	"RECONFIRM_EMAIL_AFTER_CHANGE": "account.reconfirm_email_after_change",
	"OTP_TTL":                      "account.otp_ttl",
	"APP_URL":                      "account.app_url",
	"API_URL":                      "account.api_url",
	"AVATAR_HOSTING":               "account.avatar_hosting",
	"AVATAR_MAX_SIZE":              "account.avatar_max_size",
	"SMTP_HOST":                    "mail.host",
	"SMTP_PORT":                    "mail.port",
	"SMTP_USERNAME":                "mail.username",
	"SMTP_PASSWORD":                "mail.password",
	"SMTP_FROM":                    "mail.from",
	"S3_BUCKET":                    "s3.bucket",
	"S3_REGION":                    "s3.region",
	"S3_ENDPOINT":                  "s3.endpoint",
	"S3_ACCESS_KEY":                "s3.access_key",
	"S3_SECRET_KEY":                "s3.secret_key",
	"S3_PUBLIC_URL":                "s3.public_url",
	"LOG_LEVEL":                    "logging.level",
	"LOG_DEVELOPMENT":              "logging.development",
}

// envKey translates a variable name to its config path. Unknown
// variables map to "" and are skipped by the provider.
func envKey(name string) string {
	return envKeys[strings.TrimPrefix(name, envPrefix)]
}

// Load reads path over the defaults and applies ACCOUNT_* environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read environment")
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid configuration value")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var problems []string

	switch c.Persistence.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("persistence.driver %q must be sqlite or postgres", c.Persistence.Driver))
	}
	if c.Persistence.DSN == "" {
		problems = append(problems, "persistence.dsn is required")
	}
	if len(c.Auth.SigningKey) < 32 {
		problems = append(problems, "auth.signing_key must be at least 32 characters")
	}
	if c.Account.OtpTTL <= 0 {
		problems = append(problems, "account.otp_ttl must be positive")
	}
	if c.Account.AvatarMaxSize <= 0 {
		problems = append(problems, "account.avatar_max_size must be positive")
	}

	if len(problems) > 0 {
		return goerrors.New("invalid configuration", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"problems": problems})
	}
	return nil
}

func (c *Config) GetSigningKey() string { return c.Auth.SigningKey }

func (c *Config) GetAppURL() string { return strings.TrimRight(c.Account.AppURL, "/") }

func (c *Config) GetAPIURL() string { return strings.TrimRight(c.Account.APIURL, "/") }

// MailEnabled reports whether an SMTP relay is configured.
func (c *Config) MailEnabled() bool { return c.Mail.Host != "" }

// StorageEnabled reports whether an avatar bucket is configured.
func (c *Config) StorageEnabled() bool { return c.S3.Bucket != "" }
