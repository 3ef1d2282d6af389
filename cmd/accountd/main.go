package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	account "github.com/goliatone/go-account"
	"github.com/goliatone/go-account/config"
	"github.com/goliatone/go-account/notification"
	"github.com/goliatone/go-account/storage"
	"github.com/goliatone/go-command/dispatcher"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "accountd",
		Short:         "Account management service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("ACCOUNT_CONFIG"), "path to the YAML config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				return serve(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create the account tables",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				db, err := openDB(cfg.Persistence)
				if err != nil {
					return err
				}
				defer db.Close()
				return account.Migrate(cmd.Context(), db)
			},
		},
		&cobra.Command{
			Use:   "resend-confirmation EMAIL",
			Short: "Mail a fresh confirmation link to an unconfirmed address",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withService(cmd.Context(), configPath, func(ctx context.Context) error {
					return dispatcher.Dispatch(ctx, account.ResendEmailConfirmationMessage{Email: args[0]})
				})
			},
		},
		&cobra.Command{
			Use:   "request-recovery EMAIL",
			Short: "Mail a password recovery link",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withService(cmd.Context(), configPath, func(ctx context.Context) error {
					return dispatcher.Dispatch(ctx, account.RequestPasswordRecoveryMessage{Email: args[0]})
				})
			},
		},
		&cobra.Command{
			Use:   "config",
			Short: "Print the resolved configuration without secrets",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), print.MaybePrettyJSON(cfg))
				return nil
			},
		},
	)

	return root
}

func newZap(cfg config.Logging) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid log level")
	}
	zcfg.Level = level
	return zcfg.Build()
}

func openDB(cfg config.Persistence) (*bun.DB, error) {
	var db *bun.DB
	switch cfg.Driver {
	case "postgres":
		sqldb, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open postgres")
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite")
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db, nil
}

// app holds the wired service and what must be closed after it.
type app struct {
	service  *account.Service
	tokens   *account.JWTTokens
	queue    *account.Dispatcher
	db       *bun.DB
	zap      *zap.Logger
	provider account.LoggerProvider
	logger   account.Logger
}

// close drains queued mails before the database goes away.
func (a *app) close(ctx context.Context) {
	if err := a.queue.Close(ctx); err != nil {
		a.logger.Error("dispatcher drain: %v", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("database close: %v", err)
	}
	_ = a.zap.Sync()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	zl, err := newZap(cfg.Logging)
	if err != nil {
		return nil, err
	}

	provider := account.NewZapLoggerProvider(zl)
	logger := provider.GetLogger("accountd")

	db, err := openDB(cfg.Persistence)
	if err != nil {
		return nil, err
	}

	if err := account.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	tokens := account.NewJWTTokens([]byte(cfg.GetSigningKey()),
		account.WithTokenIssuer(cfg.Auth.Issuer),
		account.WithSessionTokenTTL(cfg.Auth.SessionTokenTTL),
		account.WithRecoveryTokenTTL(cfg.Auth.RecoveryTokenTTL),
		account.WithEmailTokenTTL(cfg.Auth.EmailTokenTTL),
		account.WithTokenLogger(provider.GetLogger("tokens")),
	)

	otps := account.NewOTPService(db,
		account.LogSMSSender{Logger: provider.GetLogger("sms")},
		account.WithOtpLogger(provider.GetLogger("otp")),
	)

	var sender notification.Sender = notification.LogSender{Logger: provider.GetLogger("mailer")}
	if cfg.MailEnabled() {
		smtp, err := notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
		if err != nil {
			db.Close()
			return nil, err
		}
		sender = smtp
	}
	mailer := notification.NewMailer(sender, notification.Links{
		RestorePassword: cfg.GetAppURL() + "/restore-password",
		ConfirmEmail:    cfg.GetAPIURL() + "/accounts/email/confirm",
		SignIn:          cfg.GetAppURL() + "/sign-in",
	}, notification.WithMailerLogger(provider.GetLogger("mailer")))

	var avatars account.AvatarStorage = storage.Unavailable{}
	avatarHosting := cfg.Account.AvatarHosting
	if cfg.StorageEnabled() {
		s3cfg := storage.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PublicURL: cfg.S3.PublicURL,
		}
		bucket, err := storage.NewS3FromConfig(ctx, s3cfg, storage.WithLogger(provider.GetLogger("storage")))
		if err != nil {
			db.Close()
			return nil, err
		}
		avatars = bucket
		if avatarHosting == "" {
			avatarHosting = storage.PublicURL(s3cfg)
		}
	} else {
		logger.Warn("no avatar bucket configured, uploads are disabled")
	}

	queue := account.NewDispatcher(
		cfg.Account.DispatcherWorkers,
		cfg.Account.DispatcherBuffer,
		account.WithDispatcherLogger(provider.GetLogger("dispatcher")),
	)

	policy := account.DefaultPolicy()
	policy.SendWelcomeEmail = cfg.Account.SendWelcomeEmail
	policy.ReconfirmEmailAfterChange = cfg.Account.ReconfirmEmailAfterChange
	policy.OtpTTL = cfg.Account.OtpTTL
	policy.AvatarMaxSize = cfg.Account.AvatarMaxSize
	if avatarHosting != "" {
		policy.AvatarHosting = avatarHosting
	}

	service := account.NewService(account.NewBunStore(db),
		account.WithPasswordHasher(account.NewBcryptHasher(cfg.Auth.BcryptCost)),
		account.WithTokenService(tokens),
		account.WithOtpService(otps),
		account.WithNotifier(mailer),
		account.WithAvatarStorage(avatars),
		account.WithTaskQueue(queue),
		account.WithActivitySink(account.LogActivitySink{Logger: provider.GetLogger("activity")}),
		account.WithLoggerProvider(provider),
		account.WithPolicy(policy),
	)
	service.Subscribe()

	return &app{
		service:  service,
		tokens:   tokens,
		queue:    queue,
		db:       db,
		zap:      zl,
		provider: provider,
		logger:   logger,
	}, nil
}

// withService runs fn against a wired service, for one-off operator
// commands dispatched through go-command.
func withService(ctx context.Context, configPath string, fn func(ctx context.Context) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	err = fn(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	a.close(closeCtx)
	return err
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	logger := a.logger

	server := fiber.New(fiber.Config{
		AppName:               "accountd",
		DisableStartupMessage: true,
		BodyLimit:             cfg.Account.AvatarMaxSize + 1024*1024,
	})
	account.NewHTTPController(a.service, a.tokens,
		account.WithAppURL(cfg.GetAppURL()),
		account.WithControllerLogger(a.provider.GetLogger("http")),
	).Register(server)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.Server.Address)
		errc <- server.Listen(cfg.Server.Address)
	}()

	var serveErr error
	select {
	case err := <-errc:
		if err != nil {
			serveErr = goerrors.Wrap(err, goerrors.CategoryInternal, "http server stopped")
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("http shutdown: %v", err)
	}
	a.close(shutdownCtx)
	return serveErr
}
