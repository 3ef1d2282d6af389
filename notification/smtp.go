package notification

import (
	"context"

	account "github.com/goliatone/go-account"
	goerrors "github.com/goliatone/go-errors"
	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers envelopes through an SMTP relay.
type SMTPSender struct {
	client *mail.Client
	from   string
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create smtp client")
	}
	return &SMTPSender{client: client, from: cfg.From}, nil
}

func (s *SMTPSender) Send(ctx context.Context, envelope Envelope) error {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "invalid sender address")
	}
	if err := msg.To(envelope.To); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid recipient address")
	}
	msg.Subject(envelope.Subject)
	msg.SetBodyString(mail.TypeTextPlain, envelope.Text)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send mail")
	}
	return nil
}

// LogSender writes envelopes to a logger. Used when no relay is set up.
type LogSender struct {
	Logger account.Logger
}

func (s LogSender) Send(_ context.Context, envelope Envelope) error {
	logger := account.ResolveLogger("mailer", nil, s.Logger)
	logger.Info("mail to %s subject=%q\n%s", envelope.To, envelope.Subject, envelope.Text)
	return nil
}
