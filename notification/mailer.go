package notification

import (
	"context"
	"net/url"
	"strings"

	"github.com/flosch/pongo2/v6"
	account "github.com/goliatone/go-account"
	goerrors "github.com/goliatone/go-errors"
)

// Envelope is a rendered email ready for delivery.
type Envelope struct {
	To      string
	Subject string
	Text    string
}

// Sender delivers envelopes.
type Sender interface {
	Send(ctx context.Context, envelope Envelope) error
}

// Links holds the absolute URLs the mails point to. The token is added
// as a query parameter.
type Links struct {
	RestorePassword string
	ConfirmEmail    string
	SignIn          string
}

// Mailer implements account.Notifier by rendering pongo2 templates and
// handing the result to a Sender.
type Mailer struct {
	sender    Sender
	links     Links
	templates map[string]mailTemplate
	logger    account.Logger
}

var _ account.Notifier = (*Mailer)(nil)

type MailerOption func(*Mailer)

func WithMailerLogger(l account.Logger) MailerOption {
	return func(m *Mailer) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTemplate replaces the subject and body template of one mail kind.
func WithTemplate(kind, subject, body string) MailerOption {
	return func(m *Mailer) {
		m.templates[kind] = mustTemplate(subject, body)
	}
}

func NewMailer(sender Sender, links Links, opts ...MailerOption) *Mailer {
	m := &Mailer{
		sender:    sender,
		links:     links,
		templates: defaultTemplates(),
		logger:    account.ResolveLogger("mailer", nil, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m *Mailer) RestorePassword(ctx context.Context, notice account.RestorePasswordNotice) error {
	return m.deliver(ctx, KindRestorePassword, notice.Email, pongo2.Context{
		"email": notice.Email,
		"link":  withToken(m.links.RestorePassword, notice.Token),
	})
}

func (m *Mailer) ConfirmEmail(ctx context.Context, notice account.ConfirmEmailNotice) error {
	return m.deliver(ctx, KindConfirmEmail, notice.Email, pongo2.Context{
		"email":      notice.Email,
		"first_name": notice.FirstName,
		"link":       withToken(m.links.ConfirmEmail, notice.Token),
	})
}

func (m *Mailer) SignUpSuccess(ctx context.Context, notice account.SignUpSuccessNotice) error {
	return m.deliver(ctx, KindSignUpSuccess, notice.Email, pongo2.Context{
		"email":      notice.Email,
		"first_name": notice.FirstName,
		"link":       m.links.SignIn,
	})
}

func (m *Mailer) PasswordChanged(ctx context.Context, notice account.PasswordChangedNotice) error {
	return m.deliver(ctx, KindPasswordChanged, notice.Email, pongo2.Context{
		"email": notice.Email,
		"link":  m.links.RestorePassword,
	})
}

func (m *Mailer) deliver(ctx context.Context, kind, to string, data pongo2.Context) error {
	envelope, err := m.Render(kind, to, data)
	if err != nil {
		return err
	}
	m.logger.Debug("sending %s mail to %s", kind, to)
	return m.sender.Send(ctx, envelope)
}

// Render builds the envelope of one mail kind.
func (m *Mailer) Render(kind, to string, data pongo2.Context) (Envelope, error) {
	tpl, ok := m.templates[kind]
	if !ok {
		return Envelope{}, goerrors.New("unknown mail template", goerrors.CategoryInternal).
			WithMetadata(map[string]any{"kind": kind})
	}

	subject, err := tpl.subject.Execute(data)
	if err != nil {
		return Envelope{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render mail subject")
	}
	text, err := tpl.body.Execute(data)
	if err != nil {
		return Envelope{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render mail body")
	}

	return Envelope{
		To:      to,
		Subject: strings.TrimSpace(subject),
		Text:    text,
	}, nil
}

func withToken(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
