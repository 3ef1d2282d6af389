package notification

import (
	"github.com/flosch/pongo2/v6"
)

const (
	KindRestorePassword = "restore_password"
	KindConfirmEmail    = "confirm_email"
	KindSignUpSuccess   = "sign_up_success"
	KindPasswordChanged = "password_changed"
)

type mailTemplate struct {
	subject *pongo2.Template
	body    *pongo2.Template
}

// mustTemplate compiles plain text templates; HTML escaping is off.
func mustTemplate(subject, body string) mailTemplate {
	return mailTemplate{
		subject: pongo2.Must(pongo2.FromString(plain(subject))),
		body:    pongo2.Must(pongo2.FromString(plain(body))),
	}
}

func plain(tpl string) string {
	return "{% autoescape off %}" + tpl + "{% endautoescape %}"
}

func defaultTemplates() map[string]mailTemplate {
	return map[string]mailTemplate{
		KindRestorePassword: mustTemplate(
			"Restore your password",
			`Hello,

We received a request to restore the password of {{ email }}.
Follow the link below to choose a new one:

{{ link }}

If you did not ask for this, you can ignore this message.
`),
		KindConfirmEmail: mustTemplate(
			"Confirm your email",
			`Hello {{ first_name }},

Please confirm your email address by following the link below:

{{ link }}
`),
		KindSignUpSuccess: mustTemplate(
			"Welcome aboard",
			`Hello {{ first_name }},

Your email {{ email }} is confirmed and your account is ready.
{% if link %}
Sign in at {{ link }}
{% endif %}`),
		KindPasswordChanged: mustTemplate(
			"Your password was changed",
			`Hello,

The password of {{ email }} was just changed.
If this was not you, restore access right away:

{{ link }}
`),
	}
}
