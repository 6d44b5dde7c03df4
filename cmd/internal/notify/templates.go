package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

type emailData struct {
	Name    string
	Link    string
	Minutes int
}

type emailTemplate struct {
	subject string
	html    *template.Template
	text    string
}

var (
	verifyEmailTmpl = emailTemplate{
		subject: "Verify your email address",
		html: template.Must(template.New("verify").Parse(
			`<p>Please confirm your email address to finish setting up your account.</p>` +
				`<p><a href="{{.Link}}">Verify email</a></p>`)),
		text: "Please confirm your email address: %s",
	}

	passwordResetTmpl = emailTemplate{
		subject: "Reset your password",
		html: template.Must(template.New("reset").Parse(
			`<p>We received a request to reset your password. The link expires in {{.Minutes}} minutes.</p>` +
				`<p><a href="{{.Link}}">Reset password</a></p>` +
				`<p>If you did not ask for this, you can ignore this email.</p>`)),
		text: "Reset your password: %s",
	}

	otpLoginTmpl = emailTemplate{
		subject: "Your sign-in link",
		html: template.Must(template.New("otp").Parse(
			`<p>Hi {{.Name}}, use the link below to sign in. It expires in {{.Minutes}} minutes.</p>` +
				`<p><a href="{{.Link}}">Sign in</a></p>` +
				`<p>If you did not ask for this, you can ignore this email.</p>`)),
		text: "Sign in: %s",
	}
)

func (t emailTemplate) render(to string, d emailData) (Message, error) {
	var buf bytes.Buffer
	if err := t.html.Execute(&buf, d); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", t.html.Name(), err)
	}
	return Message{
		To:      to,
		Subject: t.subject,
		HTML:    buf.String(),
		Text:    fmt.Sprintf(t.text, d.Link),
	}, nil
}

func minutesUntil(now, at time.Time) int {
	m := int(at.Sub(now).Round(time.Minute) / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}
