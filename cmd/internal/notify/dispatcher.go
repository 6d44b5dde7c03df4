package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"gate/cmd/internal/verification"
)

// Link paths on the application frontend, each taking a ?token= parameter.
const (
	PathVerifyEmail   = "/verify-email"
	PathResetPassword = "/reset-password"
	PathVerifyLogin   = "/api/auth/otp/verify"
)

// Dispatcher renders verification emails and sends them through a Mailer.
type Dispatcher struct {
	mailer  Mailer
	baseURL *url.URL
	log     *slog.Logger
}

// NewDispatcher returns a Dispatcher building links against baseURL.
func NewDispatcher(m Mailer, baseURL string, log *slog.Logger) (*Dispatcher, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: mailer is nil", ErrConfig)
	}
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid base url %q", ErrConfig, baseURL)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{mailer: m, baseURL: u, log: log}, nil
}

// Link returns baseURL+path?token=tok.
func (d *Dispatcher) Link(path, tok string) string {
	u := *d.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	q := url.Values{}
	q.Set("token", tok)
	u.RawQuery = q.Encode()
	return u.String()
}

// NotifierFor returns a verification.Notifier that mails the token to the given address.
// name is used in the greeting when present.
func (d *Dispatcher) NotifierFor(to string, name *string) verification.Notifier {
	return func(ctx context.Context, iss verification.Issued) error {
		msg, err := d.compose(to, name, iss)
		if err != nil {
			return err
		}
		res, err := d.mailer.Send(ctx, msg)
		if err != nil {
			return err
		}
		if !res.Success {
			d.log.LogAttrs(ctx, slog.LevelWarn, "mail.rejected",
				slog.String("purpose", string(iss.Purpose)),
				slog.String("user_id", iss.UserID),
				slog.String("error", res.Error),
			)
			return fmt.Errorf("%w: %s", ErrDelivery, res.Error)
		}
		d.log.LogAttrs(ctx, slog.LevelInfo, "mail.sent",
			slog.String("purpose", string(iss.Purpose)),
			slog.String("user_id", iss.UserID),
			slog.String("message_id", res.MessageID),
		)
		return nil
	}
}

func (d *Dispatcher) compose(to string, name *string, iss verification.Issued) (Message, error) {
	data := emailData{Name: to, Minutes: minutesUntil(iss.IssuedAt, iss.ExpiresAt)}
	if name != nil && strings.TrimSpace(*name) != "" {
		data.Name = *name
	}

	switch iss.Purpose {
	case verification.PurposeEmailVerify:
		data.Link = d.Link(PathVerifyEmail, iss.Token)
		return verifyEmailTmpl.render(to, data)
	case verification.PurposePasswordReset:
		data.Link = d.Link(PathResetPassword, iss.Token)
		return passwordResetTmpl.render(to, data)
	case verification.PurposeOTPLogin:
		data.Link = d.Link(PathVerifyLogin, iss.Token)
		return otpLoginTmpl.render(to, data)
	default:
		return Message{}, fmt.Errorf("%w: no template for purpose %q", ErrInvalidMessage, iss.Purpose)
	}
}
