package notify

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrInvalidMessage = errors.New("notify: invalid message")
	ErrConfig         = errors.New("notify: invalid config")
	ErrDelivery       = errors.New("notify: delivery failed")
)

// Message is one outbound email. Text is optional.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" || strings.ContainsAny(m.To, "\r\n") {
		return ErrInvalidMessage
	}
	if strings.TrimSpace(m.Subject) == "" || strings.ContainsAny(m.Subject, "\r\n") {
		return ErrInvalidMessage
	}
	if m.HTML == "" && m.Text == "" {
		return ErrInvalidMessage
	}
	return nil
}

// Result reports the provider outcome. A provider-side rejection is a Result with
// Success=false; the error return is reserved for transport and input faults.
type Result struct {
	Success   bool
	MessageID string
	Error     string
}

// Mailer sends a message.
//
//go:generate mockgen -destination=../mock/mailer_mock.go -package=mock gate/cmd/internal/notify Mailer
type Mailer interface {
	Send(ctx context.Context, msg Message) (Result, error)
}
