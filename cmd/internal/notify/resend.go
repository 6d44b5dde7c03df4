package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultResendBaseURL = "https://api.resend.com"

// ResendMailer posts messages to the Resend REST API.
type ResendMailer struct {
	client *resty.Client
	from   string
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`
}

type resendError struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

// NewResendMailer builds a client for baseURL (DefaultResendBaseURL when empty).
func NewResendMailer(apiKey, fromEmail, fromName, baseURL string, timeout time.Duration) (*ResendMailer, error) {
	apiKey = strings.TrimSpace(apiKey)
	fromEmail = strings.TrimSpace(fromEmail)
	fromName = strings.TrimSpace(fromName)
	switch {
	case apiKey == "":
		return nil, fmt.Errorf("%w: resend api key is required", ErrConfig)
	case fromEmail == "":
		return nil, fmt.Errorf("%w: from email is required", ErrConfig)
	case fromName == "":
		return nil, fmt.Errorf("%w: from name is required", ErrConfig)
	}
	if baseURL == "" {
		baseURL = DefaultResendBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(apiKey).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
		})

	return &ResendMailer{client: c, from: fmt.Sprintf("%s <%s>", fromName, fromEmail)}, nil
}

func (m *ResendMailer) Send(ctx context.Context, msg Message) (Result, error) {
	if err := msg.validate(); err != nil {
		return Result{}, err
	}

	var (
		ok     resendResponse
		apiErr resendError
	)
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(resendRequest{
			From:    m.from,
			To:      []string{msg.To},
			Subject: msg.Subject,
			HTML:    msg.HTML,
			Text:    msg.Text,
		}).
		SetResult(&ok).
		SetError(&apiErr).
		Post("/emails")
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	if resp.IsError() {
		text := apiErr.Message
		if text == "" {
			text = resp.Status()
		}
		return Result{Success: false, Error: text}, nil
	}
	if ok.ID == "" {
		return Result{Success: false, Error: "resend: empty message id"}, nil
	}
	return Result{Success: true, MessageID: ok.ID}, nil
}
