package notify_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"gate/cmd/internal/mock"
	"gate/cmd/internal/notify"
	"gate/cmd/internal/verification"
)

func issued(p verification.Purpose) verification.Issued {
	now := time.Now()
	return verification.Issued{
		UserID:    "user-1",
		Purpose:   p,
		Token:     "tok/with+chars",
		IssuedAt:  now,
		ExpiresAt: now.Add(15 * time.Minute),
	}
}

func TestDispatcher_Link(t *testing.T) {
	d, err := notify.NewDispatcher(mock.NewMockMailer(gomock.NewController(t)), "https://app.example.com/base/", nil)
	require.NoError(t, err)

	link := d.Link(notify.PathResetPassword, "a+b/c")
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/base/reset-password", u.Path)
	assert.Equal(t, "a+b/c", u.Query().Get("token"))
}

func TestDispatcher_RejectsBadBaseURL(t *testing.T) {
	m := mock.NewMockMailer(gomock.NewController(t))
	for _, raw := range []string{"", "not a url", "/relative"} {
		_, err := notify.NewDispatcher(m, raw, nil)
		require.ErrorIs(t, err, notify.ErrConfig, raw)
	}
}

func TestDispatcher_SendsPerPurpose(t *testing.T) {
	cases := []struct {
		purpose verification.Purpose
		path    string
		subject string
	}{
		{verification.PurposeEmailVerify, notify.PathVerifyEmail, "Verify your email address"},
		{verification.PurposePasswordReset, notify.PathResetPassword, "Reset your password"},
		{verification.PurposeOTPLogin, notify.PathVerifyLogin, "Your sign-in link"},
	}
	for _, tc := range cases {
		t.Run(string(tc.purpose), func(t *testing.T) {
			ctrl := gomock.NewController(t)
			m := mock.NewMockMailer(ctrl)
			d, err := notify.NewDispatcher(m, "https://app.example.com", nil)
			require.NoError(t, err)

			iss := issued(tc.purpose)
			m.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, msg notify.Message) (notify.Result, error) {
					assert.Equal(t, "ada@example.com", msg.To)
					assert.Equal(t, tc.subject, msg.Subject)
					assert.Contains(t, msg.HTML, "https://app.example.com"+tc.path+"?token=")
					assert.Contains(t, msg.Text, url.QueryEscape(iss.Token))
					return notify.Result{Success: true, MessageID: "m1"}, nil
				})

			name := "Ada"
			require.NoError(t, d.NotifierFor("ada@example.com", &name)(context.Background(), iss))
		})
	}
}

func TestDispatcher_EscapesName(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mock.NewMockMailer(ctrl)
	d, err := notify.NewDispatcher(m, "https://app.example.com", nil)
	require.NoError(t, err)

	m.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg notify.Message) (notify.Result, error) {
			assert.NotContains(t, msg.HTML, "<script>")
			assert.Contains(t, msg.HTML, "&lt;script&gt;")
			assert.Contains(t, msg.HTML, "expires in 15 minutes")
			return notify.Result{Success: true}, nil
		})

	name := "<script>alert(1)</script>"
	require.NoError(t, d.NotifierFor("ada@example.com", &name)(context.Background(), issued(verification.PurposeOTPLogin)))
}

func TestDispatcher_DeliveryFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mock.NewMockMailer(ctrl)
	d, err := notify.NewDispatcher(m, "https://app.example.com", nil)
	require.NoError(t, err)
	notifier := d.NotifierFor("ada@example.com", nil)

	gomock.InOrder(
		m.EXPECT().Send(gomock.Any(), gomock.Any()).Return(notify.Result{Success: false, Error: "quota"}, nil),
		m.EXPECT().Send(gomock.Any(), gomock.Any()).Return(notify.Result{}, errors.New("dial tcp: refused")),
	)

	err = notifier(context.Background(), issued(verification.PurposeEmailVerify))
	require.ErrorIs(t, err, notify.ErrDelivery)

	err = notifier(context.Background(), issued(verification.PurposeEmailVerify))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}
