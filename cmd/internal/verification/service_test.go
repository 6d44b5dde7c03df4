package verification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate/cmd/security/token"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *MemoryStore, *Metrics) {
	t.Helper()
	store := NewMemoryStore(nil)
	m := NewMetrics(prometheus.NewRegistry())
	svc, err := NewService(DefaultConfig(), store, token.Hasher{}, WithMetrics(m))
	require.NoError(t, err)
	return svc, store, m
}

func TestIssue_TTLPerPurpose(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	want := map[Purpose]time.Duration{
		PurposeOTPLogin:      15 * time.Minute,
		PurposePasswordReset: time.Hour,
		PurposeEmailVerify:   24 * time.Hour,
	}
	for p, ttl := range want {
		iss, err := svc.Issue(ctx, t0, "user-1", p)
		require.NoError(t, err)
		assert.Equal(t, t0.Add(ttl), iss.ExpiresAt, p)
		assert.Len(t, iss.Token, 43)
	}
}

func TestIssue_StoresDigestOnly(t *testing.T) {
	svc, store, _ := newTestService(t)

	iss, err := svc.Issue(context.Background(), t0, "user-1", PurposeEmailVerify)
	require.NoError(t, err)

	rec := store.recs[key{"user-1", PurposeEmailVerify}]
	assert.Equal(t, token.HashSHA256Hex(iss.Token), rec.TokenHash)
	assert.NotContains(t, rec.TokenHash, iss.Token)
}

func TestConsume_SingleUse(t *testing.T) {
	svc, store, m := newTestService(t)
	ctx := context.Background()

	iss, err := svc.Issue(ctx, t0, "user-1", PurposePasswordReset)
	require.NoError(t, err)

	uid, err := svc.Consume(ctx, t0.Add(time.Minute), PurposePasswordReset, iss.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)
	assert.Zero(t, store.Len())

	_, err = svc.Consume(ctx, t0.Add(time.Minute), PurposePasswordReset, iss.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues(string(PurposePasswordReset), "consumed")))
}

func TestConsume_ExpiredIsPurged(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	iss, err := svc.Issue(ctx, t0, "user-1", PurposeOTPLogin)
	require.NoError(t, err)

	_, err = svc.Consume(ctx, iss.ExpiresAt.Add(time.Second), PurposeOTPLogin, iss.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
	assert.Zero(t, store.Len(), "expired token must be cleared when found")

	// Even with a clock that moves backwards, the token never validates again.
	_, err = svc.Consume(ctx, t0, PurposeOTPLogin, iss.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestConsume_AtExpiryInstantIsValid(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	iss, err := svc.Issue(ctx, t0, "user-1", PurposeOTPLogin)
	require.NoError(t, err)

	uid, err := svc.Consume(ctx, iss.ExpiresAt, PurposeOTPLogin, iss.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)
}

func TestConsume_WrongPurposeLeavesTokenLive(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	iss, err := svc.Issue(ctx, t0, "user-1", PurposeEmailVerify)
	require.NoError(t, err)

	_, err = svc.Consume(ctx, t0, PurposePasswordReset, iss.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, 1, store.Len())

	_, err = svc.Consume(ctx, t0, PurposeEmailVerify, iss.Token)
	require.NoError(t, err)
}

func TestIssue_SupersedesPrevious(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Issue(ctx, t0, "user-1", PurposeOTPLogin)
	require.NoError(t, err)
	other, err := svc.Issue(ctx, t0, "user-1", PurposeEmailVerify)
	require.NoError(t, err)
	second, err := svc.Issue(ctx, t0.Add(time.Minute), "user-1", PurposeOTPLogin)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())

	_, err = svc.Consume(ctx, t0.Add(2*time.Minute), PurposeOTPLogin, first.Token)
	require.ErrorIs(t, err, ErrInvalidToken)

	uid, err := svc.Consume(ctx, t0.Add(2*time.Minute), PurposeOTPLogin, second.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)

	_, err = svc.Consume(ctx, t0.Add(2*time.Minute), PurposeEmailVerify, other.Token)
	require.NoError(t, err, "purposes are independent")
}

func TestConsume_ConcurrentExactlyOnce(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	iss, err := svc.Issue(ctx, t0, "user-1", PurposeOTPLogin)
	require.NoError(t, err)

	var (
		wins atomic.Int32
		wg   sync.WaitGroup
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Consume(ctx, t0, PurposeOTPLogin, iss.Token); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestIssueAndNotify(t *testing.T) {
	svc, store, m := newTestService(t)
	ctx := context.Background()

	var delivered Issued
	iss, err := svc.IssueAndNotify(ctx, t0, "user-1", PurposeEmailVerify, func(_ context.Context, in Issued) error {
		delivered = in
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, iss, delivered)

	boom := errors.New("smtp down")
	_, err = svc.IssueAndNotify(ctx, t0, "user-2", PurposePasswordReset, func(context.Context, Issued) error { return boom })
	require.ErrorIs(t, err, ErrNotifyFailed)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues(string(PurposePasswordReset), "notify_failed")))
}

func TestInvalidInputs(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, t0, "", PurposeOTPLogin)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Issue(ctx, t0, "user-1", Purpose("magic_link"))
	require.ErrorIs(t, err, ErrInvalidInput)

	for _, tok := range []string{"", "   ", "unknown"} {
		_, err = svc.Consume(ctx, t0, PurposeOTPLogin, tok)
		require.ErrorIs(t, err, ErrInvalidToken)
	}
	require.ErrorIs(t, svc.Discard(ctx, "user-1", Purpose("x")), ErrInvalidInput)
}

func TestDiscard(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	iss, err := svc.Issue(ctx, t0, "user-1", PurposePasswordReset)
	require.NoError(t, err)
	require.NoError(t, svc.Discard(ctx, "user-1", PurposePasswordReset))
	require.NoError(t, svc.Discard(ctx, "user-1", PurposePasswordReset))
	assert.Zero(t, store.Len())

	_, err = svc.Consume(ctx, t0, PurposePasswordReset, iss.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestMemoryStore_UnknownUser(t *testing.T) {
	store := NewMemoryStore(func(_ context.Context, id string) bool { return id == "known" })
	svc, err := NewService(DefaultConfig(), store, token.Hasher{})
	require.NoError(t, err)

	_, err = svc.Issue(context.Background(), t0, "ghost", PurposeOTPLogin)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("GATE_VERIFICATION_OTP_TTL", "5m")
	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.OTPLoginTTL)
	assert.Equal(t, time.Hour, cfg.PasswordResetTTL)

	t.Setenv("GATE_VERIFICATION_PASSWORD_RESET_TTL", "0s")
	_, err = LoadConfigFromEnv()
	require.ErrorIs(t, err, ErrConfig)
}
