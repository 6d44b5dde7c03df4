package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate/cmd/identity"
	"gate/cmd/internal/auth/session"
	"gate/cmd/internal/pgtest"
	"gate/cmd/security/token"
)

// Integration tests are opt-in and require GATE_DATABASE_URL.

func newPostgresService(t *testing.T) (*session.Service, *session.PostgresStore, identity.User) {
	t.Helper()

	pool := pgtest.OpenPool(t)
	schema := pgtest.NewSchema(t, pool)

	users, err := identity.NewPostgresStore(pool, identity.WithSchema(schema))
	require.NoError(t, err)
	store, err := session.NewPostgresStore(pool, schema)
	require.NoError(t, err)
	svc, err := session.NewService(session.DefaultConfig(), store, token.Hasher{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	u, err := users.CreateUser(ctx, identity.CreateUserInput{Email: "pg-session@example.com"})
	require.NoError(t, err)
	require.NoError(t, users.GrantRole(ctx, u.ID, identity.RoleAdmin))

	return svc, store, u
}

func TestPostgresStore_Lifecycle(t *testing.T) {
	t.Parallel()

	svc, store, u := newPostgresService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	now := time.Now().UTC().Truncate(time.Microsecond)

	issued, err := svc.CreateSession(ctx, now, u.ID)
	require.NoError(t, err)

	v, err := svc.ValidateToken(ctx, now.Add(time.Minute), issued.Token)
	require.NoError(t, err)
	require.True(t, v.Valid())
	assert.Equal(t, u.ID, v.User.ID)
	assert.True(t, v.Principal().HasRole(identity.RoleAdmin))
	assert.True(t, v.Principal().HasRole(identity.RoleUser))

	refreshAt := issued.Session.ExpiresAt.Add(-10 * 24 * time.Hour)
	v, err = svc.ValidateToken(ctx, refreshAt, issued.Token)
	require.NoError(t, err)
	require.True(t, v.Valid())
	row, _, err := store.GetWithUser(ctx, issued.Session.ID)
	require.NoError(t, err)
	assert.True(t, row.ExpiresAt.Equal(refreshAt.Add(session.DefaultTTL)))

	require.NoError(t, svc.InvalidateSession(ctx, issued.Session.ID))
	require.NoError(t, svc.InvalidateSession(ctx, issued.Session.ID))
	v, err = svc.ValidateToken(ctx, refreshAt, issued.Token)
	require.NoError(t, err)
	assert.False(t, v.Valid())
}

func TestPostgresStore_ExpiredRowIsDeleted(t *testing.T) {
	t.Parallel()

	svc, store, u := newPostgresService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	now := time.Now().UTC().Truncate(time.Microsecond)

	issued, err := svc.CreateSession(ctx, now, u.ID)
	require.NoError(t, err)

	v, err := svc.ValidateToken(ctx, issued.Session.ExpiresAt.Add(time.Second), issued.Token)
	require.NoError(t, err)
	assert.False(t, v.Valid())

	_, _, err = store.GetWithUser(ctx, issued.Session.ID)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestPostgresStore_ExtendAfterDelete(t *testing.T) {
	t.Parallel()

	svc, store, u := newPostgresService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	now := time.Now().UTC()

	issued, err := svc.CreateSession(ctx, now, u.ID)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, issued.Session.ID))

	err = store.Extend(ctx, issued.Session.ID, now.Add(time.Hour))
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestPostgresStore_RevokeAllUnderConcurrentValidation(t *testing.T) {
	t.Parallel()

	svc, _, u := newPostgresService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	now := time.Now().UTC()

	var tokens []string
	for i := 0; i < 5; i++ {
		issued, err := svc.CreateSession(ctx, now, u.ID)
		require.NoError(t, err)
		tokens = append(tokens, issued.Token)
	}

	// Validate inside the refresh window while revoking; neither side may error.
	refreshAt := now.Add(session.DefaultTTL - time.Hour)
	var wg sync.WaitGroup
	for _, tok := range tokens {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			_, err := svc.ValidateToken(ctx, refreshAt, tok)
			assert.NoError(t, err)
		}(tok)
	}
	_, err := svc.InvalidateAllSessionsForUser(ctx, u.ID)
	require.NoError(t, err)
	wg.Wait()

	_, err = svc.InvalidateAllSessionsForUser(ctx, u.ID)
	require.NoError(t, err)
	for _, tok := range tokens {
		v, err := svc.ValidateToken(ctx, refreshAt, tok)
		require.NoError(t, err)
		assert.False(t, v.Valid())
	}
}
