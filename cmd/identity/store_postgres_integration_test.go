package identity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gate/cmd/identity"
	"gate/cmd/internal/pgtest"
)

// Integration tests are opt-in and require GATE_DATABASE_URL.

func newStore(t *testing.T) (*identity.PostgresStore, *pgxpool.Pool, string) {
	t.Helper()

	pool := pgtest.OpenPool(t)
	schema := pgtest.NewSchema(t, pool)

	s, err := identity.NewPostgresStore(pool, identity.WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, pool, schema
}

func TestPostgresStore_CreateUser_ConflictEmail_CaseInsensitive(t *testing.T) {
	t.Parallel()

	s, _, _ := newStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	u, err := s.CreateUser(ctx, identity.CreateUserInput{Email: "User@Example.com", Now: time.Now().UTC()})
	if err != nil {
		t.Fatalf("create user 1: %v", err)
	}
	if len(u.Roles) != 1 || u.Roles[0] != identity.RoleUser {
		t.Fatalf("expected default role, got %v", u.Roles)
	}

	_, err = s.CreateUser(ctx, identity.CreateUserInput{Email: "user@example.COM", Now: time.Now().UTC()})
	if !identity.IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestPostgresStore_CreateUser_ConcurrentDuplicate_OneWins(t *testing.T) {
	t.Parallel()

	s, pool, schema := newStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, confl int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateUser(ctx, identity.CreateUserInput{Email: "race@example.com"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case identity.IsConflict(err):
				confl++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || confl != n-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d/%d", n-1, ok, confl)
	}

	var rows int
	users := pgx.Identifier{schema, "users"}.Sanitize()
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM `+users).Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected 1 user row, got %d", rows)
	}
}

func TestPostgresStore_CreateUser_DefaultRoleMissing(t *testing.T) {
	t.Parallel()

	s, pool, schema := newStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pgtest.Exec(t, pool, `DELETE FROM `+pgx.Identifier{schema, "roles"}.Sanitize()+` WHERE name = 'USER'`)

	_, err := s.CreateUser(ctx, identity.CreateUserInput{Email: "norole@example.com"})
	if !identity.IsMisconfigured(err) {
		t.Fatalf("expected misconfigured, got %v", err)
	}
	if _, err := s.GetUserByEmail(ctx, "norole@example.com"); !identity.IsNotFound(err) {
		t.Fatalf("user row must roll back, got %v", err)
	}
}

func TestPostgresStore_ProfilePasswordAndRoles(t *testing.T) {
	t.Parallel()

	s, _, _ := newStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	now := time.Now().UTC().Truncate(time.Microsecond)

	u, err := s.CreateUser(ctx, identity.CreateUserInput{Email: "p@example.com", Now: now})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.SetPasswordHash(ctx, u.ID, "$argon2id$stub", now); err != nil {
		t.Fatalf("SetPasswordHash: %v", err)
	}
	if err := s.MarkEmailVerified(ctx, u.ID, now); err != nil {
		t.Fatalf("MarkEmailVerified: %v", err)
	}
	if err := s.GrantRole(ctx, u.ID, identity.RoleAdmin); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	if err := s.GrantRole(ctx, u.ID, identity.RoleAdmin); err != nil {
		t.Fatalf("GrantRole twice: %v", err)
	}

	got, err := s.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if !got.HasPassword() || got.EmailVerifiedAt == nil || len(got.Roles) != 2 {
		t.Fatalf("unexpected user: %+v", got)
	}

	newEmail := "q@example.com"
	res, err := s.UpdateProfile(ctx, identity.UpdateProfileInput{UserID: u.ID, Email: &newEmail, Now: now})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if !res.EmailChanged || res.User.EmailVerifiedAt != nil {
		t.Fatalf("email change must reset verification: %+v", res)
	}

	if err := s.SetPasswordHash(ctx, "01J00000000000000000000000", "x", now); !identity.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresStore_GrantRole_MissingRowKinds(t *testing.T) {
	t.Parallel()

	s, pool, schema := newStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	u, err := s.CreateUser(ctx, identity.CreateUserInput{Email: "grant@example.com"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.GrantRole(ctx, "01J00000000000000000000000", identity.RoleAdmin); !identity.IsNotFound(err) {
		t.Fatalf("unknown user: expected not found, got %v", err)
	}

	pgtest.Exec(t, pool, `DELETE FROM `+pgx.Identifier{schema, "roles"}.Sanitize()+` WHERE name = 'ADMIN'`)
	err = s.GrantRole(ctx, u.ID, identity.RoleAdmin)
	if !identity.IsMisconfigured(err) || identity.IsNotFound(err) {
		t.Fatalf("missing role row: expected misconfigured, got %v", err)
	}
}
