package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gate/cmd/identity"
)

// PostgresStore implements Store using PostgreSQL (<schema>.sessions).
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresStore creates a Postgres-backed session store in schema.
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = identity.DefaultSchema
	}
	if !identity.ValidSchemaName(schema) {
		return nil, fmt.Errorf("session: invalid schema identifier")
	}
	return &PostgresStore{pool: pool, schema: schema}, nil
}

func (s *PostgresStore) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

// Create inserts a new session row.
func (s *PostgresStore) Create(ctx context.Context, row Row) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.table("sessions")+` (id, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, row.ID, row.UserID, row.CreatedAt, row.ExpiresAt)
	return err
}

// GetWithUser loads the session, its owner and the owner's roles in one round trip.
func (s *PostgresStore) GetWithUser(ctx context.Context, sessionID string) (Row, identity.User, error) {
	var row Row

	u, err := identity.ScanUser(s.pool.QueryRow(ctx, `
		SELECT s.id, s.user_id, s.created_at, s.expires_at,
		       `+identity.UserSelectList(s.schema)+`
		  FROM `+s.table("sessions")+` s
		  JOIN `+s.table("users")+` u ON u.id = s.user_id
		 WHERE s.id = $1
	`, sessionID),
		&row.ID,
		&row.UserID,
		&row.CreatedAt,
		&row.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, identity.User{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, identity.User{}, err
	}
	return row, u, nil
}

// Extend updates expires_at; zero affected rows means a concurrent delete won.
func (s *PostgresStore) Extend(ctx context.Context, sessionID string, expiresAt time.Time) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE `+s.table("sessions")+`
		   SET expires_at = $2
		 WHERE id = $1
	`, sessionID, expiresAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes a session (idempotent).
func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.table("sessions")+` WHERE id = $1`, sessionID)
	return err
}

// DeleteAllForUser removes every session owned by userID (idempotent).
func (s *PostgresStore) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	ct, err := s.pool.Exec(ctx, `DELETE FROM `+s.table("sessions")+` WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
