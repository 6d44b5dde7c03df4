package verification

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gate/cmd/identity"
)

// PostgresStore persists verification tokens in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "gate").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !identity.ValidSchemaName(schema) {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "gate"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "verification_tokens"}.Sanitize()
}

// Put upserts on (user_id, purpose).
func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	if s == nil || s.pool == nil {
		return ErrInvalidInput
	}
	if strings.TrimSpace(rec.UserID) == "" || len(rec.TokenHash) != 64 || !rec.Purpose.Valid() {
		return ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (user_id, purpose, token_hash, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, purpose) DO UPDATE
		    SET token_hash = EXCLUDED.token_hash,
		        created_at = EXCLUDED.created_at,
		        expires_at = EXCLUDED.expires_at`,
		rec.UserID, string(rec.Purpose), rec.TokenHash, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Take is a single DELETE ... RETURNING, so concurrent callers cannot both win.
func (s *PostgresStore) Take(ctx context.Context, purpose Purpose, tokenHash string) (Record, error) {
	if s == nil || s.pool == nil {
		return Record{}, ErrInvalidInput
	}

	var (
		rec Record
		p   string
	)
	err := s.pool.QueryRow(ctx,
		`DELETE FROM `+s.table()+`
		  WHERE purpose = $1
		    AND token_hash = $2
		  RETURNING user_id, purpose, token_hash, created_at, expires_at`,
		string(purpose), tokenHash,
	).Scan(&rec.UserID, &p, &rec.TokenHash, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	rec.Purpose = Purpose(p)
	return rec, nil
}

// Discard deletes the record for (userID, purpose) if any.
func (s *PostgresStore) Discard(ctx context.Context, userID string, purpose Purpose) error {
	if s == nil || s.pool == nil {
		return ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM `+s.table()+` WHERE user_id = $1 AND purpose = $2`,
		userID, string(purpose),
	)
	return err
}
