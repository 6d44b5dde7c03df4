package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
//   - The pgx pool is owned by the caller; this store must NOT close it.
//   - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
//   - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultSchema is the schema the migrations target unless configured otherwise.
const DefaultSchema = "gate"

// WithSchema sets the Postgres schema used by the identity store (default "gate").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !ValidSchemaName(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const userColumns = `u.id, u.email, u.email_norm, u.name, u.password_hash, u.email_verified_at,
       u.created_at, u.updated_at,
       COALESCE(ARRAY(SELECT ur.role_name FROM %s ur WHERE ur.user_id = u.id ORDER BY ur.role_name), '{}')`

// CreateUser inserts the user and its default role grant in one transaction.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	email := strings.TrimSpace(in.Email)
	if email == "" {
		return User{}, invalid(op, "email is required")
	}
	if in.PasswordHash != nil && strings.TrimSpace(*in.PasswordHash) == "" {
		return User{}, invalid(op, "empty password hash")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	userID, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:           userID,
		Email:        email,
		EmailNorm:    NormalizeEmail(email),
		Name:         NormalizeName(in.Name),
		PasswordHash: in.PasswordHash,
		Roles:        []RoleName{DefaultRole},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	users := pgIdent(s.schema, "users")
	userRoles := pgIdent(s.schema, "user_roles")

	_, err = tx.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, email, email_norm, name, password_hash, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		u.ID, u.Email, u.EmailNorm, u.Name, u.PasswordHash, now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+userRoles+` (user_id, role_name, created_at) VALUES ($1, $2, $3)`,
		u.ID, string(DefaultRole), now,
	)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return User{}, defaultRoleMissing(op)
		}
		return User{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	const op = "identity.GetUserByID"
	if strings.TrimSpace(userID) == "" {
		return User{}, invalid(op, "missing user_id")
	}
	return s.getUser(ctx, op, "u.id = $1", userID)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"
	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, invalid(op, "missing email")
	}
	return s.getUser(ctx, op, "u.email_norm = $1", norm)
}

func (s *PostgresStore) getUser(ctx context.Context, op, where string, arg any) (User, error) {
	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	users := pgIdent(s.schema, "users")
	userRoles := pgIdent(s.schema, "user_roles")

	row := s.pool.QueryRow(ctx,
		`SELECT `+fmt.Sprintf(userColumns, userRoles)+`
		   FROM `+users+` u
		  WHERE `+where,
		arg,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, err
	}
	return u, nil
}

// UserSelectList returns the select list ScanUser expects, for joins from other packages.
// The users table must be aliased "u".
func UserSelectList(schema string) string {
	return fmt.Sprintf(userColumns, pgIdent(schema, "user_roles"))
}

// ScanUser reads a row whose leading columns fill extra, followed by UserSelectList.
func ScanUser(row pgx.Row, extra ...any) (User, error) {
	return scanUser(row, extra...)
}

func scanUser(row pgx.Row, extra ...any) (User, error) {
	var (
		u     User
		roles []string
	)
	dest := make([]any, 0, len(extra)+9)
	dest = append(dest, extra...)
	dest = append(dest,
		&u.ID,
		&u.Email,
		&u.EmailNorm,
		&u.Name,
		&u.PasswordHash,
		&u.EmailVerifiedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
		&roles,
	)
	if err := row.Scan(dest...); err != nil {
		return User{}, err
	}
	u.Roles = parseStoredRoles(roles)
	return u, nil
}

func (s *PostgresStore) SetPasswordHash(ctx context.Context, userID string, hash string, now time.Time) error {
	const op = "identity.SetPasswordHash"
	if strings.TrimSpace(hash) == "" {
		return invalid(op, "empty hash")
	}
	return s.execUser(ctx, op, userID,
		`UPDATE %s SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		hash, nowOr(now),
	)
}

func (s *PostgresStore) MarkEmailVerified(ctx context.Context, userID string, now time.Time) error {
	return s.execUser(ctx, "identity.MarkEmailVerified", userID,
		`UPDATE %s
		    SET email_verified_at = COALESCE(email_verified_at, $2),
		        updated_at = $2
		  WHERE id = $1`,
		nowOr(now),
	)
}

func (s *PostgresStore) execUser(ctx context.Context, op, userID, sqlFmt string, args ...any) error {
	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return invalid(op, "missing user_id")
	}

	ct, err := s.pool.Exec(ctx, fmt.Sprintf(sqlFmt, pgIdent(s.schema, "users")), append([]any{userID}, args...)...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// UpdateProfile locks the user row so the email comparison and write are atomic.
func (s *PostgresStore) UpdateProfile(ctx context.Context, in UpdateProfileInput) (UpdateProfileResult, error) {
	const op = "identity.UpdateProfile"

	if s == nil || s.pool == nil {
		return UpdateProfileResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return UpdateProfileResult{}, err
	}
	if strings.TrimSpace(in.UserID) == "" {
		return UpdateProfileResult{}, invalid(op, "missing user_id")
	}
	now := nowOr(in.Now)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return UpdateProfileResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	users := pgIdent(s.schema, "users")
	userRoles := pgIdent(s.schema, "user_roles")

	cur, err := scanUser(tx.QueryRow(ctx,
		`SELECT `+fmt.Sprintf(userColumns, userRoles)+`
		   FROM `+users+` u
		  WHERE u.id = $1
		    FOR UPDATE`,
		in.UserID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UpdateProfileResult{}, NotFoundError{Op: op, Resource: "user"}
		}
		return UpdateProfileResult{}, err
	}

	next := cur
	changed := false
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email == "" {
			return UpdateProfileResult{}, invalid(op, "email is required")
		}
		next.Email = email
		next.EmailNorm = NormalizeEmail(email)
		if next.EmailNorm != cur.EmailNorm {
			next.EmailVerifiedAt = nil
			changed = true
		}
	}
	if in.Name != nil {
		next.Name = NormalizeName(in.Name)
	}
	next.UpdatedAt = now

	_, err = tx.Exec(ctx,
		`UPDATE `+users+`
		    SET email = $2, email_norm = $3, name = $4, email_verified_at = $5, updated_at = $6
		  WHERE id = $1`,
		next.ID, next.Email, next.EmailNorm, next.Name, next.EmailVerifiedAt, now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return UpdateProfileResult{}, ConflictError{Op: op, Field: field}
		}
		return UpdateProfileResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return UpdateProfileResult{}, err
	}
	return UpdateProfileResult{User: next, EmailChanged: changed}, nil
}

func (s *PostgresStore) GrantRole(ctx context.Context, userID string, role RoleName) error {
	const op = "identity.GrantRole"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if !role.Valid() {
		return invalid(op, "unknown role")
	}

	userRoles := pgIdent(s.schema, "user_roles")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+userRoles+` (user_id, role_name, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, role_name) DO NOTHING`,
		userID, string(role), time.Now().UTC(),
	)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			if pgConstraint(err) == "user_roles_role_name_fkey" {
				return roleMissing(op, role)
			}
			return NotFoundError{Op: op, Resource: "user"}
		}
		return err
	}
	return nil
}

func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// ValidSchemaName reports whether s is a plain PostgreSQL identifier.
func ValidSchemaName(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.ForeignKeyViolation
}

// pgConstraint returns the violated constraint name, or "" for non-Postgres errors.
func pgConstraint(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	return pgErr.ConstraintName
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != pgerrcode.UniqueViolation {
		return "", false
	}

	// Prefer stable schema constraint names. Fall back to heuristic substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_users_email_norm":
		return "email", true
	case "user_roles_pkey":
		return "role", true
	default:
		if strings.Contains(c, "email") {
			return "email", true
		}
		return "unique", true
	}
}
