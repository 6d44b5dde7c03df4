package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"gate/cmd/identity"
	"gate/migrations"
)

// NewDBPool builds a pgxpool pinned to cfg.DBSchema and validates connectivity.
// Every connection uses search_path=<schema>, so migrations and stores share one namespace.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if !identity.ValidSchemaName(cfg.DBSchema) {
		return nil, fmt.Errorf("db: invalid schema name %q", cfg.DBSchema)
	}

	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: parse url: %w", err)
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}
	pcfg.ConnConfig.RuntimeParams["search_path"] = cfg.DBSchema

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}

	return pool, nil
}

// MigrateDB creates the schema if needed and applies pending migrations.
func MigrateDB(ctx context.Context, pool *pgxpool.Pool, schema string, log Logger) error {
	if _, err := pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("db: create schema: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()

	applied, err := migrations.Migrate(ctx, db)
	if err != nil {
		return err
	}
	log.Info("db.migrated", "schema", schema, "applied", len(applied))
	return nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}
