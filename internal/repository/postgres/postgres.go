// Package postgres implements the repository interfaces on PostgreSQL using
// a pgx connection pool.
//
// The schema and semantics match the sqlite package: unique constraints on
// users.email, users.handle and interactions(meme_id, user_id, type), and
// score changes as relative UPDATEs inside the ledger transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/memeboard/internal/repository"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// DB wraps a pgx pool.
type DB struct {
	pool *pgxpool.Pool
}

// Options tunes the pool. Zero values fall back to pgx defaults.
type Options struct {
	MaxConns int32
	MinConns int32
}

// New connects to databaseURL, verifies the connection and migrates the schema.
func New(ctx context.Context, databaseURL string, opts Options) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing DSN: %w", err)
	}

	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = opts.MinConns
	}
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: database unreachable: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}

	return db, nil
}

// Close releases every pooled connection.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// Ping checks the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

func (db *DB) migrate(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id            BIGSERIAL PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			handle        TEXT UNIQUE,
			name          TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_login_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS memes (
			id           BIGSERIAL PRIMARY KEY,
			content      TEXT NOT NULL CHECK (length(btrim(content)) > 0),
			user_id      BIGINT REFERENCES users(id),
			author_label TEXT NOT NULL DEFAULT '',
			score        INTEGER NOT NULL DEFAULT 100,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS interactions (
			id         BIGSERIAL PRIMARY KEY,
			meme_id    BIGINT NOT NULL REFERENCES memes(id),
			user_id    BIGINT REFERENCES users(id),
			type       TEXT NOT NULL CHECK (type IN ('refute', 'refine', 'praise')),
			comment    TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT interactions_meme_user_type_key UNIQUE (meme_id, user_id, type)
		);
		CREATE INDEX IF NOT EXISTS idx_interactions_meme_id ON interactions(meme_id);
	`)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a unique_violation, optionally on
// a specific constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
