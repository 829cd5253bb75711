// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so no C toolchain is
// needed. The pool is limited to a single connection: SQLite allows one
// writer at a time anyway, and a single connection makes ":memory:"
// databases behave like a normal file-backed one in tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/memeboard/internal/repository"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/memeboard.db" → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// === PRAGMAS ===
	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// migrate creates the schema. Every statement is idempotent, so it runs on
// every start.
func (db *DB) migrate() error {
	// Phase 1: users
	// email and handle are both UNIQUE. handle is NULL until allocated; SQLite
	// treats NULLs as distinct, so any number of users may lack one.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			email         TEXT NOT NULL UNIQUE,
			handle        TEXT UNIQUE,
			name          TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_login_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Phase 1: memes
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS memes (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			content    TEXT NOT NULL CHECK (length(trim(content)) > 0),
			user_id    INTEGER REFERENCES users(id),
			score      INTEGER NOT NULL DEFAULT 100,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating memes table: %w", err)
	}

	// Phase 2: author label snapshot. Databases created before it existed
	// get the column added with an empty default.
	if err := db.addColumnIfNotExists("memes", "author_label",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding author_label to memes: %w", err)
	}

	// Phase 1: interactions
	// The UNIQUE triple is the duplicate check: a second insert for the same
	// (meme, user, type) fails inside the transaction that also moves the score.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS interactions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			meme_id    INTEGER NOT NULL REFERENCES memes(id),
			user_id    INTEGER REFERENCES users(id),
			type       TEXT NOT NULL CHECK (type IN ('refute', 'refine', 'praise')),
			comment    TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (meme_id, user_id, type)
		);
		CREATE INDEX IF NOT EXISTS idx_interactions_meme_id ON interactions(meme_id);
	`)
	if err != nil {
		return fmt.Errorf("creating interactions table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// It lets migrations run repeatedly against an existing file.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure. When column is non-empty the error message must
// also name it (e.g. "users.handle").
func isUniqueViolation(err error, column string) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	if code != sqlite3.SQLITE_CONSTRAINT_UNIQUE && code != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return false
	}
	return column == "" || strings.Contains(se.Error(), column)
}

// placeholders returns "?, ?, ?" for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}
