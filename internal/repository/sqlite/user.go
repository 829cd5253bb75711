package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/memeboard/internal/apperror"
	"github.com/sakif/memeboard/internal/model"
	"github.com/sakif/memeboard/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, handle, name, created_at, last_login_at`

// UpsertByEmail inserts a user on first login or bumps last_login_at on a
// returning one.
//
// ON CONFLICT(email) DO UPDATE keeps the existing row (and its id, handle
// and created_at). A stored display name wins over the provider's; an empty
// one is filled in. RETURNING hands back the canonical row in the same
// statement.
func (db *DB) UpsertByEmail(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()

	row := db.conn.QueryRowContext(ctx,
		`INSERT INTO users (email, name, created_at, last_login_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET
			last_login_at = excluded.last_login_at,
			name = CASE WHEN users.name = '' THEN excluded.name ELSE users.name END
		 RETURNING `+userColumns,
		user.Email,
		user.Name,
		now,
		now,
	)

	stored, err := scanUser(row)
	if err != nil {
		return fmt.Errorf("sqlite: upserting user %s: %w", user.Email, err)
	}

	*user = *stored
	return nil
}

// GetUserByID retrieves a user by id.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`,
		id,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}

	return u, nil
}

// HandleExists reports whether any user holds handle.
func (db *DB) HandleExists(ctx context.Context, handle string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE handle = ?)`,
		handle,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking handle %q: %w", handle, err)
	}
	return exists, nil
}

// SetHandle assigns a handle. The UNIQUE constraint on users.handle decides
// races between two users claiming the same one.
func (db *DB) SetHandle(ctx context.Context, userID int64, handle string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET handle = ? WHERE id = ?`,
		handle, userID,
	)
	if err != nil {
		if isUniqueViolation(err, "users.handle") {
			return apperror.HandleTaken(handle)
		}
		return fmt.Errorf("sqlite: setting handle for user %d: %w", userID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", userID)
	}

	return nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var (
		u      model.User
		handle sql.NullString
	)
	if err := row.Scan(
		&u.ID,
		&u.Email,
		&handle,
		&u.Name,
		&u.CreatedAt,
		&u.LastLoginAt,
	); err != nil {
		return nil, err
	}
	u.Handle = handle.String
	return &u, nil
}
