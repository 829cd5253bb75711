package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sakif/memeboard/internal/apperror"
	"github.com/sakif/memeboard/internal/model"
	"github.com/sakif/memeboard/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, COALESCE(handle, ''), name, created_at, last_login_at`

// UpsertByEmail creates the user or bumps last_login_at, filling in a
// missing name.
func (db *DB) UpsertByEmail(ctx context.Context, user *model.User) error {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO users (email, name)
		 VALUES ($1, $2)
		 ON CONFLICT (email) DO UPDATE SET
			last_login_at = NOW(),
			name = CASE WHEN users.name = '' THEN EXCLUDED.name ELSE users.name END
		 RETURNING `+userColumns,
		user.Email, user.Name,
	)

	stored, err := scanUser(row)
	if err != nil {
		return fmt.Errorf("postgres: upserting user %s: %w", user.Email, err)
	}

	*user = *stored
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: getting user %d: %w", id, err)
	}
	return u, nil
}

func (db *DB) HandleExists(ctx context.Context, handle string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE handle = $1)`, handle,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: checking handle %q: %w", handle, err)
	}
	return exists, nil
}

func (db *DB) SetHandle(ctx context.Context, userID int64, handle string) error {
	tag, err := db.pool.Exec(ctx, `UPDATE users SET handle = $1 WHERE id = $2`, handle, userID)
	if err != nil {
		if isUniqueViolation(err, "users_handle_key") {
			return apperror.HandleTaken(handle)
		}
		return fmt.Errorf("postgres: setting handle for user %d: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.Handle, &u.Name, &u.CreatedAt, &u.LastLoginAt); err != nil {
		return nil, err
	}
	return &u, nil
}
