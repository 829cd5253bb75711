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

// compile-time check that *DB implements repository.MemeRepository
var _ repository.MemeRepository = (*DB)(nil)

const memeColumns = `id, content, user_id, author_label, score, created_at`

// CreateMeme inserts a meme with the baseline score.
//
// The caller's struct is updated in place with the generated id, the
// starting score and the creation timestamp.
func (db *DB) CreateMeme(ctx context.Context, meme *model.Meme) error {
	meme.Score = model.BaselineScore
	meme.CreatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO memes (content, user_id, author_label, score, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		meme.Content,
		nullableInt64(meme.UserID),
		meme.AuthorLabel,
		meme.Score,
		meme.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating meme: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading meme id: %w", err)
	}
	meme.ID = id

	return nil
}

// GetMemeByID retrieves a single meme without its interactions.
func (db *DB) GetMemeByID(ctx context.Context, id int64) (*model.Meme, error) {
	var (
		m      model.Meme
		userID sql.NullInt64
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+memeColumns+` FROM memes WHERE id = ?`,
		id,
	).Scan(&m.ID, &m.Content, &userID, &m.AuthorLabel, &m.Score, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("meme", id)
		}
		return nil, fmt.Errorf("sqlite: getting meme %d: %w", id, err)
	}
	m.UserID = int64Ptr(userID)

	return &m, nil
}

// ListMemes returns every meme in insertion order. Sorting is done by the
// caller so ties keep this order.
func (db *DB) ListMemes(ctx context.Context) ([]model.Meme, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+memeColumns+` FROM memes ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing memes: %w", err)
	}
	defer rows.Close()

	memes := make([]model.Meme, 0)
	for rows.Next() {
		var (
			m      model.Meme
			userID sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.Content, &userID, &m.AuthorLabel, &m.Score, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning meme row: %w", err)
		}
		m.UserID = int64Ptr(userID)
		memes = append(memes, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating memes: %w", err)
	}

	return memes, nil
}

// ApplyDelta adds delta to a meme's score and returns the result.
func (db *DB) ApplyDelta(ctx context.Context, memeID int64, delta int) (int, error) {
	return applyDelta(ctx, db.conn, memeID, delta)
}

// applyDelta is the score accumulator. The increment happens inside the
// UPDATE, so concurrent deltas on the same meme never overwrite each other.
func applyDelta(ctx context.Context, q querier, memeID int64, delta int) (int, error) {
	var score int
	err := q.QueryRowContext(ctx,
		`UPDATE memes SET score = score + ? WHERE id = ? RETURNING score`,
		delta, memeID,
	).Scan(&score)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperror.NotFound("meme", memeID)
		}
		return 0, fmt.Errorf("sqlite: applying delta %d to meme %d: %w", delta, memeID, err)
	}
	return score, nil
}
