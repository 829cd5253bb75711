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

var _ repository.MemeRepository = (*DB)(nil)

const memeColumns = `id, content, user_id, author_label, score, created_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (db *DB) CreateMeme(ctx context.Context, meme *model.Meme) error {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO memes (content, user_id, author_label, score)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, score, created_at`,
		meme.Content, meme.UserID, meme.AuthorLabel, model.BaselineScore,
	).Scan(&meme.ID, &meme.Score, &meme.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: creating meme: %w", err)
	}
	return nil
}

func (db *DB) GetMemeByID(ctx context.Context, id int64) (*model.Meme, error) {
	var m model.Meme
	err := db.pool.QueryRow(ctx,
		`SELECT `+memeColumns+` FROM memes WHERE id = $1`, id,
	).Scan(&m.ID, &m.Content, &m.UserID, &m.AuthorLabel, &m.Score, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("meme", id)
		}
		return nil, fmt.Errorf("postgres: getting meme %d: %w", id, err)
	}
	return &m, nil
}

func (db *DB) ListMemes(ctx context.Context) ([]model.Meme, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+memeColumns+` FROM memes ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing memes: %w", err)
	}
	defer rows.Close()

	memes := make([]model.Meme, 0)
	for rows.Next() {
		var m model.Meme
		if err := rows.Scan(&m.ID, &m.Content, &m.UserID, &m.AuthorLabel, &m.Score, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scanning meme row: %w", err)
		}
		memes = append(memes, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating memes: %w", err)
	}
	return memes, nil
}

func (db *DB) ApplyDelta(ctx context.Context, memeID int64, delta int) (int, error) {
	return applyDelta(ctx, db.pool, memeID, delta)
}

// applyDelta increments under the row lock the UPDATE takes, so concurrent
// deltas serialize on the row instead of racing.
func applyDelta(ctx context.Context, q querier, memeID int64, delta int) (int, error) {
	var score int
	err := q.QueryRow(ctx,
		`UPDATE memes SET score = score + $1 WHERE id = $2 RETURNING score`,
		delta, memeID,
	).Scan(&score)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperror.NotFound("meme", memeID)
		}
		return 0, fmt.Errorf("postgres: applying delta %d to meme %d: %w", delta, memeID, err)
	}
	return score, nil
}
