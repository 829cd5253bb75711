package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sakif/memeboard/internal/apperror"
	"github.com/sakif/memeboard/internal/model"
	"github.com/sakif/memeboard/internal/repository"
)

var _ repository.InteractionRepository = (*DB)(nil)

// RecordInteraction applies the score delta and inserts the ledger row in
// one transaction; a unique violation rolls both back.
func (db *DB) RecordInteraction(ctx context.Context, in *model.Interaction, delta int) (int, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: beginning interaction tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after Commit

	score, err := applyDelta(ctx, tx, in.MemeID, delta)
	if err != nil {
		return 0, err
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO interactions (meme_id, user_id, type, comment)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		in.MemeID, in.UserID, string(in.Type), in.Comment,
	).Scan(&in.ID, &in.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "interactions_meme_user_type_key") {
			return 0, apperror.DuplicateInteraction(in.MemeID, string(in.Type))
		}
		return 0, fmt.Errorf("postgres: inserting interaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: committing interaction: %w", err)
	}
	return score, nil
}

// ListInteractions returns interactions newest first with the author's
// current handle. A nil memeIDs returns the whole ledger.
func (db *DB) ListInteractions(ctx context.Context, memeIDs []int64) ([]model.Interaction, error) {
	query := `SELECT i.id, i.meme_id, i.user_id, COALESCE(u.handle, ''), i.type, i.comment, i.created_at
		FROM interactions i
		LEFT JOIN users u ON u.id = i.user_id`

	var args []any
	if memeIDs != nil {
		if len(memeIDs) == 0 {
			return []model.Interaction{}, nil
		}
		query += ` WHERE i.meme_id = ANY($1)`
		args = append(args, memeIDs)
	}
	query += ` ORDER BY i.id DESC`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing interactions: %w", err)
	}

	interactions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Interaction, error) {
		var (
			in  model.Interaction
			typ string
		)
		err := row.Scan(&in.ID, &in.MemeID, &in.UserID, &in.UserHandle, &typ, &in.Comment, &in.CreatedAt)
		in.Type = model.InteractionType(typ)
		return in, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning interactions: %w", err)
	}
	return interactions, nil
}
