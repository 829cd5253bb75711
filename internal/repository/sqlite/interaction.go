package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/memeboard/internal/apperror"
	"github.com/sakif/memeboard/internal/model"
	"github.com/sakif/memeboard/internal/repository"
)

// compile-time check that *DB implements repository.InteractionRepository
var _ repository.InteractionRepository = (*DB)(nil)

// RecordInteraction writes a ledger entry and its score effect atomically.
//
// Both statements run in one transaction. The score update goes first so an
// unknown meme fails before anything is inserted; the INSERT then hits the
// UNIQUE (meme_id, user_id, type) constraint for a duplicate, and the
// deferred Rollback discards the score change with it.
func (db *DB) RecordInteraction(ctx context.Context, in *model.Interaction, delta int) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: beginning interaction tx: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	score, err := applyDelta(ctx, tx, in.MemeID, delta)
	if err != nil {
		return 0, err
	}

	in.CreatedAt = time.Now().UTC()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO interactions (meme_id, user_id, type, comment, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		in.MemeID,
		nullableInt64(in.UserID),
		string(in.Type),
		in.Comment,
		in.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return 0, apperror.DuplicateInteraction(in.MemeID, string(in.Type))
		}
		return 0, fmt.Errorf("sqlite: inserting interaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading interaction id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: committing interaction: %w", err)
	}

	in.ID = id
	return score, nil
}

// ListInteractions returns interactions newest first (ids only grow), joined with the
// author's current handle. A nil memeIDs returns the whole ledger.
func (db *DB) ListInteractions(ctx context.Context, memeIDs []int64) ([]model.Interaction, error) {
	query := `SELECT i.id, i.meme_id, i.user_id, COALESCE(u.handle, ''), i.type, i.comment, i.created_at
		FROM interactions i
		LEFT JOIN users u ON u.id = i.user_id`

	args := make([]any, 0, len(memeIDs))
	if memeIDs != nil {
		if len(memeIDs) == 0 {
			return []model.Interaction{}, nil
		}
		query += ` WHERE i.meme_id IN (` + placeholders(len(memeIDs)) + `)`
		for _, id := range memeIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY i.id DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing interactions: %w", err)
	}
	defer rows.Close()

	interactions := make([]model.Interaction, 0)
	for rows.Next() {
		var (
			in     model.Interaction
			userID sql.NullInt64
			typ    string
		)
		if err := rows.Scan(&in.ID, &in.MemeID, &userID, &in.UserHandle, &typ, &in.Comment, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning interaction row: %w", err)
		}
		in.UserID = int64Ptr(userID)
		in.Type = model.InteractionType(typ)
		interactions = append(interactions, in)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating interactions: %w", err)
	}

	return interactions, nil
}
