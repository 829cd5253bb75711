package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/memeboard/internal/apperror"
	"github.com/sakif/memeboard/internal/metrics"
	"github.com/sakif/memeboard/internal/model"
	"github.com/sakif/memeboard/internal/repository"
)

// MaxCommentLength is the longest interaction comment, in characters.
const MaxCommentLength = 500

// LedgerService records interactions. Each recorded interaction moves the
// meme's score by its type's fixed delta in the same transaction.
type LedgerService struct {
	interactions repository.InteractionRepository
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func NewLedgerService(interactions repository.InteractionRepository, m *metrics.Metrics, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		interactions: interactions,
		metrics:      m,
		logger:       logger,
	}
}

// Recorded is a new ledger entry and the meme's score after it.
type Recorded struct {
	Interaction *model.Interaction `json:"interaction"`
	Score       int                `json:"score"`
}

// Record adds one interaction of typ by user on the meme. A user may hold
// at most one interaction of each type per meme.
func (s *LedgerService) Record(ctx context.Context, memeID int64, user *model.User, typ, comment string) (*Recorded, error) {
	if user == nil {
		return nil, apperror.Unauthenticated()
	}

	t := model.InteractionType(typ)
	if !t.Valid() {
		return nil, apperror.InvalidType(typ)
	}

	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return nil, apperror.ValidationFailed("comment",
			fmt.Sprintf("comment must be %d characters or less", MaxCommentLength))
	}

	userID := user.ID
	in := &model.Interaction{
		MemeID:     memeID,
		UserID:     &userID,
		UserHandle: user.Handle,
		Type:       t,
		Comment:    comment,
	}

	score, err := s.interactions.RecordInteraction(ctx, in, t.Delta())
	if err != nil {
		switch {
		case errors.Is(err, apperror.ErrDuplicateInteraction):
			s.metrics.InteractionDuplicate(string(t))
			return nil, err
		case errors.Is(err, apperror.ErrNotFound):
			return nil, err
		}
		s.logger.Error("failed to record interaction",
			slog.Int64("memeID", memeID),
			slog.Int64("userID", user.ID),
			slog.String("type", string(t)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/ledger: recording interaction: %w", err)
	}

	s.metrics.InteractionRecorded(string(t))
	s.logger.Info("interaction recorded",
		slog.Int64("memeID", memeID),
		slog.Int64("userID", user.ID),
		slog.String("type", string(t)),
		slog.Int("score", score),
	)
	return &Recorded{Interaction: in, Score: score}, nil
}
