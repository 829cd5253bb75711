package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/sakif/memeboard/internal/apperror"
	"github.com/sakif/memeboard/internal/metrics"
	"github.com/sakif/memeboard/internal/model"
	"github.com/sakif/memeboard/internal/repository"
)

// MaxContentLength is the longest meme, in characters.
const MaxContentLength = 1000

// CatalogService creates memes and lists them with their interactions.
type CatalogService struct {
	memes        repository.MemeRepository
	interactions repository.InteractionRepository
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func NewCatalogService(
	memes repository.MemeRepository,
	interactions repository.InteractionRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		memes:        memes,
		interactions: interactions,
		metrics:      m,
		logger:       logger,
	}
}

// Create posts a meme for author. Content is stored trimmed. The author
// label is fixed now and never re-derived.
func (s *CatalogService) Create(ctx context.Context, author *model.User, content string) (*model.Meme, error) {
	if author == nil {
		return nil, apperror.Unauthenticated()
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.EmptyContent()
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("content must be %d characters or less", MaxContentLength))
	}

	authorID := author.ID
	meme := &model.Meme{
		Content:     content,
		UserID:      &authorID,
		AuthorLabel: author.DisplayLabel(),
	}

	if err := s.memes.CreateMeme(ctx, meme); err != nil {
		s.logger.Error("failed to create meme",
			slog.Int64("userID", author.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/catalog: creating meme: %w", err)
	}
	meme.Interactions = []model.Interaction{}

	s.metrics.MemeCreated()
	s.logger.Info("meme created",
		slog.Int64("id", meme.ID),
		slog.String("author", meme.AuthorLabel),
	)
	return meme, nil
}

// Get returns one meme with its interactions, newest first.
func (s *CatalogService) Get(ctx context.Context, id int64) (*model.Meme, error) {
	meme, err := s.memes.GetMemeByID(ctx, id)
	if err != nil {
		return nil, err
	}

	interactions, err := s.interactions.ListInteractions(ctx, []int64{id})
	if err != nil {
		return nil, fmt.Errorf("service/catalog: listing interactions of meme %d: %w", id, err)
	}
	meme.Interactions = interactions
	return meme, nil
}

// ListWithInteractions returns every meme with its interactions (newest
// first), ordered by key, descending. Ties keep insertion order.
func (s *CatalogService) ListWithInteractions(ctx context.Context, key model.SortKey) ([]model.Meme, error) {
	if _, ok := model.ParseSortKey(string(key)); !ok {
		return nil, apperror.ValidationFailed("sort",
			fmt.Sprintf("sort must be one of %q, %q or %q", model.SortByScore, model.SortByNewest, model.SortByInteractions))
	}
	if key == "" {
		key = model.SortByScore
	}

	memes, err := s.memes.ListMemes(ctx)
	if err != nil {
		s.logger.Error("failed to list memes", slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/catalog: listing memes: %w", err)
	}

	all, err := s.interactions.ListInteractions(ctx, nil)
	if err != nil {
		s.logger.Error("failed to list interactions", slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/catalog: listing interactions: %w", err)
	}

	byMeme := make(map[int64][]model.Interaction, len(memes))
	for _, in := range all {
		byMeme[in.MemeID] = append(byMeme[in.MemeID], in)
	}
	for i := range memes {
		memes[i].Interactions = byMeme[memes[i].ID]
		if memes[i].Interactions == nil {
			memes[i].Interactions = []model.Interaction{}
		}
	}

	sortMemes(memes, key)
	return memes, nil
}

// sortMemes orders memes descending by key. The sort is stable, so memes
// that tie stay in the order the store returned them (insertion order).
func sortMemes(memes []model.Meme, key model.SortKey) {
	var compare func(a, b model.Meme) int
	switch key {
	case model.SortByNewest:
		compare = func(a, b model.Meme) int { return b.CreatedAt.Compare(a.CreatedAt) }
	case model.SortByInteractions:
		compare = func(a, b model.Meme) int { return cmp.Compare(len(b.Interactions), len(a.Interactions)) }
	default:
		compare = func(a, b model.Meme) int { return cmp.Compare(b.Score, a.Score) }
	}
	slices.SortStableFunc(memes, compare)
}
