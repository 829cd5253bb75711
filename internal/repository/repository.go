// Package repository declares the storage interfaces the service layer needs.
// Implementations live in the sqlite and postgres subpackages.
package repository

import (
	"context"

	"github.com/sakif/memeboard/internal/model"
)

// UserRepository stores users. Email and handle are unique.
type UserRepository interface {
	// UpsertByEmail creates the user on first login or bumps LastLoginAt on
	// later ones. A stored name is kept; an empty one is filled from user.Name.
	// The canonical record is written back into user.
	UpsertByEmail(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	HandleExists(ctx context.Context, handle string) (bool, error)
	// SetHandle assigns handle to the user. It returns apperror.HandleTaken
	// when another user holds it and apperror.NotFound for an unknown user.
	SetHandle(ctx context.Context, userID int64, handle string) error
}

// MemeRepository stores memes.
type MemeRepository interface {
	// CreateMeme inserts the meme with the baseline score and fills in ID,
	// Score and CreatedAt.
	CreateMeme(ctx context.Context, meme *model.Meme) error
	GetMemeByID(ctx context.Context, id int64) (*model.Meme, error)
	// ListMemes returns every meme in insertion order.
	ListMemes(ctx context.Context) ([]model.Meme, error)
	// ApplyDelta adds delta to the meme's score as a single relative update
	// and returns the new score.
	ApplyDelta(ctx context.Context, memeID int64, delta int) (int, error)
}

// InteractionRepository is the interaction ledger.
type InteractionRepository interface {
	// RecordInteraction inserts the entry and applies delta to the meme's
	// score in one transaction. A second entry for the same (meme, user,
	// type) yields apperror.DuplicateInteraction and changes nothing.
	RecordInteraction(ctx context.Context, in *model.Interaction, delta int) (newScore int, err error)
	// ListInteractions returns the interactions of the given memes, newest
	// first, with UserHandle filled in. A nil slice means all memes.
	ListInteractions(ctx context.Context, memeIDs []int64) ([]model.Interaction, error)
}

// Store is everything a storage backend provides.
type Store interface {
	UserRepository
	MemeRepository
	InteractionRepository
	Ping(ctx context.Context) error
	Close() error
}
