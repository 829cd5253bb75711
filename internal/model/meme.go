// Package model defines the data structures used throughout the application.
package model

import "time"

// BaselineScore is the score every meme starts with.
const BaselineScore = 100

// Meme is a short text item posted to the board.
//
// UserID is nil for legacy rows that were never attributed to an account.
// AuthorLabel is a snapshot taken at creation time and is never re-derived,
// so renaming a user does not rewrite history.
//
// Score is derived state: it always equals BaselineScore plus the sum of the
// deltas of the meme's interactions. Only the ledger moves it.
type Meme struct {
	ID           int64         `json:"id"`
	Content      string        `json:"content"`
	UserID       *int64        `json:"userId"`
	AuthorLabel  string        `json:"author"`
	Score        int           `json:"score"`
	CreatedAt    time.Time     `json:"createdAt"`
	Interactions []Interaction `json:"interactions"`
}

// SortKey selects the ordering of a meme listing.
type SortKey string

const (
	SortByScore        SortKey = "score"
	SortByNewest       SortKey = "new"
	SortByInteractions SortKey = "interactions"
)

// ParseSortKey maps a query value to a SortKey. The empty string means score.
func ParseSortKey(s string) (SortKey, bool) {
	switch SortKey(s) {
	case "", SortByScore:
		return SortByScore, true
	case SortByNewest, SortByInteractions:
		return SortKey(s), true
	default:
		return "", false
	}
}
