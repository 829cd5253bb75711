package model

import "time"

// InteractionType is one of the three fixed reactions.
type InteractionType string

const (
	Refute InteractionType = "refute"
	Refine InteractionType = "refine"
	Praise InteractionType = "praise"
)

// deltas is the fixed score effect of each interaction type.
var deltas = map[InteractionType]int{
	Refute: -15,
	Refine: 10,
	Praise: 5,
}

// InteractionTypes lists the valid types in display order.
var InteractionTypes = []InteractionType{Refute, Refine, Praise}

// Valid reports whether t is one of the fixed interaction types.
func (t InteractionType) Valid() bool {
	_, ok := deltas[t]
	return ok
}

// Delta returns the score delta for t, or 0 for an unknown type.
func (t InteractionType) Delta() int {
	return deltas[t]
}

// Interaction is a single ledger entry: one reaction by one user to one meme.
// At most one exists per (MemeID, UserID, Type). Entries are never edited.
//
// UserHandle is filled in on reads from the author's current handle and is
// not stored on the row.
type Interaction struct {
	ID         int64           `json:"id"`
	MemeID     int64           `json:"memeId"`
	UserID     *int64          `json:"userId"`
	UserHandle string          `json:"userHandle,omitempty"`
	Type       InteractionType `json:"type"`
	Comment    string          `json:"comment"`
	CreatedAt  time.Time       `json:"createdAt"`
}
