// Package handle allocates and validates user handles.
//
// A handle is lowercase letters and digits in segments joined by single
// hyphens, e.g. "brave-otter-042". Users without one get a random handle
// drawn as {adjective}-{noun}-{NNN}; users may later pick their own.
package handle

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"

	"github.com/sakif/memeboard/internal/apperror"
)

const (
	MinLength = 3
	MaxLength = 32

	// DefaultMaxAttempts bounds how many random draws Allocate makes before
	// giving up.
	DefaultMaxAttempts = 10
)

// ErrAllocationExhausted is returned when every draw collided with an
// existing handle. Callers must not fall back to a non-unique handle.
var ErrAllocationExhausted = errors.New("handle: allocation attempts exhausted")

var pattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Normalize trims surrounding whitespace and lowercases the candidate.
func Normalize(candidate string) string {
	return strings.ToLower(strings.TrimSpace(candidate))
}

// ValidateFormat checks an already-normalized handle against the format rule.
func ValidateFormat(candidate string) error {
	if n := len(candidate); n < MinLength || n > MaxLength {
		return apperror.InvalidFormat("handle",
			fmt.Sprintf("handle must be between %d and %d characters", MinLength, MaxLength))
	}
	if !pattern.MatchString(candidate) {
		return apperror.InvalidFormat("handle",
			"handle may contain only lowercase letters, digits and single hyphens between them")
	}
	return nil
}

// Checker reports whether a handle is already assigned to some user.
type Checker interface {
	HandleExists(ctx context.Context, handle string) (bool, error)
}

// Allocator draws random handles that are not yet taken.
//
// The existence check is advisory: the store's unique constraint on handles
// is what actually guarantees uniqueness, so callers persisting the result
// must still handle a HandleTaken conflict.
type Allocator struct {
	users       Checker
	maxAttempts int

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewAllocator creates an Allocator with a randomly seeded generator.
func NewAllocator(users Checker) *Allocator {
	return NewAllocatorWithSource(users, rand.NewPCG(rand.Uint64(), rand.Uint64()), DefaultMaxAttempts)
}

// NewAllocatorWithSource creates an Allocator with an explicit random source
// and attempt bound. Tests use it for deterministic draws.
func NewAllocatorWithSource(users Checker, src rand.Source, maxAttempts int) *Allocator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Allocator{
		users:       users,
		maxAttempts: maxAttempts,
		rng:         rand.New(src),
	}
}

// Generate draws one candidate. It always satisfies ValidateFormat.
func (a *Allocator) Generate() string {
	a.mu.Lock()
	adj := adjectives[a.rng.IntN(len(adjectives))]
	noun := nouns[a.rng.IntN(len(nouns))]
	num := a.rng.IntN(1000)
	a.mu.Unlock()

	return fmt.Sprintf("%s-%s-%03d", adj, noun, num)
}

// Allocate returns a handle that no user holds at the time of the check.
// After MaxAttempts collisions it returns ErrAllocationExhausted.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		candidate := a.Generate()

		taken, err := a.users.HandleExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("handle: checking %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrAllocationExhausted
}
