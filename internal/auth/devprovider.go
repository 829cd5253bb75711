package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DevCodeTTL is how long a development login code stays valid.
const DevCodeTTL = 10 * time.Minute

// DevMaxAttempts wrong codes discard a pending code.
const DevMaxAttempts = 5

var _ IdentityProvider = (*DevProvider)(nil)

// DevProvider is an in-process IdentityProvider for local development. It
// generates a six-digit code, logs it instead of emailing it, and keeps only
// its bcrypt hash. A code is single-use.
type DevProvider struct {
	logger  *slog.Logger
	cost    int
	now     func() time.Time
	newCode func() (string, error)

	mu      sync.Mutex
	pending map[string]pendingCode
}

type pendingCode struct {
	hash      []byte
	expiresAt time.Time
	failures  int
}

// NewDevProvider creates a DevProvider with bcrypt's default cost.
func NewDevProvider(logger *slog.Logger) *DevProvider {
	return &DevProvider{
		logger:  logger,
		cost:    bcrypt.DefaultCost,
		now:     time.Now,
		newCode: randomCode,
		pending: make(map[string]pendingCode),
	}
}

// StartVerification replaces any pending code for email with a fresh one.
func (p *DevProvider) StartVerification(_ context.Context, email string) error {
	code, err := p.newCode()
	if err != nil {
		return fmt.Errorf("auth: generating login code: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), p.cost)
	if err != nil {
		return fmt.Errorf("auth: hashing login code: %w", err)
	}

	key := strings.ToLower(email)
	p.mu.Lock()
	p.pending[key] = pendingCode{hash: hash, expiresAt: p.now().Add(DevCodeTTL)}
	p.mu.Unlock()

	p.logger.Info("dev login code issued",
		slog.String("email", key),
		slog.String("code", code),
	)
	return nil
}

// ExchangeCode checks code against the pending hash for email. A wrong code
// leaves the pending entry in place until DevMaxAttempts wrong codes have
// been tried; a correct or expired one removes it.
func (p *DevProvider) ExchangeCode(_ context.Context, email, code string) (*VerifiedProfile, error) {
	key := strings.ToLower(email)

	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.pending[key]
	if !ok {
		return nil, ErrInvalidCode
	}
	if !p.now().Before(entry.expiresAt) {
		delete(p.pending, key)
		return nil, ErrInvalidCode
	}

	if err := bcrypt.CompareHashAndPassword(entry.hash, []byte(code)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			entry.failures++
			if entry.failures >= DevMaxAttempts {
				delete(p.pending, key)
				p.logger.Warn("dev login code discarded after repeated failures", slog.String("email", key))
			} else {
				p.pending[key] = entry
			}
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("auth: comparing login code: %w", err)
	}
	delete(p.pending, key)

	return &VerifiedProfile{
		Subject: "dev|" + uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+key)).String(),
		Email:   key,
	}, nil
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
