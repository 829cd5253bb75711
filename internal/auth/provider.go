package auth

import (
	"context"
	"errors"
)

// ErrInvalidCode is returned by ExchangeCode when the provider rejects the
// one-time code (wrong, expired or already used).
var ErrInvalidCode = errors.New("auth: invalid or expired code")

// VerifiedProfile is what a provider vouches for after a successful code
// exchange. Email is the identity anchor.
type VerifiedProfile struct {
	Subject string
	Email   string
	Name    string
}

// IdentityProvider proves ownership of an email address with a one-time
// code sent to it.
type IdentityProvider interface {
	// StartVerification asks the provider to send a code to email.
	StartVerification(ctx context.Context, email string) error
	// ExchangeCode verifies code for email. It returns ErrInvalidCode when
	// the provider rejects the code and a plain error on transport failure.
	ExchangeCode(ctx context.Context, email, code string) (*VerifiedProfile, error)
}
