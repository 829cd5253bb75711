// Package service holds the business rules of the board. Handlers call it
// with plain values; it talks to storage only through the repository
// interfaces and returns *apperror.AppError for caller-visible conditions.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/sakif/memeboard/internal/apperror"
	"github.com/sakif/memeboard/internal/auth"
	"github.com/sakif/memeboard/internal/handle"
	"github.com/sakif/memeboard/internal/metrics"
	"github.com/sakif/memeboard/internal/model"
	"github.com/sakif/memeboard/internal/repository"
)

// maxBackfillAttempts bounds how often a generated handle may lose the race
// for the unique constraint before backfill gives up.
const maxBackfillAttempts = 3

// backfillTimeout bounds a shared backfill flight, which outlives the
// request that started it.
const backfillTimeout = 10 * time.Second

var validate = validator.New(validator.WithRequiredStructEnabled())

// HandleAllocator draws a handle no user currently holds.
type HandleAllocator interface {
	Allocate(ctx context.Context) (string, error)
}

// IdentityService resolves session credentials, runs the email login flow
// and manages handles.
type IdentityService struct {
	users    repository.UserRepository
	tokens   *auth.TokenService
	provider auth.IdentityProvider
	handles  HandleAllocator
	metrics  *metrics.Metrics
	logger   *slog.Logger

	backfills singleflight.Group
}

// compile-time check that IdentityService can back the session middleware
var _ auth.Resolver = (*IdentityService)(nil)

func NewIdentityService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	provider auth.IdentityProvider,
	handles HandleAllocator,
	m *metrics.Metrics,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		users:    users,
		tokens:   tokens,
		provider: provider,
		handles:  handles,
		metrics:  m,
		logger:   logger,
	}
}

// Session is a user together with a credential to hand back to the client.
type Session struct {
	User  *model.User
	Token string
}

// Resolve maps a credential to its user. Bad credentials and deleted users
// resolve to nil without an error; only storage failures are returned.
//
// A user without a handle is given one before Resolve returns. When the
// stored handle differs from the one in the credential, refreshed carries a
// new credential for the caller to store.
func (s *IdentityService) Resolve(ctx context.Context, credential string) (*model.User, string, error) {
	claims, err := s.tokens.Parse(credential)
	if err != nil {
		s.logger.Debug("ignoring unusable credential", slog.String("reason", err.Error()))
		return nil, "", nil
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, "", nil
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("service/identity: loading user %d: %w", userID, err)
	}

	if user.Handle == "" {
		if user, err = s.ensureHandle(ctx, user); err != nil {
			return nil, "", err
		}
	}

	if user.Handle == claims.Handle {
		return user, "", nil
	}

	refreshed, err := s.tokens.Issue(user)
	if err != nil {
		return nil, "", fmt.Errorf("service/identity: reissuing credential for user %d: %w", user.ID, err)
	}
	return user, refreshed, nil
}

// Issue signs a fresh credential for user.
func (s *IdentityService) Issue(user *model.User) (string, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", fmt.Errorf("service/identity: %w", err)
	}
	return token, nil
}

// BeginLogin asks the identity provider to send a one-time code to email.
func (s *IdentityService) BeginLogin(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	if err := s.provider.StartVerification(ctx, email); err != nil {
		s.metrics.Login(metrics.LoginProviderFail)
		return fmt.Errorf("service/identity: starting verification: %w", err)
	}

	s.metrics.Login(metrics.LoginStarted)
	s.logger.Info("login code requested", slog.String("email", email))
	return nil
}

// CompleteLogin exchanges the code, creates or updates the user, makes sure
// they have a handle and issues a credential.
func (s *IdentityService) CompleteLogin(ctx context.Context, email, code string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperror.ValidationFailed("code", "code is required")
	}

	profile, err := s.provider.ExchangeCode(ctx, email, code)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCode) {
			s.metrics.Login(metrics.LoginInvalidCode)
			return nil, apperror.InvalidCode()
		}
		s.metrics.Login(metrics.LoginProviderFail)
		return nil, fmt.Errorf("service/identity: exchanging code: %w", err)
	}

	// The address the code was sent to is the identity anchor.
	user := &model.User{Email: email, Name: strings.TrimSpace(profile.Name)}
	if err := s.users.UpsertByEmail(ctx, user); err != nil {
		return nil, fmt.Errorf("service/identity: upserting user %s: %w", email, err)
	}

	if user.Handle == "" {
		if user, err = s.ensureHandle(ctx, user); err != nil {
			return nil, err
		}
	}

	token, err := s.Issue(user)
	if err != nil {
		return nil, err
	}

	s.metrics.Login(metrics.LoginSucceeded)
	s.logger.Info("user logged in",
		slog.Int64("userID", user.ID),
		slog.String("handle", user.Handle),
		slog.String("subject", profile.Subject),
	)
	return &Session{User: user, Token: token}, nil
}

// Profile returns the profile view of user.
func (s *IdentityService) Profile(user *model.User) (model.Profile, error) {
	if user == nil {
		return model.Profile{}, apperror.Unauthenticated()
	}
	return user.Profile(), nil
}

// UpdateHandle sets a user-chosen handle. Choosing one's current handle
// succeeds without touching storage. The returned session carries a
// credential with the new handle.
func (s *IdentityService) UpdateHandle(ctx context.Context, user *model.User, candidate string) (*Session, error) {
	if user == nil {
		return nil, apperror.Unauthenticated()
	}

	h := handle.Normalize(candidate)
	if err := handle.ValidateFormat(h); err != nil {
		return nil, err
	}

	updated := *user
	if h != user.Handle {
		if err := s.users.SetHandle(ctx, user.ID, h); err != nil {
			if errors.Is(err, apperror.ErrHandleTaken) || errors.Is(err, apperror.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("service/identity: setting handle for user %d: %w", user.ID, err)
		}
		updated.Handle = h

		s.logger.Info("handle changed",
			slog.Int64("userID", user.ID),
			slog.String("from", user.Handle),
			slog.String("to", h),
		)
	}

	token, err := s.Issue(&updated)
	if err != nil {
		return nil, err
	}
	return &Session{User: &updated, Token: token}, nil
}

// ensureHandle allocates and persists a handle for user. Concurrent calls
// for the same user share one allocation. The flight runs detached from the
// caller that started it so cancelling one request cannot fail the others;
// each caller still stops waiting when its own context ends.
func (s *IdentityService) ensureHandle(ctx context.Context, user *model.User) (*model.User, error) {
	ch := s.backfills.DoChan(strconv.FormatInt(user.ID, 10), func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backfillTimeout)
		defer cancel()
		return s.backfillHandle(flightCtx, user.ID)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("service/identity: waiting for handle of user %d: %w", user.ID, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		u := *res.Val.(*model.User)
		return &u, nil
	}
}

func (s *IdentityService) backfillHandle(ctx context.Context, userID int64) (*model.User, error) {
	// Re-read: a previous flight may have finished between the caller's
	// read and this one.
	current, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: reloading user %d: %w", userID, err)
	}
	if current.Handle != "" {
		return current, nil
	}

	for attempt := 0; attempt < maxBackfillAttempts; attempt++ {
		h, err := s.handles.Allocate(ctx)
		if err != nil {
			if errors.Is(err, handle.ErrAllocationExhausted) {
				s.metrics.HandleAllocated(false)
				s.logger.Error("handle allocation exhausted", slog.Int64("userID", userID))
			}
			return nil, fmt.Errorf("service/identity: allocating handle for user %d: %w", userID, err)
		}

		err = s.users.SetHandle(ctx, userID, h)
		if errors.Is(err, apperror.ErrHandleTaken) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("service/identity: assigning handle for user %d: %w", userID, err)
		}

		current.Handle = h
		s.metrics.HandleAllocated(true)
		s.logger.Info("handle assigned", slog.Int64("userID", userID), slog.String("handle", h))
		return current, nil
	}

	s.metrics.HandleAllocated(false)
	s.logger.Error("handle allocation exhausted", slog.Int64("userID", userID))
	return nil, fmt.Errorf("service/identity: assigning handle for user %d: %w", userID, handle.ErrAllocationExhausted)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return "", apperror.ValidationFailed("email", "a valid email address is required")
	}
	return email, nil
}
