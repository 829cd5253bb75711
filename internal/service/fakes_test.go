package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sakif/memeboard/internal/apperror"
	"github.com/sakif/memeboard/internal/auth"
	"github.com/sakif/memeboard/internal/handle"
	"github.com/sakif/memeboard/internal/model"
	"github.com/sakif/memeboard/internal/repository"
)

// =========================================================================
// FAKE STORE
// =========================================================================
//
// fakeStore keeps everything in memory and enforces the same uniqueness
// rules as the real stores: one email per user, one user per handle, one
// interaction per (meme, user, type). A failing error makes every call
// return it.

type fakeStore struct {
	mu sync.Mutex

	users        map[int64]*model.User
	memes        map[int64]*model.Meme
	interactions []model.Interaction
	nextID       int64
	clock        time.Time

	setHandleCalls int
	failing        error
}

var _ repository.UserRepository = (*fakeStore)(nil)
var _ repository.MemeRepository = (*fakeStore)(nil)
var _ repository.InteractionRepository = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[int64]*model.User),
		memes: make(map[int64]*model.Meme),
		clock: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// tick advances the fake clock so CreatedAt values are distinct and ordered.
func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) UpsertByEmail(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing != nil {
		return f.failing
	}

	for _, u := range f.users {
		if u.Email == user.Email {
			u.LastLoginAt = f.tick()
			if u.Name == "" {
				u.Name = user.Name
			}
			*user = *u
			return nil
		}
	}

	f.nextID++
	now := f.tick()
	stored := &model.User{ID: f.nextID, Email: user.Email, Name: user.Name, CreatedAt: now, LastLoginAt: now}
	f.users[stored.ID] = stored
	*user = *stored
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing != nil {
		return nil, f.failing
	}

	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) HandleExists(_ context.Context, h string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing != nil {
		return false, f.failing
	}

	for _, u := range f.users {
		if u.Handle == h {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) SetHandle(_ context.Context, userID int64, h string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setHandleCalls++
	if f.failing != nil {
		return f.failing
	}

	for _, u := range f.users {
		if u.Handle == h && u.ID != userID {
			return apperror.HandleTaken(h)
		}
	}
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	u.Handle = h
	return nil
}

func (f *fakeStore) CreateMeme(_ context.Context, meme *model.Meme) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing != nil {
		return f.failing
	}

	f.nextID++
	meme.ID = f.nextID
	meme.Score = model.BaselineScore
	meme.CreatedAt = f.tick()
	stored := *meme
	f.memes[meme.ID] = &stored
	return nil
}

func (f *fakeStore) GetMemeByID(_ context.Context, id int64) (*model.Meme, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing != nil {
		return nil, f.failing
	}

	m, ok := f.memes[id]
	if !ok {
		return nil, apperror.NotFound("meme", id)
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) ListMemes(_ context.Context) ([]model.Meme, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing != nil {
		return nil, f.failing
	}

	// ids are handed out in increasing order, so this is insertion order.
	out := make([]model.Meme, 0, len(f.memes))
	for id := int64(1); id <= f.nextID; id++ {
		if m, ok := f.memes[id]; ok {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeStore) ApplyDelta(_ context.Context, memeID int64, delta int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applyDeltaLocked(memeID, delta)
}

func (f *fakeStore) applyDeltaLocked(memeID int64, delta int) (int, error) {
	if f.failing != nil {
		return 0, f.failing
	}
	m, ok := f.memes[memeID]
	if !ok {
		return 0, apperror.NotFound("meme", memeID)
	}
	m.Score += delta
	return m.Score, nil
}

func (f *fakeStore) RecordInteraction(_ context.Context, in *model.Interaction, delta int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing != nil {
		return 0, f.failing
	}

	if _, ok := f.memes[in.MemeID]; !ok {
		return 0, apperror.NotFound("meme", in.MemeID)
	}
	for _, existing := range f.interactions {
		if existing.MemeID == in.MemeID && sameUser(existing.UserID, in.UserID) && existing.Type == in.Type {
			return 0, apperror.DuplicateInteraction(in.MemeID, string(in.Type))
		}
	}

	score, err := f.applyDeltaLocked(in.MemeID, delta)
	if err != nil {
		return 0, err
	}

	f.nextID++
	in.ID = f.nextID
	in.CreatedAt = f.tick()
	f.interactions = append(f.interactions, *in)
	return score, nil
}

func (f *fakeStore) ListInteractions(_ context.Context, memeIDs []int64) ([]model.Interaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing != nil {
		return nil, f.failing
	}

	want := make(map[int64]bool, len(memeIDs))
	for _, id := range memeIDs {
		want[id] = true
	}

	out := make([]model.Interaction, 0)
	for i := len(f.interactions) - 1; i >= 0; i-- {
		in := f.interactions[i]
		if memeIDs != nil && !want[in.MemeID] {
			continue
		}
		if in.UserID != nil {
			if u, ok := f.users[*in.UserID]; ok {
				in.UserHandle = u.Handle
			}
		}
		out = append(out, in)
	}
	return out, nil
}

func sameUser(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// addUser inserts a user directly, bypassing login.
func (f *fakeStore) addUser(email, h string) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u := &model.User{ID: f.nextID, Email: email, Handle: h}
	f.users[u.ID] = u
	cp := *u
	return &cp
}

// =========================================================================
// FAKE PROVIDER AND ALLOCATOR
// =========================================================================

type fakeProvider struct {
	validCode string
	startErr  error
	exchErr   error
	started   []string
}

func (p *fakeProvider) StartVerification(_ context.Context, email string) error {
	if p.startErr != nil {
		return p.startErr
	}
	p.started = append(p.started, email)
	return nil
}

func (p *fakeProvider) ExchangeCode(_ context.Context, email, code string) (*auth.VerifiedProfile, error) {
	if p.exchErr != nil {
		return nil, p.exchErr
	}
	if code != p.validCode {
		return nil, auth.ErrInvalidCode
	}
	return &auth.VerifiedProfile{Subject: "sub|" + email, Email: email, Name: "Ada"}, nil
}

// fakeAllocator hands out its handles in order and then reports exhaustion.
// When gate is set, the first call signals entered and blocks until gate is
// closed, then fails if its context has ended, like a real store would.
type fakeAllocator struct {
	mu      sync.Mutex
	handles []string
	err     error
	calls   int

	gate    chan struct{}
	entered chan struct{}
}

func (a *fakeAllocator) Allocate(ctx context.Context) (string, error) {
	a.mu.Lock()
	gate := a.gate
	a.gate = nil
	a.mu.Unlock()

	if gate != nil {
		close(a.entered)
		<-gate
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	if len(a.handles) == 0 {
		return "", handle.ErrAllocationExhausted
	}
	h := a.handles[0]
	a.handles = a.handles[1:]
	return h, nil
}

// =========================================================================
// HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}
