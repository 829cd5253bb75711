package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sakif/memeboard/internal/apperror"
	"github.com/sakif/memeboard/internal/handle"
	"github.com/sakif/memeboard/internal/metrics"
	"github.com/sakif/memeboard/internal/model"
)

type identityFixture struct {
	svc      *IdentityService
	store    *fakeStore
	provider *fakeProvider
	handles  *fakeAllocator
}

func newIdentityFixture(t *testing.T, handles ...string) *identityFixture {
	t.Helper()
	store := newFakeStore()
	provider := &fakeProvider{validCode: "123456"}
	alloc := &fakeAllocator{handles: handles}
	svc := NewIdentityService(store, newTestTokens(t), provider, alloc, metrics.New(), discardLogger())
	return &identityFixture{svc: svc, store: store, provider: provider, handles: alloc}
}

// =========================================================================
// RESOLVE
// =========================================================================

func TestResolve_UnusableCredentialsAreAnonymous(t *testing.T) {
	f := newIdentityFixture(t)
	ctx := context.Background()

	for _, credential := range []string{"", "garbage", "a.b.c"} {
		user, refreshed, err := f.svc.Resolve(ctx, credential)
		if err != nil || user != nil || refreshed != "" {
			t.Errorf("Resolve(%q) = %v, %q, %v; want nil, \"\", nil", credential, user, refreshed, err)
		}
	}
}

func TestResolve_DeletedUserIsAnonymous(t *testing.T) {
	f := newIdentityFixture(t)

	token, err := f.svc.Issue(&model.User{ID: 999, Email: "gone@example.com", Handle: "gone-user"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	user, _, err := f.svc.Resolve(context.Background(), token)
	if err != nil || user != nil {
		t.Errorf("Resolve() = %v, %v; want nil, nil", user, err)
	}
}

func TestResolve_StorageFailureIsAnError(t *testing.T) {
	f := newIdentityFixture(t)
	u := f.store.addUser("ada@example.com", "brave-otter-123")
	token, _ := f.svc.Issue(u)

	f.store.failing = errors.New("disk on fire")

	_, _, err := f.svc.Resolve(context.Background(), token)
	if err == nil {
		t.Fatal("Resolve() should surface storage failures")
	}
}

func TestResolve_CurrentHandleNoRefresh(t *testing.T) {
	f := newIdentityFixture(t)
	u := f.store.addUser("ada@example.com", "brave-otter-123")
	token, _ := f.svc.Issue(u)

	user, refreshed, err := f.svc.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if user == nil || user.ID != u.ID {
		t.Fatalf("Resolve() user = %+v, want id %d", user, u.ID)
	}
	if refreshed != "" {
		t.Error("Resolve() refreshed a credential whose handle is current")
	}
}

func TestResolve_StaleHandleRefreshes(t *testing.T) {
	f := newIdentityFixture(t)
	u := f.store.addUser("ada@example.com", "old-handle")
	token, _ := f.svc.Issue(u)

	if err := f.store.SetHandle(context.Background(), u.ID, "new-handle"); err != nil {
		t.Fatalf("SetHandle() error = %v", err)
	}

	user, refreshed, err := f.svc.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if user.Handle != "new-handle" {
		t.Errorf("Handle = %q, want %q", user.Handle, "new-handle")
	}
	if refreshed == "" {
		t.Fatal("Resolve() should reissue a credential when the handle changed")
	}

	claims, err := f.svc.tokens.Parse(refreshed)
	if err != nil {
		t.Fatalf("Parse(refreshed) error = %v", err)
	}
	if claims.Handle != "new-handle" {
		t.Errorf("refreshed handle claim = %q, want %q", claims.Handle, "new-handle")
	}
}

func TestResolve_BackfillsMissingHandle(t *testing.T) {
	f := newIdentityFixture(t, "quiet-heron-007")
	u := f.store.addUser("ada@example.com", "")
	token, _ := f.svc.Issue(u)

	user, refreshed, err := f.svc.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if user.Handle != "quiet-heron-007" {
		t.Errorf("Handle = %q, want %q", user.Handle, "quiet-heron-007")
	}
	if refreshed == "" {
		t.Error("a backfilled handle should produce a refreshed credential")
	}

	stored, _ := f.store.GetUserByID(context.Background(), u.ID)
	if stored.Handle != "quiet-heron-007" {
		t.Errorf("stored handle = %q, want it persisted", stored.Handle)
	}
}

func TestResolve_ConcurrentBackfillAssignsOnce(t *testing.T) {
	f := newIdentityFixture(t, "first-pick-001", "second-pick-002", "third-pick-003")
	u := f.store.addUser("ada@example.com", "")
	token, _ := f.svc.Issue(u)

	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		handles = make(map[string]int)
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, _, err := f.svc.Resolve(context.Background(), token)
			if err != nil {
				t.Errorf("Resolve() error = %v", err)
				return
			}
			mu.Lock()
			handles[user.Handle]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(handles) != 1 || handles["first-pick-001"] != n {
		t.Errorf("handles seen = %v, want all %d resolutions to see first-pick-001", handles, n)
	}
	if f.store.setHandleCalls != 1 {
		t.Errorf("SetHandle calls = %d, want 1", f.store.setHandleCalls)
	}
}

func TestResolve_CancelledCallerDoesNotFailSharedBackfill(t *testing.T) {
	f := newIdentityFixture(t, "only-handle-001")
	f.handles.gate = make(chan struct{})
	f.handles.entered = make(chan struct{})
	u := f.store.addUser("ada@example.com", "")
	token, _ := f.svc.Issue(u)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, _, err := f.svc.Resolve(ctxA, token)
		errA <- err
	}()
	<-f.handles.entered

	type result struct {
		user *model.User
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		user, _, err := f.svc.Resolve(context.Background(), token)
		resB <- result{user, err}
	}()

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller error = %v, want context.Canceled", err)
	}
	close(f.handles.gate)

	b := <-resB
	if b.err != nil {
		t.Fatalf("live caller error = %v", b.err)
	}
	if b.user.Handle != "only-handle-001" {
		t.Errorf("Handle = %q, want %q", b.user.Handle, "only-handle-001")
	}

	stored, _ := f.store.GetUserByID(context.Background(), u.ID)
	if stored.Handle != "only-handle-001" {
		t.Errorf("stored handle = %q, want it persisted", stored.Handle)
	}
}

func TestResolve_BackfillRetriesTakenHandle(t *testing.T) {
	f := newIdentityFixture(t, "taken-handle", "free-handle")
	f.store.addUser("other@example.com", "taken-handle")
	u := f.store.addUser("ada@example.com", "")
	token, _ := f.svc.Issue(u)

	user, _, err := f.svc.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if user.Handle != "free-handle" {
		t.Errorf("Handle = %q, want %q", user.Handle, "free-handle")
	}
}

func TestResolve_BackfillExhausted(t *testing.T) {
	f := newIdentityFixture(t)
	u := f.store.addUser("ada@example.com", "")
	token, _ := f.svc.Issue(u)

	_, _, err := f.svc.Resolve(context.Background(), token)
	if !errors.Is(err, handle.ErrAllocationExhausted) {
		t.Fatalf("Resolve() error = %v, want ErrAllocationExhausted", err)
	}

	stored, _ := f.store.GetUserByID(context.Background(), u.ID)
	if stored.Handle != "" {
		t.Errorf("stored handle = %q, want none after exhaustion", stored.Handle)
	}
}

// =========================================================================
// LOGIN
// =========================================================================

func TestBeginLogin(t *testing.T) {
	f := newIdentityFixture(t)

	if err := f.svc.BeginLogin(context.Background(), "  Ada@Example.COM "); err != nil {
		t.Fatalf("BeginLogin() error = %v", err)
	}
	if len(f.provider.started) != 1 || f.provider.started[0] != "ada@example.com" {
		t.Errorf("provider saw %v, want the normalized address", f.provider.started)
	}
}

func TestBeginLogin_InvalidEmail(t *testing.T) {
	f := newIdentityFixture(t)

	for _, email := range []string{"", "not-an-email", "@example.com"} {
		err := f.svc.BeginLogin(context.Background(), email)
		if !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("BeginLogin(%q) error = %v, want ErrValidation", email, err)
		}
	}
	if len(f.provider.started) != 0 {
		t.Error("provider should not be called for invalid emails")
	}
}

func TestBeginLogin_ProviderFailure(t *testing.T) {
	f := newIdentityFixture(t)
	f.provider.startErr = errors.New("provider down")

	err := f.svc.BeginLogin(context.Background(), "ada@example.com")
	if err == nil {
		t.Fatal("BeginLogin() should fail when the provider does")
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		t.Errorf("provider failure should not be a caller-visible AppError, got %v", appErr)
	}
}

func TestCompleteLogin_NewUser(t *testing.T) {
	f := newIdentityFixture(t, "brave-otter-123")

	sess, err := f.svc.CompleteLogin(context.Background(), "Ada@example.com", "123456")
	if err != nil {
		t.Fatalf("CompleteLogin() error = %v", err)
	}
	if sess.User.ID == 0 || sess.User.Email != "ada@example.com" {
		t.Errorf("user = %+v", sess.User)
	}
	if sess.User.Handle != "brave-otter-123" {
		t.Errorf("Handle = %q, want a backfilled handle", sess.User.Handle)
	}
	if sess.User.Name != "Ada" {
		t.Errorf("Name = %q, want the provider's name", sess.User.Name)
	}

	claims, err := f.svc.tokens.Parse(sess.Token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Handle != "brave-otter-123" || claims.Email != "ada@example.com" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestCompleteLogin_ReturningUserKeepsIdentity(t *testing.T) {
	f := newIdentityFixture(t, "brave-otter-123", "unused-handle-999")
	ctx := context.Background()

	first, err := f.svc.CompleteLogin(ctx, "ada@example.com", "123456")
	if err != nil {
		t.Fatalf("first CompleteLogin() error = %v", err)
	}
	second, err := f.svc.CompleteLogin(ctx, "ada@example.com", "123456")
	if err != nil {
		t.Fatalf("second CompleteLogin() error = %v", err)
	}

	if second.User.ID != first.User.ID {
		t.Errorf("ID = %d, want %d", second.User.ID, first.User.ID)
	}
	if second.User.Handle != "brave-otter-123" {
		t.Errorf("Handle = %q, want the original handle", second.User.Handle)
	}
	if f.handles.calls != 1 {
		t.Errorf("allocator calls = %d, want 1", f.handles.calls)
	}
}

func TestCompleteLogin_InvalidCode(t *testing.T) {
	f := newIdentityFixture(t, "brave-otter-123")

	_, err := f.svc.CompleteLogin(context.Background(), "ada@example.com", "000000")
	if !errors.Is(err, apperror.ErrInvalidCode) {
		t.Fatalf("CompleteLogin() error = %v, want ErrInvalidCode", err)
	}
	if !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Error("invalid code should be an authentication failure")
	}
	if len(f.store.users) != 0 {
		t.Error("no user should be created on a failed exchange")
	}
}

func TestCompleteLogin_MissingCode(t *testing.T) {
	f := newIdentityFixture(t)

	_, err := f.svc.CompleteLogin(context.Background(), "ada@example.com", "   ")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("CompleteLogin() error = %v, want ErrValidation", err)
	}
}

// =========================================================================
// PROFILE AND HANDLE UPDATES
// =========================================================================

func TestProfile(t *testing.T) {
	f := newIdentityFixture(t)

	p, err := f.svc.Profile(&model.User{Email: "ada@example.com", Handle: "ada", Name: "Ada"})
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p != (model.Profile{Email: "ada@example.com", Handle: "ada", Name: "Ada"}) {
		t.Errorf("Profile() = %+v", p)
	}

	if _, err := f.svc.Profile(nil); !errors.Is(err, apperror.ErrUnauthenticated) {
		t.Errorf("Profile(nil) error = %v, want ErrUnauthenticated", err)
	}
}

func TestUpdateHandle_NormalizesAndReissues(t *testing.T) {
	f := newIdentityFixture(t)
	u := f.store.addUser("ada@example.com", "brave-otter-123")

	sess, err := f.svc.UpdateHandle(context.Background(), u, "  Cool-Name ")
	if err != nil {
		t.Fatalf("UpdateHandle() error = %v", err)
	}
	if sess.User.Handle != "cool-name" {
		t.Errorf("Handle = %q, want %q", sess.User.Handle, "cool-name")
	}

	claims, _ := f.svc.tokens.Parse(sess.Token)
	if claims.Handle != "cool-name" {
		t.Errorf("credential handle = %q, want %q", claims.Handle, "cool-name")
	}

	stored, _ := f.store.GetUserByID(context.Background(), u.ID)
	if stored.Handle != "cool-name" {
		t.Errorf("stored handle = %q", stored.Handle)
	}
}

func TestUpdateHandle_SelfSetIsNoop(t *testing.T) {
	f := newIdentityFixture(t)
	u := f.store.addUser("ada@example.com", "brave-otter-123")

	for range 2 {
		sess, err := f.svc.UpdateHandle(context.Background(), u, "BRAVE-OTTER-123")
		if err != nil {
			t.Fatalf("UpdateHandle(self) error = %v", err)
		}
		if sess.User.Handle != "brave-otter-123" {
			t.Errorf("Handle = %q", sess.User.Handle)
		}
	}
	if f.store.setHandleCalls != 0 {
		t.Errorf("SetHandle calls = %d, want 0 for a self-set", f.store.setHandleCalls)
	}
}

func TestUpdateHandle_Errors(t *testing.T) {
	f := newIdentityFixture(t)
	f.store.addUser("bob@example.com", "taken-name")
	u := f.store.addUser("ada@example.com", "brave-otter-123")

	tests := []struct {
		name      string
		user      *model.User
		candidate string
		want      error
	}{
		{"taken by another user", u, "Taken-Name", apperror.ErrHandleTaken},
		{"double hyphen", u, "bad--name", apperror.ErrInvalidFormat},
		{"too short", u, "ab", apperror.ErrInvalidFormat},
		{"leading hyphen", u, "-abc", apperror.ErrInvalidFormat},
		{"underscore", u, "snake_case", apperror.ErrInvalidFormat},
		{"anonymous", nil, "whatever", apperror.ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpdateHandle(context.Background(), tt.user, tt.candidate)
			if !errors.Is(err, tt.want) {
				t.Errorf("UpdateHandle(%q) error = %v, want %v", tt.candidate, err, tt.want)
			}
		})
	}

	stored, _ := f.store.GetUserByID(context.Background(), u.ID)
	if stored.Handle != "brave-otter-123" {
		t.Errorf("handle changed to %q after failed updates", stored.Handle)
	}
}
