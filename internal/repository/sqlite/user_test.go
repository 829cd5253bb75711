package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/memeboard/internal/apperror"
	"github.com/sakif/memeboard/internal/model"
)

// createTestUser upserts a user by email and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, email string) *model.User {
	t.Helper()
	user := &model.User{Email: email, Name: "Test " + email}
	if err := db.UpsertByEmail(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// =========================================================================
// UPSERT TESTS
// =========================================================================

func TestUpsertByEmail_Creates(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{Email: "ada@example.com", Name: "Ada"}
	if err := db.UpsertByEmail(context.Background(), user); err != nil {
		t.Fatalf("UpsertByEmail() error = %v", err)
	}

	if user.ID == 0 {
		t.Error("UpsertByEmail() did not set user.ID")
	}
	if user.CreatedAt.IsZero() || user.LastLoginAt.IsZero() {
		t.Error("UpsertByEmail() did not set timestamps")
	}
	if user.Handle != "" {
		t.Errorf("new user Handle = %q, want empty", user.Handle)
	}
}

func TestUpsertByEmail_ExistingKeepsIDAndName(t *testing.T) {
	db := newTestDB(t)
	first := createTestUser(t, db, "grace@example.com")

	again := &model.User{Email: "grace@example.com", Name: "Different Name"}
	if err := db.UpsertByEmail(context.Background(), again); err != nil {
		t.Fatalf("UpsertByEmail() error = %v", err)
	}

	if again.ID != first.ID {
		t.Errorf("ID = %d, want %d (same account)", again.ID, first.ID)
	}
	if again.Name != first.Name {
		t.Errorf("Name = %q, want stored %q", again.Name, first.Name)
	}
	if again.LastLoginAt.Before(first.LastLoginAt) {
		t.Error("LastLoginAt went backwards on re-login")
	}
}

func TestUpsertByEmail_FillsMissingName(t *testing.T) {
	db := newTestDB(t)

	nameless := &model.User{Email: "anon@example.com"}
	if err := db.UpsertByEmail(context.Background(), nameless); err != nil {
		t.Fatalf("UpsertByEmail() error = %v", err)
	}

	named := &model.User{Email: "anon@example.com", Name: "Now Named"}
	if err := db.UpsertByEmail(context.Background(), named); err != nil {
		t.Fatalf("UpsertByEmail() error = %v", err)
	}
	if named.Name != "Now Named" {
		t.Errorf("Name = %q, want %q", named.Name, "Now Named")
	}
}

// =========================================================================
// GET BY ID TESTS
// =========================================================================

func TestGetUserByID(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, "find@example.com")

	found, err := db.GetUserByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if found.Email != "find@example.com" {
		t.Errorf("Email = %q, want %q", found.Email, "find@example.com")
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), 9999)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// HANDLE TESTS
// =========================================================================

func TestSetHandle(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "h@example.com")

	if err := db.SetHandle(context.Background(), user.ID, "brave-otter-001"); err != nil {
		t.Fatalf("SetHandle() error = %v", err)
	}

	found, _ := db.GetUserByID(context.Background(), user.ID)
	if found.Handle != "brave-otter-001" {
		t.Errorf("Handle = %q, want %q", found.Handle, "brave-otter-001")
	}

	exists, err := db.HandleExists(context.Background(), "brave-otter-001")
	if err != nil {
		t.Fatalf("HandleExists() error = %v", err)
	}
	if !exists {
		t.Error("HandleExists() = false after SetHandle")
	}
}

func TestSetHandle_SameValueIsNotAConflict(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "self@example.com")

	if err := db.SetHandle(context.Background(), user.ID, "calm-heron-010"); err != nil {
		t.Fatalf("first SetHandle() error = %v", err)
	}
	if err := db.SetHandle(context.Background(), user.ID, "calm-heron-010"); err != nil {
		t.Errorf("re-setting own handle error = %v, want nil", err)
	}
}

func TestSetHandle_TakenByAnotherUser(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")

	if err := db.SetHandle(context.Background(), alice.ID, "shared-name"); err != nil {
		t.Fatalf("SetHandle(alice) error = %v", err)
	}

	err := db.SetHandle(context.Background(), bob.ID, "shared-name")
	if !errors.Is(err, apperror.ErrHandleTaken) {
		t.Fatalf("SetHandle(bob) error = %v, want ErrHandleTaken", err)
	}

	found, _ := db.GetUserByID(context.Background(), bob.ID)
	if found.Handle != "" {
		t.Errorf("bob.Handle = %q, want unchanged empty", found.Handle)
	}
}

func TestSetHandle_UnknownUser(t *testing.T) {
	db := newTestDB(t)

	err := db.SetHandle(context.Background(), 424242, "ghost-user")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("SetHandle() error = %v, want ErrNotFound", err)
	}
}

func TestHandleExists_ManyUsersWithoutHandle(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "one@example.com")
	createTestUser(t, db, "two@example.com")

	exists, err := db.HandleExists(context.Background(), "")
	if err != nil {
		t.Fatalf("HandleExists() error = %v", err)
	}
	if exists {
		t.Error("HandleExists(\"\") = true, users without handles must not count")
	}
}
