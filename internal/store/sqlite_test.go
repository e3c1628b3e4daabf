// ABOUTME: Unit tests for the SQLite store implementation
// ABOUTME: Covers user uniqueness, session expiry semantics and token collision handling

package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// newTestStore creates a SQLite store in a temp directory.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newTestUser inserts a user with the given username/email.
func newTestUser(t *testing.T, s *SQLiteStore, username, email string) *User {
	t.Helper()

	now := time.Now()
	user := &User{
		ID:           "user-" + username,
		Name:         "Test " + username,
		Username:     username,
		Email:        email,
		PasswordHash: "$2a$10$fakefakefakefakefakefakefakefakefakefakefakefakefake",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return user
}

func randomToken(t *testing.T) string {
	t.Helper()
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read() error = %v", err)
	}
	return hex.EncodeToString(b)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newTestUser(t, s, "alice", "alice@example.com")

	dup := &User{
		ID:           "user-other",
		Name:         "Other",
		Username:     "other",
		Email:        "alice@example.com",
		PasswordHash: "x",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.CreateUser(ctx, dup); !errors.Is(err, ErrEmailExists) {
		t.Errorf("CreateUser() error = %v, want ErrEmailExists", err)
	}
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newTestUser(t, s, "alice", "alice@example.com")

	dup := &User{
		ID:           "user-other",
		Name:         "Other",
		Username:     "alice",
		Email:        "other@example.com",
		PasswordHash: "x",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := s.CreateUser(ctx, dup); !errors.Is(err, ErrUsernameExists) {
		t.Errorf("CreateUser() error = %v, want ErrUsernameExists", err)
	}
}

func TestGetUserByEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := newTestUser(t, s, "alice", "alice@example.com")

	user, err := s.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if user.ID != created.ID || user.Username != "alice" {
		t.Errorf("GetUserByEmail() = %+v, want ID %q", user, created.ID)
	}

	if _, err := s.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUserByEmail(unknown) error = %v, want ErrUserNotFound", err)
	}
}

func TestUpdateUserProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := newTestUser(t, s, "alice", "alice@example.com")
	user.Bio = "Distributed systems enthusiast"
	user.Location = "Lisbon"

	if err := s.UpdateUserProfile(ctx, user); err != nil {
		t.Fatalf("UpdateUserProfile() error = %v", err)
	}

	got, err := s.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if got.Bio != user.Bio || got.Location != "Lisbon" {
		t.Errorf("GetUser() after update = %+v", got)
	}
}

func TestUpdateUserProfile_Conflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newTestUser(t, s, "alice", "alice@example.com")
	bob := newTestUser(t, s, "bob", "bob@example.com")

	bob.Email = "alice@example.com"
	if err := s.UpdateUserProfile(ctx, bob); !errors.Is(err, ErrEmailExists) {
		t.Errorf("UpdateUserProfile() error = %v, want ErrEmailExists", err)
	}

	bob.Email = "bob@example.com"
	bob.Username = "alice"
	if err := s.UpdateUserProfile(ctx, bob); !errors.Is(err, ErrUsernameExists) {
		t.Errorf("UpdateUserProfile() error = %v, want ErrUsernameExists", err)
	}

	missing := &User{ID: "no-such-user", Name: "X", Username: "x", Email: "x@example.com"}
	if err := s.UpdateUserProfile(ctx, missing); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdateUserProfile(missing) error = %v, want ErrUserNotFound", err)
	}
}

func TestListUsers_SearchAndPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		newTestUser(t, s, fmt.Sprintf("dev%d", i), fmt.Sprintf("dev%d@example.com", i))
	}
	newTestUser(t, s, "designer", "designer@studio.io")

	// Case-insensitive search across name, username, email
	users, err := s.ListUsers(ctx, UserFilter{Search: "DEV", Limit: 10})
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 5 {
		t.Errorf("ListUsers(search=DEV) returned %d users, want 5", len(users))
	}

	count, err := s.CountUsers(ctx, UserFilter{Search: "dev"})
	if err != nil {
		t.Fatalf("CountUsers() error = %v", err)
	}
	if count != 5 {
		t.Errorf("CountUsers(search=dev) = %d, want 5", count)
	}

	// Pagination
	page, err := s.ListUsers(ctx, UserFilter{SortBy: SortByUsername, SortOrder: "asc", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("ListUsers(limit=2 offset=2) returned %d users, want 2", len(page))
	}
	if page[0].Username != "dev1" {
		t.Errorf("page[0].Username = %q, want dev1", page[0].Username)
	}
}

func TestSession_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := newTestUser(t, s, "alice", "alice@example.com")
	token := randomToken(t)

	session := &Session{
		Token:     token,
		UserID:    user.ID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	got, err := s.GetSession(ctx, token)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.UserID != user.ID {
		t.Errorf("GetSession().UserID = %q, want %q", got.UserID, user.ID)
	}

	deleted, err := s.DeleteSession(ctx, token)
	if err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if !deleted {
		t.Error("DeleteSession() = false, want true")
	}

	// Revoke is idempotent: second delete reports nothing removed
	deleted, err = s.DeleteSession(ctx, token)
	if err != nil {
		t.Fatalf("DeleteSession() second call error = %v", err)
	}
	if deleted {
		t.Error("DeleteSession() second call = true, want false")
	}

	if _, err := s.GetSession(ctx, token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession(revoked) error = %v, want ErrSessionNotFound", err)
	}
}

func TestSession_ExpiredIsAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := newTestUser(t, s, "alice", "alice@example.com")
	token := randomToken(t)

	// Inject an already-expired row; it still occupies storage but no reader
	// should ever see it.
	session := &Session{
		Token:     token,
		UserID:    user.ID,
		CreatedAt: time.Now().Add(-48 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	if err := s.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if _, err := s.GetSession(ctx, token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession(expired) error = %v, want ErrSessionNotFound", err)
	}

	removed, err := s.DeleteExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("DeleteExpiredSessions() = %d, want 1", removed)
	}
}

func TestSession_TokenCollision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := newTestUser(t, s, "alice", "alice@example.com")
	token := randomToken(t)

	first := &Session{Token: token, UserID: user.ID, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}
	if err := s.CreateSession(ctx, first); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	second := &Session{Token: token, UserID: user.ID, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)}
	if err := s.CreateSession(ctx, second); !errors.Is(err, ErrSessionExists) {
		t.Errorf("CreateSession(duplicate token) error = %v, want ErrSessionExists", err)
	}
}

func TestSession_ConcurrentCreates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := newTestUser(t, s, "alice", "alice@example.com")

	const n = 20
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = randomToken(t)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.CreateSession(ctx, &Session{
				Token:     tokens[i],
				UserID:    user.ID,
				CreatedAt: time.Now(),
				ExpiresAt: time.Now().Add(time.Hour),
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent CreateSession(%d) error = %v", i, err)
		}
	}

	// Every token must be resolvable and distinct
	seen := make(map[string]bool, n)
	for _, token := range tokens {
		if seen[token] {
			t.Fatalf("duplicate token generated: %s", token)
		}
		seen[token] = true
		if _, err := s.GetSession(ctx, token); err != nil {
			t.Errorf("GetSession(%s) error = %v", token[:8], err)
		}
	}
}

func TestWebAuthnCredential_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := newTestUser(t, s, "alice", "alice@example.com")

	cred := &WebAuthnCredential{
		ID:              "cred-1",
		UserID:          user.ID,
		CredentialID:    []byte{0x01, 0x02, 0x03},
		PublicKey:       []byte{0x04, 0x05},
		AttestationType: "none",
		Transports:      `["internal"]`,
		SignCount:       1,
		CreatedAt:       time.Now(),
	}
	if err := s.CreateWebAuthnCredential(ctx, cred); err != nil {
		t.Fatalf("CreateWebAuthnCredential() error = %v", err)
	}

	got, err := s.GetWebAuthnCredentialByCredentialID(ctx, cred.CredentialID)
	if err != nil {
		t.Fatalf("GetWebAuthnCredentialByCredentialID() error = %v", err)
	}
	if got.UserID != user.ID || got.SignCount != 1 {
		t.Errorf("credential = %+v", got)
	}

	if err := s.UpdateWebAuthnCredentialSignCount(ctx, cred.ID, 7); err != nil {
		t.Fatalf("UpdateWebAuthnCredentialSignCount() error = %v", err)
	}

	creds, err := s.GetWebAuthnCredentialsByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetWebAuthnCredentialsByUser() error = %v", err)
	}
	if len(creds) != 1 || creds[0].SignCount != 7 {
		t.Errorf("credentials = %+v", creds)
	}

	if _, err := s.GetWebAuthnCredentialByCredentialID(ctx, []byte{0xff}); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetWebAuthnCredentialByCredentialID(unknown) error = %v, want ErrNotFound", err)
	}
}
