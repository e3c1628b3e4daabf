// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	users         map[string]*User    // keyed by user ID
	emailIndex    map[string]string   // email -> user ID
	usernameIndex map[string]string   // username -> user ID
	sessions      map[string]*Session // keyed by token
	credentials   map[string]*WebAuthnCredential

	// Error injection hooks
	CreateSessionErr error
	GetSessionErr    error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:         make(map[string]*User),
		emailIndex:    make(map[string]string),
		usernameIndex: make(map[string]string),
		sessions:      make(map[string]*Session),
		credentials:   make(map[string]*WebAuthnCredential),
	}
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)

// CreateUser stores a new user, enforcing the email/username uniqueness the
// real backends get from their constraints.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.emailIndex[user.Email]; ok {
		return ErrEmailExists
	}
	if _, ok := m.usernameIndex[user.Username]; ok {
		return ErrUsernameExists
	}

	u := *user
	m.users[u.ID] = &u
	m.emailIndex[u.Email] = u.ID
	m.usernameIndex[u.Username] = u.ID
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *user
	return &u, nil
}

// GetUserByEmail retrieves a user by email.
func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emailIndex[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *m.users[id]
	return &u, nil
}

// GetUserByUsername retrieves a user by username.
func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usernameIndex[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *m.users[id]
	return &u, nil
}

// UpdateUserProfile updates profile fields for an existing user.
func (m *MockStore) UpdateUserProfile(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}

	if id, taken := m.emailIndex[user.Email]; taken && id != user.ID {
		return ErrEmailExists
	}
	if id, taken := m.usernameIndex[user.Username]; taken && id != user.ID {
		return ErrUsernameExists
	}

	delete(m.emailIndex, existing.Email)
	delete(m.usernameIndex, existing.Username)

	user.UpdatedAt = time.Now()
	u := *user
	u.PasswordHash = existing.PasswordHash
	m.users[u.ID] = &u
	m.emailIndex[u.Email] = u.ID
	m.usernameIndex[u.Username] = u.ID
	return nil
}

// UpdateUserPassword replaces the stored password hash.
func (m *MockStore) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now()
	return nil
}

// matchesSearch reports whether a user matches the filter's search term.
func matchesSearch(user *User, search string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(user.Name), search) ||
		strings.Contains(strings.ToLower(user.Username), search) ||
		strings.Contains(strings.ToLower(user.Email), search)
}

// ListUsers returns a page of users matching the filter.
func (m *MockStore) ListUsers(ctx context.Context, filter UserFilter) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	filter = normalizeFilter(filter)

	var matched []*User
	for _, user := range m.users {
		if matchesSearch(user, filter.Search) {
			u := *user
			matched = append(matched, &u)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		var less bool
		switch filter.SortBy {
		case SortByName:
			less = matched[i].Name < matched[j].Name
		case SortByUsername:
			less = matched[i].Username < matched[j].Username
		case SortByUpdatedAt:
			less = matched[i].UpdatedAt.Before(matched[j].UpdatedAt)
		default:
			less = matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		if filter.SortOrder == "desc" {
			return !less
		}
		return less
	})

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], nil
}

// CountUsers returns the number of users matching the filter's search term.
func (m *MockStore) CountUsers(ctx context.Context, filter UserFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, user := range m.users {
		if matchesSearch(user, filter.Search) {
			count++
		}
	}
	return count, nil
}

// CreateSession stores a new session.
func (m *MockStore) CreateSession(ctx context.Context, session *Session) error {
	if m.CreateSessionErr != nil {
		return m.CreateSessionErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.Token]; ok {
		return ErrSessionExists
	}
	s := *session
	m.sessions[s.Token] = &s
	return nil
}

// GetSession retrieves a valid (non-expired) session.
func (m *MockStore) GetSession(ctx context.Context, token string) (*Session, error) {
	if m.GetSessionErr != nil {
		return nil, m.GetSessionErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[token]
	if !ok || !session.ExpiresAt.After(time.Now()) {
		return nil, ErrSessionNotFound
	}
	s := *session
	return &s, nil
}

// DeleteSession removes a session if present.
func (m *MockStore) DeleteSession(ctx context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[token]
	delete(m.sessions, token)
	return ok, nil
}

// DeleteExpiredSessions removes all expired sessions.
func (m *MockStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	now := time.Now()
	for token, session := range m.sessions {
		if !session.ExpiresAt.After(now) {
			delete(m.sessions, token)
			removed++
		}
	}
	return removed, nil
}

// CreateWebAuthnCredential stores a new credential.
func (m *MockStore) CreateWebAuthnCredential(ctx context.Context, cred *WebAuthnCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *cred
	m.credentials[c.ID] = &c
	return nil
}

// GetWebAuthnCredentialsByUser returns all credentials for a user.
func (m *MockStore) GetWebAuthnCredentialsByUser(ctx context.Context, userID string) ([]*WebAuthnCredential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var creds []*WebAuthnCredential
	for _, cred := range m.credentials {
		if cred.UserID == userID {
			c := *cred
			creds = append(creds, &c)
		}
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].CreatedAt.Before(creds[j].CreatedAt) })
	return creds, nil
}

// GetWebAuthnCredentialByCredentialID looks up a credential by credential ID.
func (m *MockStore) GetWebAuthnCredentialByCredentialID(ctx context.Context, credentialID []byte) (*WebAuthnCredential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, cred := range m.credentials {
		if bytes.Equal(cred.CredentialID, credentialID) {
			c := *cred
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateWebAuthnCredentialSignCount updates the signature counter.
func (m *MockStore) UpdateWebAuthnCredentialSignCount(ctx context.Context, id string, signCount uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.credentials[id]
	if !ok {
		return ErrNotFound
	}
	cred.SignCount = signCount
	return nil
}

// DeleteWebAuthnCredential removes a credential.
func (m *MockStore) DeleteWebAuthnCredential(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.credentials, id)
	return nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
