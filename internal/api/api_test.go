// ABOUTME: HTTP handler tests for the API server using a real SQLite store
// ABOUTME: Covers registration, login, profile access, directory listing, and ownership

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rosterhq/roster/internal/auth"
	"github.com/rosterhq/roster/internal/store"
)

// testSecret is a 32-byte secret that meets MinSecretLength requirement.
var testSecret = []byte("api-handler-test-secret-32bytes!")

type testEnv struct {
	server *Server
	mux    *http.ServeMux
	store  *store.SQLiteStore
	hasher *auth.Hasher
	issuer *auth.Issuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	hasher := auth.NewHasher(bcrypt.MinCost)
	codec, err := auth.NewTokenCodec(testSecret)
	require.NoError(t, err)

	verifier := auth.NewVerifier(st, hasher)
	issuer := auth.NewIssuer(st, codec, time.Hour, time.Hour)
	gate := auth.NewGate(st, codec)

	server, err := New(st, hasher, verifier, issuer, gate, Config{
		BaseURL:         "http://localhost:8080",
		SessionLifetime: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(server.Close)

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	return &testEnv{server: server, mux: mux, store: st, hasher: hasher, issuer: issuer}
}

// seedUser creates a user directly in the store and returns it.
func (e *testEnv) seedUser(t *testing.T, username, email, password string) *store.User {
	t.Helper()

	hash, err := e.hasher.Hash(password)
	require.NoError(t, err)

	now := time.Now()
	user := &store.User{
		ID:           "user-" + username,
		Name:         "Test " + username,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Bio:          "hello **world**",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, e.store.CreateUser(context.Background(), user))
	return user
}

// loginCookie issues a credential session for the user and returns the cookie.
func (e *testEnv) loginCookie(t *testing.T, user *store.User) *http.Cookie {
	t.Helper()

	identity := &auth.Identity{ID: user.ID, Email: user.Email, Name: user.Name}
	handle, err := e.issuer.Issue(context.Background(), identity, auth.MethodCredentials)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.SessionCookieName, Value: handle.Token}
}

func formRequest(method, target string, fields map[string]string) *http.Request {
	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	r := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()

	var env Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func TestRegister_Success(t *testing.T) {
	env := newTestEnv(t)

	r := formRequest(http.MethodPost, "/api/register", map[string]string{
		"name":     "Alice Smith",
		"username": "alice",
		"email":    "alice@example.com",
		"password": "Passw0rd1",
	})
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, r)

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", data["username"])
	assert.Equal(t, "alice@example.com", data["email"])
	assert.NotEmpty(t, data["id"])
	assert.NotContains(t, data, "password")
	assert.NotContains(t, data, "passwordHash")
}

func TestRegister_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	r := formRequest(http.MethodPost, "/api/register", map[string]string{
		"name":     "A",
		"username": "a!",
		"email":    "not-an-email",
		"password": "short",
	})
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, r)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Errors, "name")
	assert.Contains(t, resp.Errors, "username")
	assert.Contains(t, resp.Errors, "email")
	assert.Contains(t, resp.Errors, "password")
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "taken", "taken@example.com", "Passw0rd1")

	r := formRequest(http.MethodPost, "/api/register", map[string]string{
		"name":     "Other Person",
		"username": "other",
		"email":    "taken@example.com",
		"password": "Passw0rd1",
	})
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, r)

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Errors, "email")
}

func TestRegister_DuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "taken", "taken@example.com", "Passw0rd1")

	r := formRequest(http.MethodPost, "/api/register", map[string]string{
		"name":     "Other Person",
		"username": "taken",
		"email":    "other@example.com",
		"password": "Passw0rd1",
	})
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, r)

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Contains(t, resp.Errors, "username")
}

func TestLogin_SetsSessionCookie(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice", "alice@example.com", "Passw0rd1")

	r := formRequest(http.MethodPost, "/api/login", map[string]string{
		"email":    "alice@example.com",
		"password": "Passw0rd1",
	})
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.True(t, resp.Success)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	assert.Equal(t, auth.SessionCookieName, cookie.Name)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	// The cookie token resolves to a persisted session
	session, err := env.store.GetSession(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)
}

func TestLogin_BadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "alice@example.com", "Passw0rd1")

	tests := []struct {
		name     string
		email    string
		password string
		wantCode int
	}{
		{"wrong password", "alice@example.com", "WrongPass1", http.StatusUnauthorized},
		{"unknown email", "nobody@example.com", "Passw0rd1", http.StatusUnauthorized},
		{"missing password", "alice@example.com", "", http.StatusBadRequest},
		{"missing email", "", "Passw0rd1", http.StatusBadRequest},
	}

	var messages []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := formRequest(http.MethodPost, "/api/login", map[string]string{
				"email":    tt.email,
				"password": tt.password,
			})
			rec := httptest.NewRecorder()
			env.mux.ServeHTTP(rec, r)

			require.Equal(t, tt.wantCode, rec.Code)
			resp := decodeEnvelope(t, rec)
			assert.False(t, resp.Success)
			if tt.wantCode == http.StatusUnauthorized {
				messages = append(messages, resp.Message)
			}
			assert.Empty(t, rec.Result().Cookies())
		})
	}

	// Unknown email and wrong password read identically
	require.Len(t, messages, 2)
	assert.Equal(t, messages[0], messages[1])
}

func TestLogout_RevokesSessionAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice", "alice@example.com", "Passw0rd1")
	cookie := env.loginCookie(t, user)

	r := formRequest(http.MethodPost, "/api/logout", nil)
	r.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)

	// Session is gone
	_, err := env.store.GetSession(context.Background(), cookie.Value)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	// Logging out again still succeeds
	r = formRequest(http.MethodPost, "/api/logout", nil)
	r.AddCookie(cookie)
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)

	// As does logging out with no cookie at all
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, formRequest(http.MethodPost, "/api/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMe_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.False(t, resp.Success)
}

func TestMe_WithSessionCookie(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice", "alice@example.com", "Passw0rd1")
	cookie := env.loginCookie(t, user)

	r := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	r.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	profile := data["user"].(map[string]any)
	assert.Equal(t, user.ID, profile["id"])
	assert.Equal(t, user.Email, profile["email"])
	// Markdown bio is rendered to HTML
	assert.Contains(t, profile["bioHtml"], "<strong>world</strong>")
}

func TestMe_WithBearerToken(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice", "alice@example.com", "Passw0rd1")

	identity := &auth.Identity{ID: user.ID, Email: user.Email, Name: user.Name}
	handle, err := env.issuer.Issue(context.Background(), identity, auth.MethodPasskey)
	require.NoError(t, err)
	require.Equal(t, auth.HandleSigned, handle.Kind)

	r := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	r.Header.Set("Authorization", "Bearer "+handle.Token)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	data := resp.Data.(map[string]any)
	profile := data["user"].(map[string]any)
	assert.Equal(t, user.ID, profile["id"])
}

func TestListUsers_EmailVisibility(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice", "alice@example.com", "Passw0rd1")
	env.seedUser(t, "bob", "bob@example.com", "Passw0rd1")

	// Anonymous: no email field
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeEnvelope(t, rec)
	users := resp.Data.(map[string]any)["users"].([]any)
	require.Len(t, users, 2)
	for _, u := range users {
		assert.NotContains(t, u.(map[string]any), "email")
	}

	// Authenticated: email present
	r := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	r.AddCookie(env.loginCookie(t, user))
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)

	resp = decodeEnvelope(t, rec)
	users = resp.Data.(map[string]any)["users"].([]any)
	require.Len(t, users, 2)
	for _, u := range users {
		assert.Contains(t, u.(map[string]any), "email")
	}
}

func TestListUsers_Pagination(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		env.seedUser(t, fmt.Sprintf("user%d", i), fmt.Sprintf("user%d@example.com", i), "Passw0rd1")
	}

	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users?page=2&limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeEnvelope(t, rec)
	data := resp.Data.(map[string]any)
	users := data["users"].([]any)
	assert.Len(t, users, 2)

	meta := data["pagination"].(map[string]any)
	assert.Equal(t, float64(2), meta["page"])
	assert.Equal(t, float64(2), meta["limit"])
	assert.Equal(t, float64(5), meta["totalCount"])
	assert.Equal(t, float64(3), meta["totalPages"])
	assert.Equal(t, true, meta["hasNextPage"])
	assert.Equal(t, true, meta["hasPrevPage"])
}

func TestListUsers_PagePastEnd(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "alice@example.com", "Passw0rd1")

	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users?page=99", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListUsers_InvalidQuery(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		query string
		field string
	}{
		{"bad page", "?page=zero", "page"},
		{"negative page", "?page=-1", "page"},
		{"limit too large", "?limit=500", "limit"},
		{"unknown sort column", "?sortBy=passwordHash", "sortBy"},
		{"bad sort order", "?sortOrder=sideways", "sortOrder"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			env.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users"+tt.query, nil))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeEnvelope(t, rec)
			assert.Contains(t, resp.Errors, tt.field)
		})
	}
}

func TestListUsers_Search(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "golang-dev", "dev@example.com", "Passw0rd1")
	env.seedUser(t, "designer", "design@example.com", "Passw0rd1")

	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users?search=GOLANG", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeEnvelope(t, rec)
	users := resp.Data.(map[string]any)["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, user.Username, users[0].(map[string]any)["username"])
}

func TestGetUser(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", "alice@example.com", "Passw0rd1")
	bob := env.seedUser(t, "bob", "bob@example.com", "Passw0rd1")
	cookie := env.loginCookie(t, alice)

	// Unauthenticated: 401
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/"+bob.ID, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Authenticated: any profile is readable
	r := httptest.NewRequest(http.MethodGet, "/api/users/"+bob.ID, nil)
	r.AddCookie(cookie)
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeEnvelope(t, rec)
	profile := resp.Data.(map[string]any)["user"].(map[string]any)
	assert.Equal(t, bob.ID, profile["id"])

	// Missing: 404
	r = httptest.NewRequest(http.MethodGet, "/api/users/no-such-id", nil)
	r.AddCookie(cookie)
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateUser_OwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", "alice@example.com", "Passw0rd1")
	bob := env.seedUser(t, "bob", "bob@example.com", "Passw0rd1")

	fields := map[string]string{
		"name":     "New Name",
		"username": "bob",
		"email":    "bob@example.com",
	}

	// Alice cannot update Bob's profile
	r := formRequest(http.MethodPut, "/api/users/"+bob.ID, fields)
	r.AddCookie(env.loginCookie(t, alice))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, r)

	require.Equal(t, http.StatusForbidden, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.False(t, resp.Success)

	// Bob's record is untouched
	stored, err := env.store.GetUser(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.Name, stored.Name)
}

func TestUpdateUser_Success(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", "alice@example.com", "Passw0rd1")

	r := formRequest(http.MethodPut, "/api/users/"+alice.ID, map[string]string{
		"name":      "Alice Cooper",
		"username":  "alice",
		"email":     "alice@example.com",
		"bio":       "I write Go",
		"location":  "Amsterdam",
		"website":   "https://alice.dev",
		"githubUrl": "https://github.com/alice",
	})
	r.AddCookie(env.loginCookie(t, alice))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.True(t, resp.Success)

	stored, err := env.store.GetUser(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Cooper", stored.Name)
	assert.Equal(t, "Amsterdam", stored.Location)
	assert.Equal(t, "https://alice.dev", stored.Website)
	// Password hash survives profile updates
	assert.Equal(t, alice.PasswordHash, stored.PasswordHash)
}

func TestUpdateUser_UniqueConflict(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", "alice@example.com", "Passw0rd1")
	env.seedUser(t, "bob", "bob@example.com", "Passw0rd1")

	// Alice tries to take Bob's username
	r := formRequest(http.MethodPut, "/api/users/"+alice.ID, map[string]string{
		"name":     "Alice Smith",
		"username": "bob",
		"email":    "alice@example.com",
	})
	r.AddCookie(env.loginCookie(t, alice))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, r)

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Contains(t, resp.Errors, "username")
}

func TestUpdateUser_InvalidLinks(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", "alice@example.com", "Passw0rd1")

	r := formRequest(http.MethodPut, "/api/users/"+alice.ID, map[string]string{
		"name":     "Alice Smith",
		"username": "alice",
		"email":    "alice@example.com",
		"website":  "not a url",
	})
	r.AddCookie(env.loginCookie(t, alice))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, r)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Contains(t, resp.Errors, "website")
}
