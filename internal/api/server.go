// ABOUTME: HTTP API server wiring handlers, middleware, and routes
// ABOUTME: Exposes registration, login, profile, directory, and passkey endpoints

package api

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/rosterhq/roster/internal/auth"
	"github.com/rosterhq/roster/internal/store"
)

// Config holds the knobs the API server needs beyond its collaborators.
type Config struct {
	// BaseURL is the external URL of the service. It selects the passkey
	// relying-party ID and whether session cookies are marked Secure.
	BaseURL string

	// SessionLifetime bounds the session cookie's Expires attribute.
	SessionLifetime time.Duration
}

// Server holds the handler dependencies for the HTTP API.
type Server struct {
	store    store.Store
	hasher   *auth.Hasher
	verifier *auth.Verifier
	issuer   *auth.Issuer
	gate     *auth.Gate
	logger   *slog.Logger
	config   Config

	webauthn         *webauthn.WebAuthn
	webauthnSessions *webAuthnSessionStore
}

// New creates the API server and initializes the passkey ceremony state.
func New(st store.Store, hasher *auth.Hasher, verifier *auth.Verifier, issuer *auth.Issuer, gate *auth.Gate, cfg Config) (*Server, error) {
	if cfg.SessionLifetime <= 0 {
		cfg.SessionLifetime = auth.DefaultSessionLifetime
	}

	s := &Server{
		store:    st,
		hasher:   hasher,
		verifier: verifier,
		issuer:   issuer,
		gate:     gate,
		logger:   slog.Default().With("component", "api"),
		config:   cfg,
	}

	if err := s.initWebAuthn(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close stops background state owned by the server.
func (s *Server) Close() {
	if s.webauthnSessions != nil {
		s.webauthnSessions.Close()
	}
}

// RegisterRoutes sets up all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	mux.HandleFunc("GET /api/me", s.requireAuth(s.handleMe))
	mux.HandleFunc("GET /api/users", s.optionalAuth(s.handleListUsers))
	mux.HandleFunc("GET /api/users/{id}", s.requireAuth(s.handleGetUser))
	mux.HandleFunc("PUT /api/users/{id}", s.requireAuth(s.handleUpdateUser))

	// Passkey ceremonies. Adding a passkey requires an authenticated
	// caller; logging in with one does not.
	mux.HandleFunc("POST /api/webauthn/register/begin", s.requireAuth(s.handleWebAuthnRegisterBegin))
	mux.HandleFunc("POST /api/webauthn/register/finish", s.requireAuth(s.handleWebAuthnRegisterFinish))
	mux.HandleFunc("POST /api/webauthn/login/begin", s.handleWebAuthnLoginBegin)
	mux.HandleFunc("POST /api/webauthn/login/finish", s.handleWebAuthnLoginFinish)
	mux.HandleFunc("GET /api/webauthn/credentials", s.requireAuth(s.handleListPasskeys))
	mux.HandleFunc("DELETE /api/webauthn/credentials/{id}", s.requireAuth(s.handleDeletePasskey))
}

// requireAuth resolves session evidence before the handler runs and
// answers 401 when there is none.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.gate.Resolve(r)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	}
}

// optionalAuth attaches an identity when the request carries valid
// evidence but lets anonymous requests through.
func (s *Server) optionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if identity, err := s.gate.Resolve(r); err == nil {
			r = r.WithContext(auth.WithIdentity(r.Context(), identity))
		}
		next(w, r)
	}
}

// cookieSecure reports whether session cookies should carry the Secure flag.
func (s *Server) cookieSecure() bool {
	parsed, err := url.Parse(s.config.BaseURL)
	return err == nil && parsed.Scheme == "https"
}

// generateSecureToken generates a cryptographically secure random token
// of the given byte length, hex encoded.
func generateSecureToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
