// ABOUTME: WebAuthn/Passkey ceremonies for the second trust path
// ABOUTME: Registration binds a passkey to an account, login mints a signed token

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/rosterhq/roster/internal/auth"
	"github.com/rosterhq/roster/internal/store"
)

// webAuthnUser wraps store.User to implement webauthn.User.
type webAuthnUser struct {
	user  *store.User
	creds []*store.WebAuthnCredential
}

func (u *webAuthnUser) WebAuthnID() []byte {
	return []byte(u.user.ID)
}

func (u *webAuthnUser) WebAuthnName() string {
	return u.user.Username
}

func (u *webAuthnUser) WebAuthnDisplayName() string {
	if u.user.Name != "" {
		return u.user.Name
	}
	return u.user.Username
}

func (u *webAuthnUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(u.creds))
	for i, c := range u.creds {
		creds[i] = webauthn.Credential{
			ID:              c.CredentialID,
			PublicKey:       c.PublicKey,
			AttestationType: c.AttestationType,
			Authenticator: webauthn.Authenticator{
				SignCount: c.SignCount,
			},
		}
		// Parse transports if available
		if c.Transports != "" {
			var transports []protocol.AuthenticatorTransport
			_ = json.Unmarshal([]byte(c.Transports), &transports)
			creds[i].Transport = transports
		}
	}
	return creds
}

// ceremonyData stores WebAuthn session data for in-progress registrations/logins.
type ceremonyData struct {
	session   *webauthn.SessionData
	userID    string
	expiresAt time.Time
}

// webAuthnSessionStore is a simple in-memory store for WebAuthn challenges.
// Ceremonies are short-lived, so process-local state is acceptable.
type webAuthnSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*ceremonyData // keyed by ceremony token
	cancel   context.CancelFunc
}

func newWebAuthnSessionStore() *webAuthnSessionStore {
	ctx, cancel := context.WithCancel(context.Background())
	s := &webAuthnSessionStore{
		sessions: make(map[string]*ceremonyData),
		cancel:   cancel,
	}
	// Start cleanup goroutine
	go s.cleanupLoop(ctx)
	return s
}

// Close stops the cleanup goroutine.
func (s *webAuthnSessionStore) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *webAuthnSessionStore) Set(token string, session *webauthn.SessionData, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = &ceremonyData{
		session:   session,
		userID:    userID,
		expiresAt: time.Now().Add(5 * time.Minute),
	}
}

func (s *webAuthnSessionStore) Get(token string) (*webauthn.SessionData, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.sessions[token]
	if !ok || time.Now().After(data.expiresAt) {
		return nil, "", false
	}
	return data.session, data.userID, true
}

func (s *webAuthnSessionStore) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

func (s *webAuthnSessionStore) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()
			for k, v := range s.sessions {
				if now.After(v.expiresAt) {
					delete(s.sessions, k)
				}
			}
			s.mu.Unlock()
		}
	}
}

// deriveWebAuthnConfig extracts rpID and rpOrigins from a base URL.
// Returns localhost defaults if the URL is empty or invalid.
func deriveWebAuthnConfig(baseURL string) (rpID string, rpOrigins []string) {
	rpID = "localhost"
	rpOrigins = []string{"http://localhost", "https://localhost"}

	if baseURL == "" {
		return rpID, rpOrigins
	}

	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return rpID, rpOrigins
	}

	host := parsed.Hostname()
	if host == "" {
		return rpID, rpOrigins
	}

	rpID = host
	rpOrigins = []string{baseURL}
	// Also allow the other scheme variant
	if parsed.Scheme == "https" {
		rpOrigins = append(rpOrigins, "http://"+parsed.Host)
	} else {
		rpOrigins = append(rpOrigins, "https://"+parsed.Host)
	}
	return rpID, rpOrigins
}

// initWebAuthn initializes the WebAuthn configuration.
func (s *Server) initWebAuthn() error {
	rpID, rpOrigins := deriveWebAuthnConfig(s.config.BaseURL)

	wconfig := &webauthn.Config{
		RPDisplayName: "roster",
		RPID:          rpID,
		RPOrigins:     rpOrigins,
	}

	w, err := webauthn.New(wconfig)
	if err != nil {
		return err
	}

	s.webauthn = w
	s.webauthnSessions = newWebAuthnSessionStore()
	return nil
}

// ceremonyRequest is the shared body shape of the finish endpoints.
type ceremonyRequest struct {
	SessionToken string          `json:"sessionToken"`
	Response     json.RawMessage `json:"response"`
}

func parseCeremonyRequest(r *http.Request) (*ceremonyRequest, error) {
	var req ceremonyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// handleWebAuthnRegisterBegin starts the passkey registration process
// for the authenticated caller.
func (s *Server) handleWebAuthnRegisterBegin(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())

	user, err := s.store.GetUser(r.Context(), identity.ID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			s.respondError(w, http.StatusNotFound, "account not found")
			return
		}
		s.respondStoreError(w, err)
		return
	}

	// Existing credentials are passed for exclusion
	existingCreds, err := s.store.GetWebAuthnCredentialsByUser(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("failed to get existing credentials", "error", err)
		existingCreds = nil
	}

	waUser := &webAuthnUser{user: user, creds: existingCreds}

	options, session, err := s.webauthn.BeginRegistration(waUser)
	if err != nil {
		s.logger.Error("failed to begin registration", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	sessionToken, err := generateSecureToken(32)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.webauthnSessions.Set(sessionToken, session, user.ID)

	s.respondSuccess(w, http.StatusOK, "registration started", map[string]any{
		"options":      options,
		"sessionToken": sessionToken,
	})
}

// handleWebAuthnRegisterFinish completes the passkey registration process.
func (s *Server) handleWebAuthnRegisterFinish(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())

	req, err := parseCeremonyRequest(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, sessionUserID, ok := s.webauthnSessions.Get(req.SessionToken)
	if !ok || sessionUserID != identity.ID {
		s.respondError(w, http.StatusBadRequest, "invalid or expired ceremony")
		return
	}
	s.webauthnSessions.Delete(req.SessionToken)

	parsedResponse, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(req.Response))
	if err != nil {
		s.logger.Error("failed to parse registration response", "error", err)
		s.respondError(w, http.StatusBadRequest, "invalid authenticator response")
		return
	}

	user, err := s.store.GetUser(r.Context(), identity.ID)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	existingCreds, _ := s.store.GetWebAuthnCredentialsByUser(r.Context(), user.ID)
	waUser := &webAuthnUser{user: user, creds: existingCreds}

	credential, err := s.webauthn.CreateCredential(waUser, *session, parsedResponse)
	if err != nil {
		s.logger.Error("failed to create credential", "error", err)
		s.respondError(w, http.StatusBadRequest, "could not verify credential")
		return
	}

	credID, err := s.storeWebAuthnCredential(r.Context(), user.ID, credential)
	if err != nil {
		s.logger.Error("failed to store credential", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.logger.Info("passkey registered", "user_id", user.ID, "credential_id", credID)
	s.respondSuccess(w, http.StatusOK, "passkey registered", nil)
}

// storeWebAuthnCredential creates and stores a WebAuthn credential.
func (s *Server) storeWebAuthnCredential(ctx context.Context, userID string, cred *webauthn.Credential) (string, error) {
	credID, err := generateSecureToken(16)
	if err != nil {
		return "", err
	}

	transportsJSON, err := json.Marshal(cred.Transport)
	if err != nil {
		return "", err
	}

	storeCred := &store.WebAuthnCredential{
		ID:              credID,
		UserID:          userID,
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		Transports:      string(transportsJSON),
		SignCount:       cred.Authenticator.SignCount,
		CreatedAt:       time.Now(),
	}

	if err := s.store.CreateWebAuthnCredential(ctx, storeCred); err != nil {
		return "", err
	}
	return credID, nil
}

// handleWebAuthnLoginBegin starts the passkey login process. Discoverable
// credentials mean no username is needed up front.
func (s *Server) handleWebAuthnLoginBegin(w http.ResponseWriter, r *http.Request) {
	options, session, err := s.webauthn.BeginDiscoverableLogin()
	if err != nil {
		s.logger.Error("failed to begin login", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// No user ID yet; it is determined from the credential at finish.
	sessionToken, err := generateSecureToken(32)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.webauthnSessions.Set(sessionToken, session, "")

	s.respondSuccess(w, http.StatusOK, "login started", map[string]any{
		"options":      options,
		"sessionToken": sessionToken,
	})
}

// handleWebAuthnLoginFinish completes the passkey login process. On
// success the response body carries a signed token, not a session cookie.
func (s *Server) handleWebAuthnLoginFinish(w http.ResponseWriter, r *http.Request) {
	req, err := parseCeremonyRequest(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, _, ok := s.webauthnSessions.Get(req.SessionToken)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "invalid or expired ceremony")
		return
	}
	s.webauthnSessions.Delete(req.SessionToken)

	parsedResponse, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(req.Response))
	if err != nil {
		s.logger.Error("failed to parse login response", "error", err)
		s.respondError(w, http.StatusBadRequest, "invalid authenticator response")
		return
	}

	storedCred, user, err := s.lookupCredentialUser(r.Context(), parsedResponse.RawID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrUserNotFound) {
			s.respondError(w, http.StatusUnauthorized, "unknown credential")
		} else {
			s.logger.Error("failed to look up credential", "error", err)
			s.respondError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	allCreds, _ := s.store.GetWebAuthnCredentialsByUser(r.Context(), user.ID)
	waUser := &webAuthnUser{user: user, creds: allCreds}

	credential, err := s.webauthn.ValidateDiscoverableLogin(makeCredentialFinder(waUser, user.ID), *session, parsedResponse)
	if err != nil {
		s.logger.Error("failed to validate login", "error", err)
		s.respondError(w, http.StatusUnauthorized, "authentication failed")
		return
	}

	if err := s.store.UpdateWebAuthnCredentialSignCount(r.Context(), storedCred.ID, credential.Authenticator.SignCount); err != nil {
		s.logger.Warn("failed to update sign count", "error", err)
	}

	identity := &auth.Identity{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
	}

	handle, err := s.issuer.Issue(r.Context(), identity, auth.MethodPasskey)
	if err != nil {
		s.logger.Error("token issuance failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.logger.Info("passkey login successful", "user_id", user.ID)
	s.respondSuccess(w, http.StatusOK, "login successful", map[string]any{
		"token":     handle.Token,
		"expiresAt": handle.ExpiresAt.UTC().Format(time.RFC3339),
		"user": map[string]string{
			"id":        identity.ID,
			"name":      identity.Name,
			"email":     identity.Email,
			"avatarUrl": identity.AvatarURL,
		},
	})
}

// handleListPasskeys lists the caller's registered passkeys.
func (s *Server) handleListPasskeys(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())

	creds, err := s.store.GetWebAuthnCredentialsByUser(r.Context(), identity.ID)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	passkeys := make([]map[string]any, 0, len(creds))
	for _, c := range creds {
		passkeys = append(passkeys, map[string]any{
			"id":        c.ID,
			"createdAt": c.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	s.respondSuccess(w, http.StatusOK, "passkeys", map[string]any{
		"passkeys": passkeys,
	})
}

// handleDeletePasskey removes one of the caller's passkeys. Credentials
// belonging to other accounts are reported as not found, not forbidden.
func (s *Server) handleDeletePasskey(w http.ResponseWriter, r *http.Request) {
	identity := auth.MustFromContext(r.Context())
	id := r.PathValue("id")

	creds, err := s.store.GetWebAuthnCredentialsByUser(r.Context(), identity.ID)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	owned := false
	for _, c := range creds {
		if c.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		s.respondError(w, http.StatusNotFound, "passkey not found")
		return
	}

	if err := s.store.DeleteWebAuthnCredential(r.Context(), id); err != nil {
		s.respondStoreError(w, err)
		return
	}

	s.logger.Info("passkey removed", "user_id", identity.ID, "credential_id", id)
	s.respondSuccess(w, http.StatusOK, "passkey removed", nil)
}

// lookupCredentialUser finds the credential and user for a login attempt.
func (s *Server) lookupCredentialUser(ctx context.Context, credentialID []byte) (*store.WebAuthnCredential, *store.User, error) {
	storedCred, err := s.store.GetWebAuthnCredentialByCredentialID(ctx, credentialID)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.store.GetUser(ctx, storedCred.UserID)
	if err != nil {
		return nil, nil, err
	}
	return storedCred, user, nil
}

// makeCredentialFinder creates a credential finder function for WebAuthn validation.
func makeCredentialFinder(waUser *webAuthnUser, userID string) func(rawID, userHandle []byte) (webauthn.User, error) {
	return func(rawID, userHandle []byte) (webauthn.User, error) {
		if len(userHandle) > 0 && string(userHandle) != userID {
			return nil, errors.New("user handle mismatch")
		}
		return waUser, nil
	}
}
