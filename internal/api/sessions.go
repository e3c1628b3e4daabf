// ABOUTME: Login and logout handlers for credential sessions
// ABOUTME: Login verifies credentials and sets the opaque session cookie

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/rosterhq/roster/internal/auth"
)

// handleLogin handles POST /api/login. Successful credential login creates
// a persisted session and hands the opaque token back as a cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	password := r.FormValue("password")

	identity, err := s.verifier.Verify(r.Context(), email, password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingCredentials):
			s.respondError(w, http.StatusBadRequest, "email and password are required")
		case errors.Is(err, auth.ErrInvalidCredentials):
			// Uniform message for unknown email and wrong password.
			s.respondError(w, http.StatusUnauthorized, "invalid email or password")
		default:
			s.logger.Error("credential verification failed", "error", err)
			s.respondError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	handle, err := s.issuer.Issue(r.Context(), identity, auth.MethodCredentials)
	if err != nil {
		s.logger.Error("session issuance failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    handle.Token,
		Path:     "/",
		Expires:  handle.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cookieSecure(),
		SameSite: http.SameSiteLaxMode,
	})

	s.logger.Info("login successful", "user_id", identity.ID)
	s.respondSuccess(w, http.StatusOK, "login successful", map[string]any{
		"user": map[string]string{
			"id":        identity.ID,
			"name":      identity.Name,
			"email":     identity.Email,
			"avatarUrl": identity.AvatarURL,
		},
	})
}

// handleLogout handles POST /api/logout. Revocation is idempotent: a
// missing or already-revoked session still clears the cookie and succeeds.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil && cookie.Value != "" {
		deleted, err := s.store.DeleteSession(r.Context(), cookie.Value)
		if err != nil {
			s.logger.Error("session revocation failed", "error", err)
			s.respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if deleted {
			s.logger.Info("session revoked")
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure(),
		SameSite: http.SameSiteLaxMode,
	})

	s.respondSuccess(w, http.StatusOK, "logged out", nil)
}
