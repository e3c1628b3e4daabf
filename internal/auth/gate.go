// ABOUTME: Authorization gate resolving session evidence into identities
// ABOUTME: Opaque cookie tokens hit the session store, bearer tokens are verified as JWTs

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rosterhq/roster/internal/store"
)

// SessionCookieName is the name of the session cookie.
const SessionCookieName = "roster_session"

// ErrUnauthenticated covers every form of missing, invalid or expired session
// evidence. The cause is logged, never surfaced.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrForbidden is returned when an authenticated caller does not own the
// resource being acted upon.
var ErrForbidden = errors.New("forbidden")

// GateStore is the slice of the store the gate needs.
type GateStore interface {
	GetSession(ctx context.Context, token string) (*store.Session, error)
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// Gate resolves inbound session evidence into an authenticated identity.
type Gate struct {
	store  GateStore
	codec  *TokenCodec
	logger *slog.Logger
}

// NewGate creates an authorization gate.
func NewGate(gateStore GateStore, codec *TokenCodec) *Gate {
	return &Gate{
		store:  gateStore,
		codec:  codec,
		logger: slog.Default().With("component", "auth"),
	}
}

// Resolve extracts session evidence from the request and returns the caller's
// identity. A bearer token is only ever interpreted as a signed token, a
// cookie value only as an opaque store token; neither is tried against the
// other representation. Every failure mode returns ErrUnauthenticated.
func (g *Gate) Resolve(r *http.Request) (*Identity, error) {
	if token, ok := bearerToken(r); ok {
		return g.resolveSigned(r.Context(), token)
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrUnauthenticated
	}
	return g.resolveSession(r.Context(), cookie.Value)
}

// bearerToken extracts a bearer token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	return token, token != ""
}

// resolveSession looks up an opaque token in the session store.
func (g *Gate) resolveSession(ctx context.Context, token string) (*Identity, error) {
	session, err := g.store.GetSession(ctx, token)
	if err != nil {
		if !errors.Is(err, store.ErrSessionNotFound) {
			g.logger.Error("session lookup failed", "error", err)
		}
		return nil, ErrUnauthenticated
	}

	return g.loadIdentity(ctx, session.UserID)
}

// resolveSigned verifies a signed token and loads the subject.
func (g *Gate) resolveSigned(ctx context.Context, token string) (*Identity, error) {
	claims, err := g.codec.Verify(token)
	if err != nil {
		g.logger.Debug("token verification failed", "error", err)
		return nil, ErrUnauthenticated
	}

	return g.loadIdentity(ctx, claims.Subject)
}

// loadIdentity projects a user record into an Identity. A dangling subject
// (user deleted after issuance) is unauthenticated, not an internal error.
func (g *Gate) loadIdentity(ctx context.Context, userID string) (*Identity, error) {
	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			g.logger.Error("identity lookup failed", "error", err)
		}
		return nil, ErrUnauthenticated
	}

	return &Identity{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
	}, nil
}

// VerifyOwnership checks that the authenticated caller owns the resource.
// Exact match only; an empty caller ID always fails. This runs after
// authentication, never instead of it.
func VerifyOwnership(callerID, resourceOwnerID string) error {
	if callerID == "" || callerID != resourceOwnerID {
		return ErrForbidden
	}
	return nil
}
