// ABOUTME: Session issuance with per-method representation routing
// ABOUTME: Credential logins get revocable store-backed sessions, other trust paths get signed tokens

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rosterhq/roster/internal/store"
)

// Method identifies the trust path that authenticated the user.
type Method string

const (
	// MethodCredentials is email/password login. Sessions issued for it are
	// always store-backed so they can be revoked server-side.
	MethodCredentials Method = "credentials"

	// MethodPasskey is WebAuthn login. It receives a self-contained signed
	// token with no store entry.
	MethodPasskey Method = "passkey"
)

// Handle kinds.
const (
	// HandleSession is an opaque token resolvable via the session store.
	HandleSession = "session"
	// HandleSigned is a self-contained signed token.
	HandleSigned = "signed"
)

// DefaultSessionLifetime matches the 30-day login sessions users expect.
const DefaultSessionLifetime = 30 * 24 * time.Hour

// DefaultTokenLifetime is the signed-token validity window.
const DefaultTokenLifetime = 30 * 24 * time.Hour

// Issuance errors
var (
	// ErrMissingSubject is an internal invariant violation: the identity has
	// no resolvable ID. Checked before any storage is touched.
	ErrMissingSubject = errors.New("no user ID found in identity")

	// ErrSessionCreation is a hard failure: storage refused the session and
	// there is no fallback to a stateless token, which would silently lose
	// revocability.
	ErrSessionCreation = errors.New("failed to create session")
)

// Handle is the session representation handed back to the caller.
type Handle struct {
	Kind      string // HandleSession or HandleSigned
	Token     string
	ExpiresAt time.Time
}

// SessionWriter is the slice of the store the issuer needs.
type SessionWriter interface {
	CreateSession(ctx context.Context, session *store.Session) error
}

// Issuer decides the session representation for a verified identity and
// produces it. The routing over Method lives entirely here so the
// "credential logins are always revocable" invariant has one enforcement
// point.
type Issuer struct {
	sessions        SessionWriter
	codec           *TokenCodec
	sessionLifetime time.Duration
	tokenLifetime   time.Duration
	logger          *slog.Logger
}

// NewIssuer creates a session issuer. Zero lifetimes fall back to the
// 30-day defaults.
func NewIssuer(sessions SessionWriter, codec *TokenCodec, sessionLifetime, tokenLifetime time.Duration) *Issuer {
	if sessionLifetime <= 0 {
		sessionLifetime = DefaultSessionLifetime
	}
	if tokenLifetime <= 0 {
		tokenLifetime = DefaultTokenLifetime
	}
	return &Issuer{
		sessions:        sessions,
		codec:           codec,
		sessionLifetime: sessionLifetime,
		tokenLifetime:   tokenLifetime,
		logger:          slog.Default().With("component", "auth"),
	}
}

// Issue produces the session representation for the given identity and method.
func (i *Issuer) Issue(ctx context.Context, identity *Identity, method Method) (*Handle, error) {
	if identity == nil || identity.ID == "" {
		return nil, ErrMissingSubject
	}

	if method == MethodCredentials {
		return i.issueSession(ctx, identity)
	}
	return i.issueSigned(identity)
}

// issueSession creates a persisted session and returns its opaque token.
func (i *Issuer) issueSession(ctx context.Context, identity *Identity) (*Handle, error) {
	// One retry on token collision. With 256-bit tokens a collision means a
	// broken random source rather than bad luck, so a second failure aborts.
	for attempt := 0; attempt < 2; attempt++ {
		token, err := generateSessionToken()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionCreation, err)
		}

		session := &store.Session{
			Token:     token,
			UserID:    identity.ID,
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(i.sessionLifetime),
		}

		err = i.sessions.CreateSession(ctx, session)
		if errors.Is(err, store.ErrSessionExists) {
			i.logger.Warn("session token collision, regenerating", "user_id", identity.ID)
			continue
		}
		if err != nil {
			i.logger.Error("session creation failed", "error", err, "user_id", identity.ID)
			return nil, ErrSessionCreation
		}

		return &Handle{
			Kind:      HandleSession,
			Token:     token,
			ExpiresAt: session.ExpiresAt,
		}, nil
	}

	return nil, ErrSessionCreation
}

// issueSigned mints a self-contained token with no store entry.
func (i *Issuer) issueSigned(identity *Identity) (*Handle, error) {
	token, err := i.codec.Mint(identity.ID, false, i.tokenLifetime)
	if err != nil {
		return nil, fmt.Errorf("minting token: %w", err)
	}

	return &Handle{
		Kind:      HandleSigned,
		Token:     token,
		ExpiresAt: time.Now().Add(i.tokenLifetime),
	}, nil
}

// generateSessionToken returns a hex-encoded 256-bit random token.
func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
