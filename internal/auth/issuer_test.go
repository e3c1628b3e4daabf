// ABOUTME: Unit tests for session issuance routing
// ABOUTME: Credential logins must get store-backed sessions, never bare signed tokens

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rosterhq/roster/internal/store"
)

func testIdentity() *Identity {
	return &Identity{ID: "user-1", Email: "alice@example.com", Name: "Alice"}
}

func TestIssuer_CredentialsCreatesStoredSession(t *testing.T) {
	m := store.NewMockStore()
	issuer := NewIssuer(m, newTestCodec(t), 0, 0)

	handle, err := issuer.Issue(context.Background(), testIdentity(), MethodCredentials)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if handle.Kind != HandleSession {
		t.Fatalf("Kind = %q, want %q", handle.Kind, HandleSession)
	}

	// The returned token must round-trip through the store to the same user.
	session, err := m.GetSession(context.Background(), handle.Token)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if session.UserID != "user-1" {
		t.Errorf("session.UserID = %q, want user-1", session.UserID)
	}

	// A credential handle must never verify as a signed token.
	if _, err := newTestCodec(t).Verify(handle.Token); err == nil {
		t.Error("credential session token verified as a signed token")
	}
}

func TestIssuer_PasskeyMintsSignedToken(t *testing.T) {
	m := store.NewMockStore()
	codec := newTestCodec(t)
	issuer := NewIssuer(m, codec, 0, 0)

	handle, err := issuer.Issue(context.Background(), testIdentity(), MethodPasskey)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if handle.Kind != HandleSigned {
		t.Fatalf("Kind = %q, want %q", handle.Kind, HandleSigned)
	}

	claims, err := codec.Verify(handle.Token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject = %q, want user-1", claims.Subject)
	}
	if claims.Credential {
		t.Error("Credential = true on a passkey token")
	}

	// No store entry for signed tokens.
	if _, err := m.GetSession(context.Background(), handle.Token); !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("GetSession() error = %v, want ErrSessionNotFound", err)
	}
}

func TestIssuer_StoreFailureAbortsLogin(t *testing.T) {
	m := store.NewMockStore()
	m.CreateSessionErr = errors.New("storage unavailable")
	issuer := NewIssuer(m, newTestCodec(t), 0, 0)

	handle, err := issuer.Issue(context.Background(), testIdentity(), MethodCredentials)
	if !errors.Is(err, ErrSessionCreation) {
		t.Errorf("Issue() error = %v, want ErrSessionCreation", err)
	}
	// Hard failure: no fallback token of any kind.
	if handle != nil {
		t.Errorf("Issue() handle = %+v, want nil", handle)
	}
}

func TestIssuer_MissingSubject(t *testing.T) {
	m := store.NewMockStore()
	issuer := NewIssuer(m, newTestCodec(t), 0, 0)

	tests := []struct {
		name     string
		identity *Identity
	}{
		{"nil identity", nil},
		{"empty ID", &Identity{Email: "alice@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := issuer.Issue(context.Background(), tt.identity, MethodCredentials); !errors.Is(err, ErrMissingSubject) {
				t.Errorf("Issue() error = %v, want ErrMissingSubject", err)
			}
		})
	}
}

func TestIssuer_SessionExpiry(t *testing.T) {
	m := store.NewMockStore()
	issuer := NewIssuer(m, newTestCodec(t), time.Hour, 0)

	before := time.Now().Add(time.Hour)
	handle, err := issuer.Issue(context.Background(), testIdentity(), MethodCredentials)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	after := time.Now().Add(time.Hour)

	if handle.ExpiresAt.Before(before) || handle.ExpiresAt.After(after) {
		t.Errorf("ExpiresAt = %v, want within [%v, %v]", handle.ExpiresAt, before, after)
	}
}
