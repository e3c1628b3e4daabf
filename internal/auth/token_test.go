// ABOUTME: Unit tests for signed token minting and verification
// ABOUTME: Tests valid tokens, invalid tokens, expired tokens, and the cred claim

package auth

import (
	"errors"
	"testing"
	"time"
)

var testSecret = []byte("test-secret-key-for-token-signing")

func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(testSecret)
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}
	return codec
}

func TestTokenCodec_ValidToken(t *testing.T) {
	codec := newTestCodec(t)

	userID := "user-123"
	token, err := codec.Mint(userID, false, time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	claims, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if claims.Subject != userID {
		t.Errorf("Subject = %q, want %q", claims.Subject, userID)
	}
	if claims.Credential {
		t.Error("Credential = true, want false")
	}
	if claims.ExpiresAt.Before(time.Now()) {
		t.Error("ExpiresAt is in the past")
	}
}

func TestTokenCodec_CredentialClaim(t *testing.T) {
	codec := newTestCodec(t)

	token, err := codec.Mint("user-123", true, time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	claims, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !claims.Credential {
		t.Error("Credential = false, want true")
	}
}

func TestTokenCodec_InvalidToken(t *testing.T) {
	codec := newTestCodec(t)

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "empty token",
			token: "",
		},
		{
			name:  "garbage token",
			token: "not-a-signed-token",
		},
		{
			name:  "malformed JWT",
			token: "header.payload.signature",
		},
		{
			name: "wrong secret",
			token: func() string {
				other, _ := NewTokenCodec([]byte("a-completely-different-32b-secret"))
				token, _ := other.Mint("user-123", false, time.Hour)
				return token
			}(),
		},
		{
			name: "tampered payload",
			token: func() string {
				token, _ := newTestCodec(t).Mint("user-123", false, time.Hour)
				return token[:len(token)-4] + "XXXX"
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := codec.Verify(tt.token); err == nil {
				t.Error("Verify() error = nil, want error")
			}
		})
	}
}

func TestTokenCodec_ExpiredToken(t *testing.T) {
	codec := newTestCodec(t)

	token, err := codec.Mint("user-123", false, -time.Minute)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	if _, err := codec.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify(expired) error = %v, want ErrExpiredToken", err)
	}
}

func TestNewTokenCodec_ShortSecret(t *testing.T) {
	if _, err := NewTokenCodec([]byte("too-short")); err == nil {
		t.Error("NewTokenCodec(short secret) error = nil, want error")
	}
}
