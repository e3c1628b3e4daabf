// ABOUTME: Signed token minting and verification for stateless sessions
// ABOUTME: Uses HS256 signing with a single process-wide secret

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// MinSecretLength is the minimum signing secret length in bytes.
const MinSecretLength = 32

// Claims is the verified payload of a signed token.
type Claims struct {
	Subject    string // user ID
	Credential bool   // true when the token followed the credential login path
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// TokenCodec mints and verifies HS256 signed tokens. The secret is injected at
// construction; there is no ambient/global lookup.
type TokenCodec struct {
	secret []byte
}

// NewTokenCodec creates a token codec with the given secret.
func NewTokenCodec(secret []byte) (*TokenCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	return &TokenCodec{secret: secret}, nil
}

// Mint creates a signed token for the given subject with expiration.
// The cred claim records whether the token was issued on the credential path;
// credential logins never receive signed tokens, so issuers set it false.
func (c *TokenCodec) Mint(subject string, credential bool, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"cred": credential,
		"iat":  now.Unix(),
		"exp":  now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify validates the token signature and expiry and extracts the claims.
// No partial trust: any failure returns an error and zero claims.
func (c *TokenCodec) Verify(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})

	if err != nil {
		// Check if it's specifically an expiration error
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	sub, ok := mapClaims["sub"].(string)
	if !ok || sub == "" {
		return Claims{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	out := Claims{Subject: sub}
	if cred, ok := mapClaims["cred"].(bool); ok {
		out.Credential = cred
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}

	return out, nil
}
