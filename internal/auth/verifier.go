// ABOUTME: Credential verification against stored user records
// ABOUTME: Returns a uniform failure for unknown accounts and wrong passwords

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rosterhq/roster/internal/store"
)

// ErrMissingCredentials is returned when the identifier or secret is empty.
// This is a caller error, not an authentication failure.
var ErrMissingCredentials = errors.New("email and password required")

// ErrInvalidCredentials is the uniform failure for unknown email or wrong
// password. The two cases are deliberately indistinguishable to the caller.
var ErrInvalidCredentials = errors.New("invalid email or password")

// UserLookup is the slice of the store the verifier needs.
type UserLookup interface {
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
}

// Verifier checks submitted credentials against stored user records.
type Verifier struct {
	users  UserLookup
	hasher *Hasher
	logger *slog.Logger
}

// NewVerifier creates a credential verifier.
func NewVerifier(users UserLookup, hasher *Hasher) *Verifier {
	return &Verifier{
		users:  users,
		hasher: hasher,
		logger: slog.Default().With("component", "auth"),
	}
}

// Verify checks an email/password pair and returns the authenticated identity.
// Unknown email and wrong password both return ErrInvalidCredentials; a dummy
// bcrypt comparison runs on the lookup-miss path so the two cases take the
// same time. No stored record is mutated on failure.
func (v *Verifier) Verify(ctx context.Context, email, password string) (*Identity, error) {
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	user, err := v.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			v.hasher.CompareDummy(password)
			v.logger.Info("login failed", "reason", "unknown email")
			return nil, ErrInvalidCredentials
		}
		v.logger.Error("credential lookup failed", "error", err)
		return nil, err
	}

	if !v.hasher.Compare(password, user.PasswordHash) {
		v.logger.Info("login failed", "reason", "password mismatch", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	return &Identity{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
	}, nil
}
