// ABOUTME: Store interface and data types for roster persistence
// ABOUTME: Defines User, Session structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrUserNotFound is returned when a user doesn't exist.
var ErrUserNotFound = errors.New("user not found")

// ErrSessionNotFound is returned when a session doesn't exist or is expired.
var ErrSessionNotFound = errors.New("session not found")

// ErrEmailExists is returned when trying to create or update a user with an email
// that is already taken.
var ErrEmailExists = errors.New("email already exists")

// ErrUsernameExists is returned when trying to create or update a user with a
// username that is already taken.
var ErrUsernameExists = errors.New("username already exists")

// ErrSessionExists is returned when a session token collides with an existing row.
// Callers regenerate the token and retry.
var ErrSessionExists = errors.New("session token already exists")

// User represents a registered account with its profile and credential material.
type User struct {
	ID           string
	Name         string
	Username     string
	Email        string
	PasswordHash string // bcrypt hash
	Bio          string
	AvatarURL    string
	Location     string
	Website      string
	GithubURL    string
	LinkedinURL  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session represents a persisted login session. The token is an opaque random
// string used as the lookup key; it carries no decodable payload.
type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// WebAuthnCredential represents a passkey credential.
type WebAuthnCredential struct {
	ID              string
	UserID          string
	CredentialID    []byte
	PublicKey       []byte
	AttestationType string
	Transports      string // JSON array
	SignCount       uint32
	CreatedAt       time.Time
}

// Sort column names accepted by UserFilter.SortBy.
const (
	SortByCreatedAt = "createdAt"
	SortByUpdatedAt = "updatedAt"
	SortByName      = "name"
	SortByUsername  = "username"
)

// UserFilter describes listing criteria for ListUsers/CountUsers.
type UserFilter struct {
	Search    string // case-insensitive substring match on name, username, email
	SortBy    string // one of the SortBy* constants, default createdAt
	SortOrder string // "asc" or "desc", default desc
	Limit     int
	Offset    int
}

// Store defines the interface for user and session persistence
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UpdateUserProfile(ctx context.Context, user *User) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	ListUsers(ctx context.Context, filter UserFilter) ([]*User, error)
	CountUsers(ctx context.Context, filter UserFilter) (int, error)

	// Sessions
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, token string) (*Session, error)
	DeleteSession(ctx context.Context, token string) (bool, error)
	DeleteExpiredSessions(ctx context.Context) (int64, error)

	// WebAuthn Credentials
	CreateWebAuthnCredential(ctx context.Context, cred *WebAuthnCredential) error
	GetWebAuthnCredentialsByUser(ctx context.Context, userID string) ([]*WebAuthnCredential, error)
	GetWebAuthnCredentialByCredentialID(ctx context.Context, credentialID []byte) (*WebAuthnCredential, error)
	UpdateWebAuthnCredentialSignCount(ctx context.Context, id string, signCount uint32) error
	DeleteWebAuthnCredential(ctx context.Context, id string) error

	Close() error
}

// normalizeFilter applies filter defaults shared by both store implementations.
func normalizeFilter(f UserFilter) UserFilter {
	if f.SortBy == "" {
		f.SortBy = SortByCreatedAt
	}
	if f.SortOrder != "asc" {
		f.SortOrder = "desc"
	}
	if f.Limit <= 0 {
		f.Limit = 10
	}
	return f
}

// sortColumn maps an API sort key to its SQL column. Unknown keys fall back to
// created_at so user input never reaches the ORDER BY clause directly.
func sortColumn(sortBy string) string {
	switch sortBy {
	case SortByName:
		return "name"
	case SortByUsername:
		return "username"
	case SortByUpdatedAt:
		return "updated_at"
	default:
		return "created_at"
	}
}
