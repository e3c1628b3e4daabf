// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user/session persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			bio TEXT,
			avatar_url TEXT,
			location TEXT,
			website TEXT,
			github_url TEXT,
			linkedin_url TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
		CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);

		CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);

		CREATE TABLE IF NOT EXISTS webauthn_credentials (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			credential_id BLOB UNIQUE NOT NULL,
			public_key BLOB NOT NULL,
			attestation_type TEXT,
			transports TEXT,
			sign_count INTEGER DEFAULT 0,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_webauthn_credentials_user ON webauthn_credentials(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// isUniqueConstraintError reports whether err is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	// SQLite returns "UNIQUE constraint failed" in the error message
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "unique constraint"))
}

// uniqueViolationTarget maps a SQLite unique constraint error on the users table
// to the conflicting field sentinel.
func uniqueViolationTarget(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "users.email"):
		return ErrEmailExists
	case strings.Contains(msg, "users.username"):
		return ErrUsernameExists
	default:
		return err
	}
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, name, username, email, password_hash, bio, avatar_url,
			location, website, github_url, linkedin_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Bio,
		user.AvatarURL,
		user.Location,
		user.Website,
		user.GithubURL,
		user.LinkedinURL,
		user.CreatedAt.UTC().Format(time.RFC3339),
		user.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return uniqueViolationTarget(err)
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Info("created user", "id", user.ID, "username", user.Username)
	return nil
}

const userColumns = `id, name, username, email, password_hash, bio, avatar_url,
	location, website, github_url, linkedin_url, created_at, updated_at`

// scanUser scans a user row from the given scanner.
func scanUser(scan func(dest ...any) error) (*User, error) {
	var user User
	var bio, avatarURL, location, website, githubURL, linkedinURL sql.NullString
	var createdAtStr, updatedAtStr string

	err := scan(
		&user.ID,
		&user.Name,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&bio,
		&avatarURL,
		&location,
		&website,
		&githubURL,
		&linkedinURL,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	user.Bio = bio.String
	user.AvatarURL = avatarURL.String
	user.Location = location.String
	user.Website = website.String
	user.GithubURL = githubURL.String
	user.LinkedinURL = linkedinURL.String

	user.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	user.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &user, nil
}

// getUserBy retrieves a single user matching the given column value.
func (s *SQLiteStore) getUserBy(ctx context.Context, column, value string) (*User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE %s = ?", userColumns, column)

	row := s.db.QueryRowContext(ctx, query, value)
	user, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by %s: %w", column, err)
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	return s.getUserBy(ctx, "id", id)
}

// GetUserByEmail retrieves a user by email. Email is a uniqueness constraint,
// so at most one row can match.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUserBy(ctx, "email", email)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUserBy(ctx, "username", username)
}

// UpdateUserProfile updates the profile fields of an existing user.
// The password hash is never touched by this method.
func (s *SQLiteStore) UpdateUserProfile(ctx context.Context, user *User) error {
	query := `
		UPDATE users
		SET name = ?, username = ?, email = ?, bio = ?, avatar_url = ?,
			location = ?, website = ?, github_url = ?, linkedin_url = ?, updated_at = ?
		WHERE id = ?
	`

	user.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx, query,
		user.Name,
		user.Username,
		user.Email,
		user.Bio,
		user.AvatarURL,
		user.Location,
		user.Website,
		user.GithubURL,
		user.LinkedinURL,
		user.UpdatedAt.UTC().Format(time.RFC3339),
		user.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return uniqueViolationTarget(err)
		}
		return fmt.Errorf("updating user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// UpdateUserPassword replaces the stored password hash for a user.
func (s *SQLiteStore) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, passwordHash, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// buildUserSearch returns the WHERE clause and arguments for a filter's search term.
func buildUserSearch(filter UserFilter) (string, []any) {
	if strings.TrimSpace(filter.Search) == "" {
		return "", nil
	}
	pattern := "%" + strings.TrimSpace(filter.Search) + "%"
	clause := `WHERE name LIKE ? COLLATE NOCASE
		OR username LIKE ? COLLATE NOCASE
		OR email LIKE ? COLLATE NOCASE`
	return clause, []any{pattern, pattern, pattern}
}

// ListUsers returns a page of users matching the filter.
func (s *SQLiteStore) ListUsers(ctx context.Context, filter UserFilter) ([]*User, error) {
	filter = normalizeFilter(filter)

	where, args := buildUserSearch(filter)
	order := "DESC"
	if filter.SortOrder == "asc" {
		order = "ASC"
	}

	query := fmt.Sprintf("SELECT %s FROM users %s ORDER BY %s %s LIMIT ? OFFSET ?",
		userColumns, where, sortColumn(filter.SortBy), order)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// CountUsers returns the total number of users matching the filter's search term.
func (s *SQLiteStore) CountUsers(ctx context.Context, filter UserFilter) (int, error) {
	where, args := buildUserSearch(filter)

	var count int
	query := "SELECT COUNT(*) FROM users " + where
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// CreateSession persists a new session. Token uniqueness is enforced by the
// primary key; a collision surfaces as ErrSessionExists so the caller can
// regenerate and retry.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (token, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.Token,
		session.UserID,
		session.CreatedAt.UTC().Format(time.RFC3339),
		session.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSessionExists
		}
		return fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Debug("created session", "user_id", session.UserID)
	return nil
}

// GetSession retrieves a valid (non-expired) session. Expired rows are treated
// as absent even if they have not been garbage-collected yet.
func (s *SQLiteStore) GetSession(ctx context.Context, token string) (*Session, error) {
	query := `
		SELECT token, user_id, created_at, expires_at
		FROM sessions
		WHERE token = ? AND expires_at > ?
	`

	var session Session
	var createdAtStr, expiresAtStr string
	now := time.Now().UTC().Format(time.RFC3339)

	err := s.db.QueryRowContext(ctx, query, token, now).Scan(
		&session.Token,
		&session.UserID,
		&createdAtStr,
		&expiresAtStr,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	session.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	session.ExpiresAt, err = time.Parse(time.RFC3339, expiresAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}

	return &session, nil
}

// DeleteSession removes a session. Deleting an unknown token is not an error;
// the bool reports whether a row was actually removed.
func (s *SQLiteStore) DeleteSession(ctx context.Context, token string) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	if err != nil {
		return false, fmt.Errorf("deleting session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking delete result: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteExpiredSessions removes all expired sessions and returns the count.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Debug("deleted expired sessions", "count", rowsAffected)
	}
	return rowsAffected, nil
}

// CreateWebAuthnCredential stores a new passkey credential.
func (s *SQLiteStore) CreateWebAuthnCredential(ctx context.Context, cred *WebAuthnCredential) error {
	query := `
		INSERT INTO webauthn_credentials (id, user_id, credential_id, public_key,
			attestation_type, transports, sign_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		cred.ID,
		cred.UserID,
		cred.CredentialID,
		cred.PublicKey,
		cred.AttestationType,
		cred.Transports,
		cred.SignCount,
		cred.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting webauthn credential: %w", err)
	}

	s.logger.Info("created webauthn credential", "id", cred.ID, "user_id", cred.UserID)
	return nil
}

// scanWebAuthnCredential scans a credential row.
func scanWebAuthnCredential(scan func(dest ...any) error) (*WebAuthnCredential, error) {
	var cred WebAuthnCredential
	var attestationType, transports sql.NullString
	var createdAtStr string

	err := scan(
		&cred.ID,
		&cred.UserID,
		&cred.CredentialID,
		&cred.PublicKey,
		&attestationType,
		&transports,
		&cred.SignCount,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	cred.AttestationType = attestationType.String
	cred.Transports = transports.String
	cred.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &cred, nil
}

const webauthnColumns = `id, user_id, credential_id, public_key, attestation_type, transports, sign_count, created_at`

// GetWebAuthnCredentialsByUser returns all credentials registered by a user.
func (s *SQLiteStore) GetWebAuthnCredentialsByUser(ctx context.Context, userID string) ([]*WebAuthnCredential, error) {
	query := fmt.Sprintf("SELECT %s FROM webauthn_credentials WHERE user_id = ? ORDER BY created_at", webauthnColumns)

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying webauthn credentials: %w", err)
	}
	defer rows.Close()

	var creds []*WebAuthnCredential
	for rows.Next() {
		cred, err := scanWebAuthnCredential(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning webauthn credential: %w", err)
		}
		creds = append(creds, cred)
	}

	return creds, rows.Err()
}

// GetWebAuthnCredentialByCredentialID looks up a credential by the
// authenticator-assigned credential ID.
func (s *SQLiteStore) GetWebAuthnCredentialByCredentialID(ctx context.Context, credentialID []byte) (*WebAuthnCredential, error) {
	query := fmt.Sprintf("SELECT %s FROM webauthn_credentials WHERE credential_id = ?", webauthnColumns)

	row := s.db.QueryRowContext(ctx, query, credentialID)
	cred, err := scanWebAuthnCredential(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying webauthn credential: %w", err)
	}
	return cred, nil
}

// UpdateWebAuthnCredentialSignCount updates the signature counter after a login.
func (s *SQLiteStore) UpdateWebAuthnCredentialSignCount(ctx context.Context, id string, signCount uint32) error {
	_, err := s.db.ExecContext(ctx, "UPDATE webauthn_credentials SET sign_count = ? WHERE id = ?", signCount, id)
	if err != nil {
		return fmt.Errorf("updating sign count: %w", err)
	}
	return nil
}

// DeleteWebAuthnCredential removes a passkey credential.
func (s *SQLiteStore) DeleteWebAuthnCredential(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM webauthn_credentials WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting webauthn credential: %w", err)
	}
	return nil
}
