// ABOUTME: PostgreSQL implementation of the Store interface using pgx
// ABOUTME: Selected via database.driver config; enforces uniqueness with native constraints

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the Postgres error code for unique constraint violations.
const pgUniqueViolation = "23505"

// PostgresStore implements the Store interface using PostgreSQL
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects to PostgreSQL with the given DSN and bootstraps
// the schema if it doesn't exist.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	logger := slog.Default().With("component", "store")

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &PostgresStore{
		pool:   pool,
		logger: logger,
	}

	if err := s.createSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("Postgres store initialized")
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *PostgresStore) createSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			username TEXT NOT NULL,
			email TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			bio TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			website TEXT NOT NULL DEFAULT '',
			github_url TEXT NOT NULL DEFAULT '',
			linkedin_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			CONSTRAINT users_email_key UNIQUE (email),
			CONSTRAINT users_username_key UNIQUE (username)
		);

		CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);

		CREATE TABLE IF NOT EXISTS webauthn_credentials (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			credential_id BYTEA UNIQUE NOT NULL,
			public_key BYTEA NOT NULL,
			attestation_type TEXT NOT NULL DEFAULT '',
			transports TEXT NOT NULL DEFAULT '',
			sign_count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_webauthn_credentials_user ON webauthn_credentials(user_id);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// mapPgError translates Postgres unique violations into the store sentinels.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "email"):
		return ErrEmailExists
	case strings.Contains(pgErr.ConstraintName, "username"):
		return ErrUsernameExists
	case strings.Contains(pgErr.ConstraintName, "sessions"):
		return ErrSessionExists
	default:
		return err
	}
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, name, username, email, password_hash, bio, avatar_url,
			location, website, github_url, linkedin_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.pool.Exec(ctx, query,
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
		user.CreatedAt.UTC(),
		user.UpdatedAt.UTC(),
	)
	if err != nil {
		if mapped := mapPgError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Info("created user", "id", user.ID, "username", user.Username)
	return nil
}

const pgUserColumns = `id, name, username, email, password_hash, bio, avatar_url,
	location, website, github_url, linkedin_url, created_at, updated_at`

// scanPgUser scans a user row from a pgx row.
func scanPgUser(row pgx.Row) (*User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Bio,
		&user.AvatarURL,
		&user.Location,
		&user.Website,
		&user.GithubURL,
		&user.LinkedinURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// getUserBy retrieves a single user matching the given column value.
func (s *PostgresStore) getUserBy(ctx context.Context, column, value string) (*User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE %s = $1", pgUserColumns, column)

	user, err := scanPgUser(s.pool.QueryRow(ctx, query, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by %s: %w", column, err)
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*User, error) {
	return s.getUserBy(ctx, "id", id)
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUserBy(ctx, "email", email)
}

// GetUserByUsername retrieves a user by username.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUserBy(ctx, "username", username)
}

// UpdateUserProfile updates the profile fields of an existing user.
func (s *PostgresStore) UpdateUserProfile(ctx context.Context, user *User) error {
	query := `
		UPDATE users
		SET name = $1, username = $2, email = $3, bio = $4, avatar_url = $5,
			location = $6, website = $7, github_url = $8, linkedin_url = $9, updated_at = $10
		WHERE id = $11
	`

	user.UpdatedAt = time.Now()

	tag, err := s.pool.Exec(ctx, query,
		user.Name,
		user.Username,
		user.Email,
		user.Bio,
		user.AvatarURL,
		user.Location,
		user.Website,
		user.GithubURL,
		user.LinkedinURL,
		user.UpdatedAt.UTC(),
		user.ID,
	)
	if err != nil {
		if mapped := mapPgError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("updating user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateUserPassword replaces the stored password hash for a user.
func (s *PostgresStore) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3",
		passwordHash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// buildPgUserSearch returns the WHERE clause and arguments for a filter's search term.
func buildPgUserSearch(filter UserFilter) (string, []any) {
	if strings.TrimSpace(filter.Search) == "" {
		return "", nil
	}
	pattern := "%" + strings.TrimSpace(filter.Search) + "%"
	clause := `WHERE name ILIKE $1 OR username ILIKE $1 OR email ILIKE $1`
	return clause, []any{pattern}
}

// ListUsers returns a page of users matching the filter.
func (s *PostgresStore) ListUsers(ctx context.Context, filter UserFilter) ([]*User, error) {
	filter = normalizeFilter(filter)

	where, args := buildPgUserSearch(filter)
	order := "DESC"
	if filter.SortOrder == "asc" {
		order = "ASC"
	}

	query := fmt.Sprintf("SELECT %s FROM users %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		pgUserColumns, where, sortColumn(filter.SortBy), order, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanPgUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// CountUsers returns the total number of users matching the filter's search term.
func (s *PostgresStore) CountUsers(ctx context.Context, filter UserFilter) (int, error) {
	where, args := buildPgUserSearch(filter)

	var count int
	query := "SELECT COUNT(*) FROM users " + where
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// CreateSession persists a new session. Token uniqueness rides on the primary
// key constraint; the insert either lands atomically or fails.
func (s *PostgresStore) CreateSession(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (token, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.pool.Exec(ctx, query,
		session.Token,
		session.UserID,
		session.CreatedAt.UTC(),
		session.ExpiresAt.UTC(),
	)
	if err != nil {
		if mapped := mapPgError(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Debug("created session", "user_id", session.UserID)
	return nil
}

// GetSession retrieves a valid (non-expired) session.
func (s *PostgresStore) GetSession(ctx context.Context, token string) (*Session, error) {
	query := `
		SELECT token, user_id, created_at, expires_at
		FROM sessions
		WHERE token = $1 AND expires_at > now()
	`

	var session Session
	err := s.pool.QueryRow(ctx, query, token).Scan(
		&session.Token,
		&session.UserID,
		&session.CreatedAt,
		&session.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	return &session, nil
}

// DeleteSession removes a session; deleting an unknown token is not an error.
func (s *PostgresStore) DeleteSession(ctx context.Context, token string) (bool, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE token = $1", token)
	if err != nil {
		return false, fmt.Errorf("deleting session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteExpiredSessions removes all expired sessions and returns the count.
func (s *PostgresStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE expires_at <= now()")
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}

	if tag.RowsAffected() > 0 {
		s.logger.Debug("deleted expired sessions", "count", tag.RowsAffected())
	}
	return tag.RowsAffected(), nil
}

// CreateWebAuthnCredential stores a new passkey credential.
func (s *PostgresStore) CreateWebAuthnCredential(ctx context.Context, cred *WebAuthnCredential) error {
	query := `
		INSERT INTO webauthn_credentials (id, user_id, credential_id, public_key,
			attestation_type, transports, sign_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		cred.ID,
		cred.UserID,
		cred.CredentialID,
		cred.PublicKey,
		cred.AttestationType,
		cred.Transports,
		cred.SignCount,
		cred.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting webauthn credential: %w", err)
	}

	s.logger.Info("created webauthn credential", "id", cred.ID, "user_id", cred.UserID)
	return nil
}

// scanPgWebAuthnCredential scans a credential row.
func scanPgWebAuthnCredential(row pgx.Row) (*WebAuthnCredential, error) {
	var cred WebAuthnCredential
	var signCount int64
	err := row.Scan(
		&cred.ID,
		&cred.UserID,
		&cred.CredentialID,
		&cred.PublicKey,
		&cred.AttestationType,
		&cred.Transports,
		&signCount,
		&cred.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	cred.SignCount = uint32(signCount)
	return &cred, nil
}

// GetWebAuthnCredentialsByUser returns all credentials registered by a user.
func (s *PostgresStore) GetWebAuthnCredentialsByUser(ctx context.Context, userID string) ([]*WebAuthnCredential, error) {
	query := `
		SELECT id, user_id, credential_id, public_key, attestation_type, transports, sign_count, created_at
		FROM webauthn_credentials
		WHERE user_id = $1
		ORDER BY created_at
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying webauthn credentials: %w", err)
	}
	defer rows.Close()

	var creds []*WebAuthnCredential
	for rows.Next() {
		cred, err := scanPgWebAuthnCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning webauthn credential: %w", err)
		}
		creds = append(creds, cred)
	}

	return creds, rows.Err()
}

// GetWebAuthnCredentialByCredentialID looks up a credential by the
// authenticator-assigned credential ID.
func (s *PostgresStore) GetWebAuthnCredentialByCredentialID(ctx context.Context, credentialID []byte) (*WebAuthnCredential, error) {
	query := `
		SELECT id, user_id, credential_id, public_key, attestation_type, transports, sign_count, created_at
		FROM webauthn_credentials
		WHERE credential_id = $1
	`

	cred, err := scanPgWebAuthnCredential(s.pool.QueryRow(ctx, query, credentialID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying webauthn credential: %w", err)
	}
	return cred, nil
}

// UpdateWebAuthnCredentialSignCount updates the signature counter after a login.
func (s *PostgresStore) UpdateWebAuthnCredentialSignCount(ctx context.Context, id string, signCount uint32) error {
	_, err := s.pool.Exec(ctx, "UPDATE webauthn_credentials SET sign_count = $1 WHERE id = $2", signCount, id)
	if err != nil {
		return fmt.Errorf("updating sign count: %w", err)
	}
	return nil
}

// DeleteWebAuthnCredential removes a passkey credential.
func (s *PostgresStore) DeleteWebAuthnCredential(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM webauthn_credentials WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting webauthn credential: %w", err)
	}
	return nil
}
