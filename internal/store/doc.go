// Package store provides persistent storage for roster user accounts and sessions.
//
// # Architecture
//
// A single Store interface covers the three persistence concerns:
//
//   - Users: account records with profile fields and the bcrypt password hash
//   - Sessions: opaque login tokens with absolute expiry
//   - WebAuthnCredential: passkey credentials
//
// Two backends implement the interface:
//
//   - SQLiteStore (modernc.org/sqlite): zero-dependency default, WAL mode
//   - PostgresStore (jackc/pgx): for shared deployments, selected via
//     database.driver in the config
//
// MockStore is an in-memory implementation for unit tests, with error
// injection hooks on the session operations.
//
// # Uniqueness
//
// Email and username uniqueness, and session token uniqueness, are enforced by
// database constraints rather than check-then-insert, so concurrent writers
// cannot race past them. Violations surface as the sentinels ErrEmailExists,
// ErrUsernameExists and ErrSessionExists.
//
// # Session expiry
//
// GetSession filters on expires_at in SQL: an expired row is reported as
// ErrSessionNotFound even before DeleteExpiredSessions has swept it. Physical
// deletion timing is therefore never a correctness concern for readers.
//
// # Timestamps
//
// SQLite stores timestamps as RFC3339 strings in UTC; Postgres uses
// timestamptz columns. Both round-trip through time.Time in the API.
package store
