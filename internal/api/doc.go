// Package api implements the HTTP surface of rosterd.
//
// # Overview
//
// Every endpoint answers the same JSON envelope:
//
//	{"success": bool, "message": string, "data": ..., "errors": {...}}
//
// Validation failures carry per-field messages in "errors" with status 400.
// Uniqueness conflicts answer 409 naming the conflicting field. Storage
// failures answer a generic 500; details go to the log only.
//
// # Endpoints
//
// Public:
//
//	POST /api/register               create an account
//	POST /api/login                  credential login, sets the session cookie
//	POST /api/logout                 revoke the cookie session (idempotent)
//	GET  /api/users                  directory listing (email only when authenticated)
//	POST /api/webauthn/login/begin   start a passkey login
//	POST /api/webauthn/login/finish  finish it; body carries a signed token
//
// Protected (session cookie or bearer token):
//
//	GET  /api/me                        caller profile with rendered bio
//	GET  /api/users/{id}                full profile
//	PUT  /api/users/{id}                profile update, owner only
//	POST /api/webauthn/register/begin   start adding a passkey
//	POST /api/webauthn/register/finish  finish adding it
//	GET  /api/webauthn/credentials      list the caller's passkeys
//	DELETE /api/webauthn/credentials/{id}  remove one of them
//
// # Authentication
//
// requireAuth resolves session evidence through auth.Gate before the
// handler runs and answers 401 on failure. optionalAuth attaches an
// identity when present but lets anonymous requests through; the user
// listing uses it to decide whether email addresses are visible.
//
// # Passkeys
//
// WebAuthn ceremonies keep their challenge state in an in-process map
// with a five minute TTL and a cleanup goroutine. A completed passkey
// login is issued a signed bearer token, never a stored session.
package api
