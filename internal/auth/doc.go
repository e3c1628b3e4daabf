// Package auth provides authentication and session issuance for roster.
//
// # Authentication Methods
//
// Two trust paths are supported, and they deliberately produce different
// session representations:
//
//   - Credentials: email/password verified against the stored bcrypt hash.
//     Always issues an opaque, store-backed session token so the login can be
//     revoked server-side. Storage failure aborts the login; there is no
//     silent fallback to a stateless token.
//
//   - Passkey: WebAuthn assertion. Issues a self-contained HS256 signed token
//     carrying {sub, cred, iat, exp}, verifiable without a storage lookup.
//
// # Components
//
//   - Hasher: bcrypt hashing with a dummy-comparison path for timing-uniform
//     failures
//   - Verifier: credential check returning a uniform ErrInvalidCredentials
//     for both unknown email and wrong password
//   - Issuer: routes a verified identity to its session representation
//   - TokenCodec: mints and verifies signed tokens against a single injected
//     process secret (at least MinSecretLength bytes)
//   - Gate: resolves inbound evidence (session cookie or bearer token) into
//     an Identity; VerifyOwnership gates resource mutation after
//     authentication
//
// # Request Context
//
// Handlers receive the authenticated identity via the request context:
//
//	ctx = auth.WithIdentity(ctx, identity)
//	identity := auth.FromContext(ctx)
//
// # Known gap
//
// There is no rate limiting or lockout on repeated failed logins. The
// enumeration-resistant timing makes probing slow but not bounded; deploy
// behind an edge limiter if brute-force exposure matters.
package auth
