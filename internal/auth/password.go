// ABOUTME: Password hashing and verification using bcrypt
// ABOUTME: Salted, tunable-cost hashing with constant-time comparison

package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor used when none is configured.
const DefaultBcryptCost = 10

// dummyHash is a valid bcrypt hash of a random string. It is compared against
// when no stored hash exists, so the unknown-account path takes the same time
// as a real mismatch and usernames cannot be enumerated by timing.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Hasher hashes and verifies passwords.
type Hasher struct {
	cost int
}

// NewHasher creates a Hasher with the given bcrypt cost. Costs outside
// bcrypt's supported range fall back to DefaultBcryptCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &Hasher{cost: cost}
}

// Hash returns a salted bcrypt hash of the password. bcrypt generates a fresh
// random salt per call, so hashing the same password twice never produces the
// same output.
func (h *Hasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		// bcrypt errors carry no secret material, safe to wrap
		return "", err
	}
	return string(hash), nil
}

// Compare reports whether the password matches the stored hash. The comparison
// runs in time independent of where a mismatch occurs.
func (h *Hasher) Compare(password, storedHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password))
	return err == nil
}

// CompareDummy burns the same work as a real comparison without a stored hash.
// Called on lookup misses to keep response timing uniform.
func (h *Hasher) CompareDummy(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
}
