// Package auth holds the stateless credential primitives: password hashing
// and signed identity tokens. Both are safe for concurrent use once built.
package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/account-authority/internal/apperr"
)

// DefaultBcryptCost is used when no cost is configured. Roughly 250ms per
// hash on current commodity hardware.
const DefaultBcryptCost = 12

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// PasswordHasher provides one-way password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted hash of password.
	Hash(password string) (string, error)

	// Verify reports whether password matches hash. It returns false for a
	// mismatch and for a malformed hash alike.
	Verify(password, hash string) bool
}

// BcryptHasher implements PasswordHasher with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher with the given work factor. Zero selects
// DefaultBcryptCost; anything outside bcrypt's range is a configuration error.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, apperr.Newf(apperr.Configuration, "bcrypt cost %d outside [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Cost returns the configured work factor.
func (h *BcryptHasher) Cost() int { return h.cost }

// Hash returns a bcrypt hash using the configured cost.
func (h *BcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, err, "hash password")
	}
	return string(b), nil
}

// Verify compares in constant time; bcrypt rejects malformed hashes with an
// error, which is reported as a plain mismatch.
func (h *BcryptHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
