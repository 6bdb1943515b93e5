// Package credential hashes and verifies passwords.
package credential

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = 12

// Hasher is the minimal password hashing contract used by the auth flows.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// BcryptHasher implements Hasher with bcrypt. Every call to Hash draws a new
// random salt, so hashing the same password twice never yields equal output.
type BcryptHasher struct{ Cost int }

var _ Hasher = BcryptHasher{}

func (b BcryptHasher) cost() int {
	if b.Cost == 0 {
		return DefaultCost
	}
	return b.Cost
}

// Hash returns the encoded bcrypt hash of password.
func (b BcryptHasher) Hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), b.cost())
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Verify reports whether password matches hash. A malformed hash is a
// mismatch, not an error.
func (b BcryptHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
