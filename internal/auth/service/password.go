package service

import (
	"errors"

	autherror "github.com/AnthoniusHendriyanto/identity-service/internal/errors"
	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher hashes credentials with bcrypt at a fixed work factor.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher falls back to bcrypt.DefaultCost when cost is out of range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Cost() int {
	return h.cost
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", autherror.Validation("password must not exceed 72 bytes")
		}
		return "", err
	}
	return string(hashed), nil
}

// Verify relies on bcrypt's constant-time comparison of the derived keys.
func (h *BcryptHasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
