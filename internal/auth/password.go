package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// PasswordPolicy holds the tunables a PasswordHasher enforces: bcrypt's cost
// factor and the minimum strength a plaintext password must meet before it
// is hashed.
type PasswordPolicy struct {
	BcryptCost int
	MinLength  int
}

// DefaultPasswordPolicy mirrors the cost factor and minimum length this
// system has always required for new accounts.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{BcryptCost: 12, MinLength: 8}
}

// PasswordHasher hashes, checks, and scores the strength of account
// passwords under a PasswordPolicy.
type PasswordHasher struct {
	policy PasswordPolicy
}

// NewPasswordHasher creates a PasswordHasher enforcing the given policy.
func NewPasswordHasher(policy PasswordPolicy) *PasswordHasher {
	return &PasswordHasher{policy: policy}
}

// Hash creates a bcrypt hash of password at the hasher's configured cost.
func (h *PasswordHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.policy.BcryptCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Check compares a plaintext password with a bcrypt hash.
func (h *PasswordHasher) Check(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// ValidateStrength reports whether password meets the hasher's minimum
// length and carries at least one uppercase letter, one lowercase letter,
// and one digit.
func (h *PasswordHasher) ValidateStrength(password string) bool {
	if len(password) < h.policy.MinLength {
		return false
	}

	var hasUpper, hasLower, hasNumber bool
	for _, char := range password {
		switch {
		case char >= 'A' && char <= 'Z':
			hasUpper = true
		case char >= 'a' && char <= 'z':
			hasLower = true
		case char >= '0' && char <= '9':
			hasNumber = true
		}
	}

	return hasUpper && hasLower && hasNumber
}
