package crypto

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used for stored passwords.
const DefaultCost = 12

// MinPasswordLen is the minimum accepted password length.
const MinPasswordLen = 8

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// SpecialChars lists the characters that satisfy the special-character rule.
const SpecialChars = `!@#$%^&*()_+-=[]{}|;:,.<>?`

// Hasher hashes and verifies passwords with bcrypt.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with the given bcrypt cost.
// A cost outside bcrypt's range falls back to DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns a salted bcrypt hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(hash), nil
}

// Verify reports whether password matches hash.
// Malformed hashes never verify.
func (h *Hasher) Verify(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Cost returns the bcrypt cost used by Hash.
func (h *Hasher) Cost() int {
	return h.cost
}

// ErrWeakPassword is wrapped by StrengthError.
var ErrWeakPassword = errors.New("weak password")

// StrengthError lists every rule a password violates.
type StrengthError struct {
	Reasons []string
}

func (e *StrengthError) Error() string {
	return strings.Join(e.Reasons, "; ")
}

func (e *StrengthError) Unwrap() error {
	return ErrWeakPassword
}

// ValidatePasswordStrength returns all violated rules, or nil for a strong password.
func ValidatePasswordStrength(password string) []string {
	if password == "" {
		return []string{"Password cannot be empty"}
	}

	var reasons []string

	if utf8.RuneCountInString(password) < MinPasswordLen {
		reasons = append(reasons, fmt.Sprintf("Password must be at least %d characters long", MinPasswordLen))
	}
	if len(password) > MaxPasswordBytes {
		reasons = append(reasons, fmt.Sprintf("Password must not exceed %d bytes", MaxPasswordBytes))
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(SpecialChars, r):
			special = true
		}
	}

	if !upper {
		reasons = append(reasons, "Password must contain at least one uppercase letter")
	}
	if !lower {
		reasons = append(reasons, "Password must contain at least one lowercase letter")
	}
	if !digit {
		reasons = append(reasons, "Password must contain at least one digit")
	}
	if !special {
		reasons = append(reasons, "Password must contain at least one special character ("+SpecialChars+")")
	}

	return reasons
}

// CheckPasswordStrength is ValidatePasswordStrength as an error.
func CheckPasswordStrength(password string) error {
	if reasons := ValidatePasswordStrength(password); len(reasons) > 0 {
		return &StrengthError{Reasons: reasons}
	}
	return nil
}
