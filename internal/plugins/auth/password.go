package auth

import (
	"crypto/subtle"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/keyxmakerx/warden/internal/apperror"
)

// bcryptMarker matches the "$2a$12$" style prefix of a bcrypt hash. Stored
// values without it are legacy plaintext.
var bcryptMarker = regexp.MustCompile(`^\$2[abxy]\$\d+\$`)

// Password policy.
const (
	minPasswordLength = 12

	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
)

// VerificationKind is the outcome of comparing a submitted password with
// the stored credential.
type VerificationKind int

const (
	// NoMatch means the password is wrong or the comparison failed.
	NoMatch VerificationKind = iota

	// LegacyMatch means the password equals a plaintext stored value. The
	// caller must rewrite the credential as a hash.
	LegacyMatch

	// HashedMatch means the password matches a bcrypt hash.
	HashedMatch
)

// Verification is the result of Hasher.Verify.
type Verification struct {
	Kind VerificationKind
}

// Matches reports whether the password was accepted.
func (v Verification) Matches() bool {
	return v.Kind != NoMatch
}

// NeedsUpgrade reports whether the stored credential must be rehashed.
// Only a correct legacy password is ever upgraded.
func (v Verification) NeedsUpgrade() bool {
	return v.Kind == LegacyMatch
}

// decoyPassword seeds the hash Burn compares against.
const decoyPassword = "warden-decoy-credential"

// Hasher hashes and verifies passwords with bcrypt.
type Hasher struct {
	cost int

	decoyOnce sync.Once
	decoy     []byte
}

// NewHasher creates a hasher using the given bcrypt cost.
func NewHasher(cost int) *Hasher {
	return &Hasher{cost: cost}
}

// Hash returns the bcrypt form of password.
func (h *Hasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// Verify compares submitted against stored. Any bcrypt error, including a
// corrupt hash, is reported as NoMatch.
func (h *Hasher) Verify(submitted, stored string) Verification {
	if IsHashed(stored) {
		if bcrypt.CompareHashAndPassword([]byte(stored), []byte(submitted)) == nil {
			return Verification{Kind: HashedMatch}
		}
		return Verification{Kind: NoMatch}
	}

	if stored != "" && subtle.ConstantTimeCompare([]byte(submitted), []byte(stored)) == 1 {
		return Verification{Kind: LegacyMatch}
	}
	return Verification{Kind: NoMatch}
}

// Burn runs one bcrypt comparison of password against a decoy hash of the
// same cost. Login calls it when no account matches so that an unknown
// email takes as long as a wrong password.
func (h *Hasher) Burn(password string) {
	h.decoyOnce.Do(func() {
		h.decoy, _ = bcrypt.GenerateFromPassword([]byte(decoyPassword), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.decoy, []byte(password))
}

// IsHashed reports whether stored carries the bcrypt marker.
func IsHashed(stored string) bool {
	return bcryptMarker.MatchString(stored)
}

// ValidatePassword enforces the password policy: at least 12 characters,
// one letter and one digit, and no more than 72 bytes. The error lists every
// rule that failed.
func ValidatePassword(password string) error {
	var failed []string
	if len([]rune(password)) < minPasswordLength {
		failed = append(failed, fmt.Sprintf("at least %d characters", minPasswordLength))
	}
	if !strings.ContainsFunc(password, unicode.IsLetter) {
		failed = append(failed, "at least 1 letter")
	}
	if !strings.ContainsFunc(password, unicode.IsDigit) {
		failed = append(failed, "at least 1 digit")
	}
	if len(password) > maxPasswordBytes {
		failed = append(failed, fmt.Sprintf("at most %d bytes", maxPasswordBytes))
	}
	if len(failed) > 0 {
		return apperror.NewValidation("password does not meet the requirements: " + strings.Join(failed, ", "))
	}
	return nil
}
