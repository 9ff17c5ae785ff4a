package mgmt

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"

	"github.com/hcobbs/xoe/internal/xoerr"
)

// PasswordHasher hides the hashing primitive behind a narrow interface
// so the three-attempt auth loop never compares plaintext passwords
// directly, only hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// BcryptHasher is the default PasswordHasher, grounded on the same
// bcrypt usage dittofs uses for its own user credentials.
type BcryptHasher struct {
	Cost int
}

// DefaultBcryptCost mirrors the cost dittofs picked as its own default
// balance between security and per-attempt latency.
const DefaultBcryptCost = 10

// NewBcryptHasher returns a BcryptHasher at DefaultBcryptCost.
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{Cost: DefaultBcryptCost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", xoerr.Wrap(xoerr.Unknown, err, "hashing management password")
	}
	return string(hash), nil
}

// Verify reports whether password matches hash. bcrypt.CompareHashAndPassword
// is already constant-time with respect to its inputs; Verify never
// short-circuits on a length or format mismatch before calling it.
func (h *BcryptHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// constantTimeEquals is used by callers that must compare
// already-hashed or token-like strings without going through bcrypt
// (bcrypt embeds its own constant-time comparison; this is for the
// handful of call sites comparing fixed-length secrets directly).
func constantTimeEquals(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// zero overwrites buf with zero bytes. Called after every authentication
// attempt so a plaintext password does not linger in a reused buffer.
func zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
