package auth

import (
	"crypto/sha256"
	"crypto/subtle"

	"github.com/google/uuid"
)

// NewViewToken returns a fresh ticket capability (random UUIDv4, 122 bits).
func NewViewToken() string {
	return uuid.NewString()
}

// VerifyViewToken compares a presented capability with the stored one.
//
// Both values are reduced to fixed-size digests before the constant-time
// comparison, and the length check is folded in with ConstantTimeEq, so a
// length mismatch costs the same as a content mismatch.
func VerifyViewToken(candidate, stored string) bool {
	if stored == "" {
		return false
	}
	a := sha256.Sum256([]byte(candidate))
	b := sha256.Sum256([]byte(stored))
	sameLen := subtle.ConstantTimeEq(int32(len(candidate)), int32(len(stored)))
	sameContent := subtle.ConstantTimeCompare(a[:], b[:])
	return sameLen&sameContent == 1
}
