package auth

import (
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash is a valid bcrypt hash compared against when a username is
// unknown, keeping the work factor constant so response timing does not
// reveal which usernames exist.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// VerifyPassword checks a presented password against a stored bcrypt hash.
// The stored material is never returned or logged.
func VerifyPassword(storedHash, presented string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(presented)) == nil
}

// VerifySecret checks a presented client secret against the stored one.
// Both sides are SHA-256 hashed before comparison to normalize length.
// subtle.ConstantTimeCompare returns 0 immediately when lengths differ,
// which would leak secret length if raw values were compared.
func VerifySecret(stored, presented string) bool {
	storedH := sha256.Sum256([]byte(stored))
	presentedH := sha256.Sum256([]byte(presented))

	return subtle.ConstantTimeCompare(storedH[:], presentedH[:]) == 1
}
