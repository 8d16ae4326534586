package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Fingerprint returns the SHA-256 hex digest of a token.
//
// Security events and metrics carry fingerprints, never raw tokens.
func Fingerprint(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// ShortFingerprint returns the first 12 hex characters of the fingerprint,
// enough to correlate log lines.
func ShortFingerprint(token string) string {
	return Fingerprint(token)[:12]
}

// Equal compares two tokens in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MatchesFingerprint reports whether token hashes to the expected fingerprint.
func MatchesFingerprint(token, expected string) bool {
	return Equal(Fingerprint(token), expected)
}
