// Package token generates and checks guest invitation tokens.
//
// Token Format:
//
//   - Prefix: optional, fixed per campaign
//   - Payload: Length random characters (default 10)
//   - Checksum: 2 characters derived from a murmur3 hash of the payload
//   - Suffix: optional, fixed per campaign
//
// The default alphabet omits glyphs that are easily confused when read aloud
// or copied from paper (0/O, 1/I/L).
//
// Security:
//
//   - Payload characters come from crypto/rand by default
//   - The checksum is a typo guard, not an authenticator
//   - A seeded insecure source exists for tests only and is compiled in
//     only with the "insecure_rng" build tag
//   - Tokens are fingerprinted with SHA-256 before they reach logs
package token
