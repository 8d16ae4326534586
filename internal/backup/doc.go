// Package backup creates and restores integrity-checked snapshots of the
// campaign, its guest records and the block list.
//
// A backup is two files in the repository directory: <id>.json holds the
// Metadata and <id>.bak the payload. The payload is the JSON document,
// optionally zstd-compressed and then sealed with an AEAD. Metadata.Checksum
// is the SHA-256 of the payload bytes exactly as stored, and every restore
// verifies it before anything else is read.
//
// Key handling:
//
//	master key = Argon2id(secret, fixed salt)            once, at NewService
//	data key   = HKDF-SHA256(master, per-backup salt)    per backup
//	payload    = nonce || AEAD(data key, body, aad=id)
//
// Restores run as a RecoveryOperation: an ordered list of steps that can be
// polled while running and cancelled between steps.
package backup
