package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Algorithm names an AEAD.
type Algorithm string

const (
	AlgorithmAESGCM   Algorithm = "aes-256-gcm"
	AlgorithmChaCha20 Algorithm = "chacha20-poly1305"
)

// KeyDerivation is recorded in Metadata so a reader knows how the data key
// was produced.
const KeyDerivation = "argon2id+hkdf-sha256"

const (
	// MinSecretLength is the shortest accepted backup secret.
	MinSecretLength = 16

	saltLength = 16
	keyLength  = 32

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4

	hkdfInfo = "rsvpguard backup data key v1"
)

// masterSalt domain-separates the master key from other uses of the secret.
var masterSalt = []byte("rsvpguard/backup/master/v1")

var (
	ErrSecretTooShort   = errors.New("backup: secret too short (minimum 16 bytes)")
	ErrNoSecret         = errors.New("backup: encryption requested but no secret configured")
	ErrDecryptionFailed = errors.New("backup: decryption failed - wrong secret or corrupted data")
)

// ParseAlgorithm accepts the configured algorithm name. Empty means AES-GCM.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case "", AlgorithmAESGCM, "aes-gcm":
		return AlgorithmAESGCM, nil
	case AlgorithmChaCha20:
		return AlgorithmChaCha20, nil
	}
	return "", fmt.Errorf("backup: unsupported algorithm %q", s)
}

// keyring holds the master key derived from the operator secret.
type keyring struct {
	master []byte
}

// newKeyring runs Argon2id once. A nil keyring cannot encrypt or decrypt.
func newKeyring(secret []byte) (*keyring, error) {
	if len(secret) == 0 {
		return nil, nil
	}
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	return &keyring{
		master: argon2.IDKey(secret, masterSalt, argon2Time, argon2Memory, argon2Threads, keyLength),
	}, nil
}

func (k *keyring) dataKey(salt []byte) ([]byte, error) {
	key := make([]byte, keyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, k.master, salt, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("backup: derive data key: %w", err)
	}
	return key, nil
}

func newAEAD(alg Algorithm, key []byte) (cipher.AEAD, error) {
	switch alg {
	case AlgorithmAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case AlgorithmChaCha20:
		return chacha20poly1305.New(key)
	}
	return nil, fmt.Errorf("backup: unsupported algorithm %q", alg)
}

// seal encrypts plaintext under a fresh salt and nonce. The nonce is
// prepended to the ciphertext; the salt is returned for the metadata.
func (k *keyring) seal(alg Algorithm, plaintext, aad []byte) (sealed, salt []byte, err error) {
	if k == nil {
		return nil, nil, ErrNoSecret
	}
	salt = make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("backup: salt: %w", err)
	}
	key, err := k.dataKey(salt)
	if err != nil {
		return nil, nil, err
	}
	defer zero(key)
	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("backup: nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, aad), salt, nil
}

func (k *keyring) open(alg Algorithm, sealed, salt, aad []byte) ([]byte, error) {
	if k == nil {
		return nil, ErrNoSecret
	}
	key, err := k.dataKey(salt)
	if err != nil {
		return nil, err
	}
	defer zero(key)
	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrDecryptionFailed
	}
	ns := aead.NonceSize()
	plain, err := aead.Open(nil, sealed[:ns], sealed[ns:], aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
