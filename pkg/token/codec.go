package token

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/spaolacci/murmur3"
)

const (
	// DefaultAlphabet excludes 0, 1, I, L and O.
	DefaultAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

	// DefaultLength is the default payload length, checksum excluded.
	DefaultLength = 10

	// ChecksumLength is the number of checksum characters appended to the payload.
	ChecksumLength = 2

	// MinLength is the shortest payload accepted by New.
	MinLength = 6

	// MaxLength is the longest payload accepted by New.
	MaxLength = 64
)

var (
	// ErrInvalidAlphabet is returned for alphabets that are too small or repeat characters.
	ErrInvalidAlphabet = errors.New("token: alphabet must hold 2..256 distinct ASCII characters")

	// ErrInvalidLength is returned when the payload length is out of range.
	ErrInvalidLength = errors.New("token: payload length out of range")

	// ErrInvalidAffix is returned when a prefix or suffix overlaps the alphabet.
	ErrInvalidAffix = errors.New("token: prefix and suffix must be printable ASCII")
)

// Options configures a Codec.
type Options struct {
	// Length is the payload length. Zero means DefaultLength.
	Length int

	// Alphabet is the payload and checksum alphabet. Empty means DefaultAlphabet.
	Alphabet string

	// Prefix and Suffix are fixed affixes added around payload+checksum.
	Prefix string
	Suffix string

	// ChecksumSeed keys the murmur3 checksum. Zero is a valid, unkeyed seed.
	ChecksumSeed uint32

	// Source supplies random characters. Nil means SecureSource().
	Source Source
}

// Codec generates and verifies tokens for one campaign.
//
// A Codec is immutable after New and safe for concurrent use as long as its
// Source is.
type Codec struct {
	length   int
	alphabet string
	index    [256]int16
	prefix   string
	suffix   string
	seed     uint32
	source   Source

	// foldCase is set when no part of a token can contain lower-case letters.
	foldCase bool
}

// New validates opts and returns a Codec.
func New(opts Options) (*Codec, error) {
	if opts.Length == 0 {
		opts.Length = DefaultLength
	}
	if opts.Alphabet == "" {
		opts.Alphabet = DefaultAlphabet
	}
	if opts.Source == nil {
		opts.Source = SecureSource()
	}
	if opts.Length < MinLength || opts.Length > MaxLength {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, opts.Length)
	}

	c := &Codec{
		length:   opts.Length,
		alphabet: opts.Alphabet,
		prefix:   opts.Prefix,
		suffix:   opts.Suffix,
		seed:     opts.ChecksumSeed,
		source:   opts.Source,
	}
	for i := range c.index {
		c.index[i] = -1
	}
	if len(opts.Alphabet) < 2 || len(opts.Alphabet) > 256 {
		return nil, ErrInvalidAlphabet
	}
	for i := 0; i < len(opts.Alphabet); i++ {
		ch := opts.Alphabet[i]
		if ch < 0x21 || ch > 0x7e || c.index[ch] != -1 {
			return nil, ErrInvalidAlphabet
		}
		c.index[ch] = int16(i)
	}
	if !printable(opts.Prefix) || !printable(opts.Suffix) {
		return nil, ErrInvalidAffix
	}
	c.foldCase = !hasLower(opts.Alphabet + opts.Prefix + opts.Suffix)
	return c, nil
}

// MustNew is like New but panics on invalid options. Intended for tests and
// package-level defaults.
func MustNew(opts Options) *Codec {
	c, err := New(opts)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the full token length including affixes.
func (c *Codec) Len() int {
	return len(c.prefix) + c.length + ChecksumLength + len(c.suffix)
}

// Generate returns a new random token with a valid checksum.
func (c *Codec) Generate() (string, error) {
	n := len(c.alphabet)
	var b strings.Builder
	b.Grow(c.Len())
	b.WriteString(c.prefix)

	payload := make([]byte, c.length)
	for i := range payload {
		idx, err := c.source.Intn(n)
		if err != nil {
			return "", fmt.Errorf("token: read random: %w", err)
		}
		payload[i] = c.alphabet[idx]
	}
	b.Write(payload)
	b.WriteString(c.checksum(payload))
	b.WriteString(c.suffix)
	return b.String(), nil
}

// Normalize trims surrounding space and, for upper-case alphabets, folds
// case, so a guest typing their code by hand is not rejected for it.
func (c *Codec) Normalize(tok string) string {
	tok = strings.TrimSpace(tok)
	if c.foldCase {
		tok = strings.ToUpper(tok)
	}
	return tok
}

// ValidFormat reports whether tok has the right affixes, length and alphabet.
// It does not look at the checksum.
func (c *Codec) ValidFormat(tok string) bool {
	_, _, ok := c.split(tok)
	return ok
}

// VerifyChecksum recomputes the checksum of the payload and compares it with
// the one carried by tok. Malformed input yields false.
func (c *Codec) VerifyChecksum(tok string) bool {
	payload, sum, ok := c.split(tok)
	if !ok {
		return false
	}
	want := c.checksum([]byte(payload))
	return subtle.ConstantTimeCompare([]byte(want), []byte(sum)) == 1
}

// split returns the payload and checksum parts of tok.
func (c *Codec) split(tok string) (payload, sum string, ok bool) {
	if len(tok) != c.Len() {
		return "", "", false
	}
	if !strings.HasPrefix(tok, c.prefix) || !strings.HasSuffix(tok, c.suffix) {
		return "", "", false
	}
	core := tok[len(c.prefix) : len(tok)-len(c.suffix)]
	for i := 0; i < len(core); i++ {
		if c.index[core[i]] < 0 {
			return "", "", false
		}
	}
	return core[:c.length], core[c.length:], true
}

// checksum maps a seeded murmur3 hash of payload onto two alphabet characters.
func (c *Codec) checksum(payload []byte) string {
	h := murmur3.Sum32WithSeed(payload, c.seed)
	n := uint32(len(c.alphabet))
	return string([]byte{c.alphabet[h%n], c.alphabet[(h/n)%n]})
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

func hasLower(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 'a' && s[i] <= 'z' {
			return true
		}
	}
	return false
}
