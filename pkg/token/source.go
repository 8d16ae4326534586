package token

import (
	"crypto/rand"
	"errors"
	"io"
)

// ErrInsecureSource is returned when an insecure random source is requested
// from a binary built without the insecure_rng tag.
var ErrInsecureSource = errors.New("token: insecure random source requires the insecure_rng build tag")

// Source yields uniformly distributed indexes in [0, n).
type Source interface {
	Intn(n int) (int, error)
}

// SecureSource returns a Source backed by crypto/rand.
func SecureSource() Source {
	return readerSource{r: rand.Reader}
}

type readerSource struct {
	r io.Reader
}

// Intn uses rejection sampling on single bytes so every index is equally
// likely for n <= 256.
func (s readerSource) Intn(n int) (int, error) {
	if n <= 0 || n > 256 {
		return 0, ErrInvalidAlphabet
	}
	limit := 256 - 256%n
	var buf [1]byte
	for {
		if _, err := io.ReadFull(s.r, buf[:]); err != nil {
			return 0, err
		}
		if int(buf[0]) < limit {
			return int(buf[0]) % n, nil
		}
	}
}
