//go:build insecure_rng

package token

import (
	"math/rand/v2"
	"sync"
)

// InsecureSource returns a deterministic PCG source seeded with seed.
// It exists for reproducible tests and is only compiled with the
// insecure_rng build tag.
func InsecureSource(seed uint64) (Source, error) {
	return &pcgSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}, nil
}

type pcgSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (s *pcgSource) Intn(n int) (int, error) {
	if n <= 0 {
		return 0, ErrInvalidAlphabet
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n), nil
}
