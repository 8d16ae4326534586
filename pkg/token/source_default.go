//go:build !insecure_rng

package token

// InsecureSource is unavailable unless the binary is built with the
// insecure_rng tag.
func InsecureSource(seed uint64) (Source, error) {
	return nil, ErrInsecureSource
}
