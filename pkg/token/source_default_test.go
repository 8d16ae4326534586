//go:build !insecure_rng

package token

import (
	"errors"
	"testing"
)

func TestInsecureSource_UnavailableByDefault(t *testing.T) {
	src, err := InsecureSource(42)
	if !errors.Is(err, ErrInsecureSource) {
		t.Fatalf("InsecureSource() error = %v, want %v", err, ErrInsecureSource)
	}
	if src != nil {
		t.Errorf("InsecureSource() = %v, want nil", src)
	}
}
