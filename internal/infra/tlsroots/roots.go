package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// ErrNoCertsFound is returned for a CA bundle without certificates.
var ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM data")

// Roots returns the system pool extended with the certificates in caFile.
// An empty caFile returns the system pool alone.
func Roots(caFile string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if caFile == "" {
		return pool, nil
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("tlsroots: read %s: %w", caFile, err)
	}
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("tlsroots: %s: %w", caFile, ErrNoCertsFound)
	}
	return pool, nil
}

// ClientConfig returns a TLS 1.2+ client config trusting Roots(caFile).
func ClientConfig(caFile string, insecureSkipVerify bool) (*tls.Config, error) {
	pool, err := Roots(caFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		RootCAs:            pool,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecureSkipVerify, //nolint:gosec // explicit operator flag
	}, nil
}
