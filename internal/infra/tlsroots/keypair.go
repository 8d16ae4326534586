package tlsroots

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/yndnr/rsvpguard/internal/infra/confloader"
)

// KeyPair holds the server certificate and swaps it on reload.
type KeyPair struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	cert     atomic.Pointer[tls.Certificate]
}

// LoadKeyPair loads certFile and keyFile.
func LoadKeyPair(certFile, keyFile string, logger *slog.Logger) (*KeyPair, error) {
	if logger == nil {
		logger = slog.Default()
	}
	kp := &KeyPair{certFile: certFile, keyFile: keyFile, logger: logger}
	if err := kp.Reload(); err != nil {
		return nil, err
	}
	return kp, nil
}

// Reload re-reads both files. On failure the previous certificate stays.
func (kp *KeyPair) Reload() error {
	cert, err := tls.LoadX509KeyPair(kp.certFile, kp.keyFile)
	if err != nil {
		return fmt.Errorf("tlsroots: load key pair: %w", err)
	}
	kp.cert.Store(&cert)
	return nil
}

// Watch reloads the pair whenever w reports a change to either file.
func (kp *KeyPair) Watch(w *confloader.Watcher) error {
	reload := func() {
		if err := kp.Reload(); err != nil {
			kp.logger.Error("certificate reload failed", "cert_file", kp.certFile, "error", err)
			return
		}
		kp.logger.Info("certificate reloaded", "cert_file", kp.certFile)
	}
	if err := w.WatchFile(kp.certFile, reload); err != nil {
		return err
	}
	if kp.keyFile != kp.certFile {
		return w.WatchFile(kp.keyFile, reload)
	}
	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (kp *KeyPair) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return kp.cert.Load(), nil
}

// ServerConfig returns a TLS 1.2+ server config backed by kp.
func (kp *KeyPair) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: kp.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}
