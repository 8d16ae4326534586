package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/yndnr/rsvpguard/internal/infra/tlsroots"
)

// Default server timeouts.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
)

// Config configures the Server.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// KeyPair enables TLS. Nil serves plain HTTP.
	KeyPair *tlsroots.KeyPair
}

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	keyPair    *tlsroots.KeyPair
	logger     *slog.Logger
}

// New creates a new HTTP server.
func New(cfg Config, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	hs := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	if cfg.KeyPair != nil {
		hs.TLSConfig = cfg.KeyPair.ServerConfig()
	}
	return &Server{httpServer: hs, keyPair: cfg.KeyPair, logger: logger}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// TLS reports whether the server terminates TLS.
func (s *Server) TLS() bool {
	return s.keyPair != nil
}

// ListenAndServe listens on the configured address and serves until
// Shutdown. It returns nil after a graceful shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln, wrapping it in TLS when a key pair is configured.
func (s *Server) Serve(ln net.Listener) error {
	if s.keyPair != nil {
		ln = tls.NewListener(ln, s.httpServer.TLSConfig)
	}
	s.logger.Info("http server listening", "addr", ln.Addr().String(), "tls", s.keyPair != nil)
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
