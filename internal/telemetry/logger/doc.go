// Package logger provides structured logging for rsvpguard.
//
// It wraps log/slog:
//
//   - logger.go: handler construction and the shared dynamic level
//   - context.go: request id and client identifier propagation
//   - redact.go: sensitive attribute masking
//
// Guest tokens are replaced by a short SHA-256 fingerprint; secrets and admin
// keys are replaced by a fixed placeholder.
package logger
