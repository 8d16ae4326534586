package logger

import (
	"log/slog"
	"strings"

	"github.com/yndnr/rsvpguard/pkg/token"
)

// Keys whose values are replaced outright.
var sensitiveKeyPatterns = []string{
	"password",
	"passphrase",
	"secret",
	"admin_key",
	"api_key",
	"credential",
	"authorization",
	"bearer",
}

// Keys that carry digests and are safe to log as-is.
var safeKeySuffixes = []string{
	"fingerprint",
	"checksum",
	"_hash",
}

const redactedValue = "***REDACTED***"

// redactSensitive masks guest tokens and secrets.
func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	if a.Value.Kind() != slog.KindString {
		return a
	}

	val := a.Value.String()
	if val == "" {
		return a
	}
	switch {
	case isSafeKey(a.Key):
		return a
	case IsSensitiveKey(a.Key):
		return slog.String(a.Key, redactedValue)
	case isTokenKey(a.Key):
		return slog.String(a.Key, RedactToken(val))
	}
	return a
}

// RedactToken replaces a guest token with a short fingerprint so log lines
// can still be correlated.
func RedactToken(value string) string {
	if value == "" {
		return ""
	}
	return "sha256:" + token.ShortFingerprint(value)
}

// IsSensitiveKey reports whether a key names a secret.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(k, pattern) {
			return true
		}
	}
	return false
}

func isTokenKey(key string) bool {
	k := strings.ToLower(key)
	return k == "token" || strings.HasSuffix(k, "_token") || strings.HasPrefix(k, "token_")
}

func isSafeKey(key string) bool {
	k := strings.ToLower(key)
	for _, suffix := range safeKeySuffixes {
		if strings.HasSuffix(k, suffix) {
			return true
		}
	}
	return false
}
