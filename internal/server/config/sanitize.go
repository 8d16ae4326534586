package config

import (
	"net/url"
	"strings"
)

// Sanitize returns a copy of cfg with secrets masked, for logging.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	if sanitized.Security.AdminKey != "" {
		sanitized.Security.AdminKey = maskSecret(sanitized.Security.AdminKey)
	}
	if sanitized.Backup.Secret != "" {
		sanitized.Backup.Secret = maskSecret(sanitized.Backup.Secret)
	}
	sanitized.Redis.URL = maskURLPassword(sanitized.Redis.URL)
	return &sanitized
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func maskURLPassword(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "****"
	}
	return u.Redacted()
}
