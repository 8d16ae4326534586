package config

import (
	"github.com/yndnr/rsvpguard/internal/backup"
	"github.com/yndnr/rsvpguard/internal/ratelimit"
	"github.com/yndnr/rsvpguard/internal/security"
	"github.com/yndnr/rsvpguard/internal/storage"
	"github.com/yndnr/rsvpguard/internal/telemetry/logger"
	"github.com/yndnr/rsvpguard/pkg/token"
)

// TokenOptions returns the codec options.
func (c *ServerConfig) TokenOptions() token.Options {
	return tokenOptions(&c.Token)
}

func tokenOptions(t *TokenSection) token.Options {
	return token.Options{
		Length:       t.Length,
		Alphabet:     t.Alphabet,
		Prefix:       t.Prefix,
		Suffix:       t.Suffix,
		ChecksumSeed: t.ChecksumSeed,
	}
}

// RateLimitConfig returns the limiter thresholds.
func (c *ServerConfig) RateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		Window:      c.RateLimit.Window,
		WindowLimit: c.RateLimit.WindowLimit,
		BurstLimit:  c.RateLimit.BurstLimit,
		Cooldown:    c.RateLimit.Cooldown,
	}
}

// Policy returns the detection policy.
func (c *ServerConfig) Policy() security.Policy {
	s := &c.Security
	return security.Policy{
		AllowedOrigins:         append([]string(nil), s.AllowedOrigins...),
		AllowInsecureLocalhost: s.AllowInsecureLocalhost,
		BotUserAgents:          append([]string(nil), s.BotUserAgents...),
		ExploitUserAgents:      append([]string(nil), s.ExploitUserAgents...),
		MinUserAgentLength:     s.MinUserAgentLength,
		RapidRequestThreshold:  s.RapidRequestThreshold,
		RapidRequestWindow:     s.RapidRequestWindow,
		EnumerationThreshold:   s.EnumerationThreshold,
		EnumerationWindow:      s.EnumerationWindow,
	}
}

// BadgerConfig returns the Badger store settings.
func (c *ServerConfig) BadgerConfig() storage.BadgerConfig {
	return storage.BadgerConfig{
		Dir:            c.Storage.DataDir,
		GCInterval:     c.Storage.GCInterval,
		SyncWrites:     c.Storage.SyncWrites,
		EventRetention: c.Storage.EventRetention,
	}
}

// BackupConfig returns the backup service settings.
func (c *ServerConfig) BackupConfig() backup.Config {
	var secret []byte
	if c.Backup.Secret != "" {
		secret = []byte(c.Backup.Secret)
	}
	return backup.Config{
		Dir:           c.Backup.Dir,
		Secret:        secret,
		Algorithm:     c.Backup.Algorithm,
		Encrypt:       c.Backup.Encrypt,
		Compress:      c.Backup.Compress,
		RetentionDays: c.Backup.RetentionDays,
	}
}

// LoggerConfig returns the logger settings.
func (c *ServerConfig) LoggerConfig() logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = c.Log.Level
	lc.Format = c.Log.Format
	return lc
}
