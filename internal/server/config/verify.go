package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/yndnr/rsvpguard/internal/backup"
	"github.com/yndnr/rsvpguard/pkg/token"
)

// Verify validates cfg and reports every problem at once.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifyStorage(&cfg.Storage),
		verifyToken(&cfg.Token),
		verifyRateLimit(cfg),
		verifySecurity(cfg),
		verifyBackup(&cfg.Backup),
		verifyLog(&cfg.Log),
	)
}

func verifyServer(cfg *ServerSection) error {
	var errs []error
	h := &cfg.HTTP
	if _, _, err := net.SplitHostPort(h.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.http.addr %q: %w", h.Addr, err))
	}
	if (h.TLSCertFile == "") != (h.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.http.tls_cert_file and tls_key_file must be set together"))
	}
	for _, f := range []string{h.TLSCertFile, h.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			errs = append(errs, fmt.Errorf("server.http tls file: %w", err))
		}
	}
	if h.GlobalRPS < 0 {
		errs = append(errs, errors.New("server.http.global_rps must not be negative"))
	}
	if h.GlobalRPS > 0 && h.GlobalBurst <= 0 {
		errs = append(errs, errors.New("server.http.global_burst must be positive when global_rps is set"))
	}
	if h.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.http.max_body_bytes must be positive"))
	}
	errs = append(errs, verifyNetworks("server.http.admin_allow_list", h.AdminAllowList)...)
	errs = append(errs, verifyNetworks("server.http.trusted_proxies", h.TrustedProxies)...)
	return errors.Join(errs...)
}

func verifyNetworks(field string, entries []string) []error {
	var errs []error
	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", field, err))
			}
		} else if net.ParseIP(entry) == nil {
			errs = append(errs, fmt.Errorf("%s: invalid IP %q", field, entry))
		}
	}
	return errs
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Engine {
	case EngineMemory:
		return nil
	case EngineBadger:
		if cfg.DataDir == "" {
			return errors.New("storage.data_dir is required for the badger engine")
		}
		return nil
	}
	return fmt.Errorf("storage.engine %q: want %q or %q", cfg.Engine, EngineBadger, EngineMemory)
}

func verifyToken(cfg *TokenSection) error {
	if _, err := token.New(tokenOptions(cfg)); err != nil {
		return fmt.Errorf("token: %w", err)
	}
	return nil
}

func verifyRateLimit(cfg *ServerConfig) error {
	var errs []error
	if err := cfg.RateLimitConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.RateLimit.CleanupInterval <= 0 {
		errs = append(errs, errors.New("ratelimit.cleanup_interval must be positive"))
	}
	if err := verifyStore("ratelimit.store", cfg.RateLimit.Store, &cfg.Redis); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func verifySecurity(cfg *ServerConfig) error {
	var errs []error
	s := &cfg.Security
	if s.EventCapacity <= 0 {
		errs = append(errs, errors.New("security.event_capacity must be positive"))
	}
	if s.AdminKey != "" && len(s.AdminKey) < 16 {
		errs = append(errs, errors.New("security.admin_key must be at least 16 characters"))
	}
	if s.RapidRequestThreshold <= 0 || s.EnumerationThreshold <= 0 {
		errs = append(errs, errors.New("security analyzer thresholds must be positive"))
	}
	if s.RapidRequestWindow <= 0 || s.EnumerationWindow <= 0 {
		errs = append(errs, errors.New("security analyzer windows must be positive"))
	}
	if err := verifyStore("security.blocklist_store", s.BlockListStore, &cfg.Redis); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func verifyStore(field, store string, redis *RedisSection) error {
	switch store {
	case StoreMemory:
		return nil
	case StoreRedis:
		if redis.URL == "" {
			return fmt.Errorf("%s is %q but redis.url is empty", field, StoreRedis)
		}
		u, err := url.Parse(redis.URL)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			return fmt.Errorf("redis.url must be a redis:// or rediss:// URL")
		}
		return nil
	}
	return fmt.Errorf("%s %q: want %q or %q", field, store, StoreMemory, StoreRedis)
}

func verifyBackup(cfg *BackupSection) error {
	var errs []error
	if cfg.Dir == "" {
		errs = append(errs, errors.New("backup.dir is required"))
	}
	if _, err := backup.ParseAlgorithm(cfg.Algorithm); err != nil {
		errs = append(errs, err)
	}
	if cfg.Encrypt && cfg.Secret == "" {
		errs = append(errs, errors.New("backup.encrypt requires backup.secret"))
	}
	if cfg.Secret != "" && len(cfg.Secret) < backup.MinSecretLength {
		errs = append(errs, fmt.Errorf("backup.secret must be at least %d characters", backup.MinSecretLength))
	}
	if cfg.Interval < 0 {
		errs = append(errs, errors.New("backup.interval must not be negative"))
	}
	if cfg.RetentionDays < 0 {
		errs = append(errs, errors.New("backup.retention_days must not be negative"))
	}
	return errors.Join(errs...)
}

func verifyLog(cfg *LogSection) error {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q: want debug, info, warn or error", cfg.Level)
	}
	switch cfg.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q: want json or text", cfg.Format)
	}
	return nil
}
