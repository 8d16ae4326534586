package config

import (
	"time"

	"github.com/yndnr/rsvpguard/internal/backup"
	"github.com/yndnr/rsvpguard/internal/ratelimit"
	"github.com/yndnr/rsvpguard/internal/security"
	"github.com/yndnr/rsvpguard/pkg/token"
)

// Default configuration values.
const (
	DefaultHTTPAddr     = "127.0.0.1:5080"
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultGlobalRPS    = 500
	DefaultGlobalBurst  = 1000
	DefaultMaxBodyBytes = 8 << 20

	EngineBadger = "badger"
	EngineMemory = "memory"
	StoreMemory  = "memory"
	StoreRedis   = "redis"

	DefaultDataDir         = "/var/lib/rsvpguard/data"
	DefaultGCInterval      = 10 * time.Minute
	DefaultEventRetention  = 30 * 24 * time.Hour
	DefaultCleanupInterval = time.Minute

	DefaultRedisKeyPrefix = "rsvpguard:"

	DefaultBackupDir      = "/var/lib/rsvpguard/backups"
	DefaultBackupInterval = 24 * time.Hour

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	p := security.DefaultPolicy()
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:         DefaultHTTPAddr,
				ReadTimeout:  DefaultReadTimeout,
				WriteTimeout: DefaultWriteTimeout,
				GlobalRPS:    DefaultGlobalRPS,
				GlobalBurst:  DefaultGlobalBurst,
				MaxBodyBytes: DefaultMaxBodyBytes,
			},
		},
		Storage: StorageSection{
			Engine:         EngineBadger,
			DataDir:        DefaultDataDir,
			GCInterval:     DefaultGCInterval,
			SyncWrites:     true,
			EventRetention: DefaultEventRetention,
		},
		Token: TokenSection{
			Length:   token.DefaultLength,
			Alphabet: token.DefaultAlphabet,
		},
		RateLimit: RateLimitSection{
			Window:          ratelimit.DefaultWindow,
			WindowLimit:     ratelimit.DefaultWindowLimit,
			BurstLimit:      ratelimit.DefaultBurstLimit,
			Cooldown:        ratelimit.DefaultCooldown,
			CleanupInterval: DefaultCleanupInterval,
			Store:           StoreMemory,
		},
		Redis: RedisSection{
			KeyPrefix: DefaultRedisKeyPrefix,
		},
		Security: SecuritySection{
			EventCapacity:         security.DefaultEventCapacity,
			BlockListStore:        StoreMemory,
			BotUserAgents:         p.BotUserAgents,
			ExploitUserAgents:     p.ExploitUserAgents,
			MinUserAgentLength:    p.MinUserAgentLength,
			RapidRequestThreshold: p.RapidRequestThreshold,
			RapidRequestWindow:    p.RapidRequestWindow,
			EnumerationThreshold:  p.EnumerationThreshold,
			EnumerationWindow:     p.EnumerationWindow,
		},
		Backup: BackupSection{
			Dir:           DefaultBackupDir,
			Algorithm:     string(backup.AlgorithmAESGCM),
			Compress:      true,
			Interval:      DefaultBackupInterval,
			RetentionDays: backup.DefaultRetentionDays,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
