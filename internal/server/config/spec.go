package config

import "time"

// ServerConfig is the root configuration for rsvpguard-server.
type ServerConfig struct {
	Server    ServerSection    `koanf:"server" yaml:"server"`
	Storage   StorageSection   `koanf:"storage" yaml:"storage"`
	Token     TokenSection     `koanf:"token" yaml:"token"`
	RateLimit RateLimitSection `koanf:"ratelimit" yaml:"ratelimit"`
	Redis     RedisSection     `koanf:"redis" yaml:"redis"`
	Security  SecuritySection  `koanf:"security" yaml:"security"`
	Backup    BackupSection    `koanf:"backup" yaml:"backup"`
	Log       LogSection       `koanf:"log" yaml:"log"`
}

// ServerSection configures listeners.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http" yaml:"http"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr         string        `koanf:"addr" yaml:"addr"`
	TLSCertFile  string        `koanf:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile   string        `koanf:"tls_key_file" yaml:"tls_key_file"`
	ReadTimeout  time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
	// GlobalRPS and GlobalBurst throttle the whole server ahead of the
	// per-identifier limiter. Zero GlobalRPS disables the throttle.
	GlobalRPS    float64 `koanf:"global_rps" yaml:"global_rps"`
	GlobalBurst  int     `koanf:"global_burst" yaml:"global_burst"`
	MaxBodyBytes int64   `koanf:"max_body_bytes" yaml:"max_body_bytes"`
	// TrustedProxies lists the reverse proxies (IPs or CIDRs) whose
	// X-Forwarded-For and X-Real-IP headers are believed. Empty means the
	// client identifier is always the peer address.
	TrustedProxies []string `koanf:"trusted_proxies" yaml:"trusted_proxies"`
	// AdminAllowList restricts /admin routes to these IPs or CIDRs. Empty
	// means no network restriction.
	AdminAllowList []string `koanf:"admin_allow_list" yaml:"admin_allow_list"`
	// MetricsRequireAuth puts /metrics behind the admin key.
	MetricsRequireAuth bool `koanf:"metrics_require_auth" yaml:"metrics_require_auth"`
}

// StorageSection configures the guest store.
type StorageSection struct {
	// Engine is "badger" or "memory".
	Engine         string        `koanf:"engine" yaml:"engine"`
	DataDir        string        `koanf:"data_dir" yaml:"data_dir"`
	GCInterval     time.Duration `koanf:"gc_interval" yaml:"gc_interval"`
	SyncWrites     bool          `koanf:"sync_writes" yaml:"sync_writes"`
	EventRetention time.Duration `koanf:"event_retention" yaml:"event_retention"`
}

// TokenSection configures the token codec.
type TokenSection struct {
	Length       int    `koanf:"length" yaml:"length"`
	Alphabet     string `koanf:"alphabet" yaml:"alphabet"`
	Prefix       string `koanf:"prefix" yaml:"prefix"`
	Suffix       string `koanf:"suffix" yaml:"suffix"`
	ChecksumSeed uint32 `koanf:"checksum_seed" yaml:"checksum_seed"`
}

// RateLimitSection configures the per-identifier limiter.
type RateLimitSection struct {
	Window          time.Duration `koanf:"window" yaml:"window"`
	WindowLimit     int           `koanf:"window_limit" yaml:"window_limit"`
	BurstLimit      int           `koanf:"burst_limit" yaml:"burst_limit"`
	Cooldown        time.Duration `koanf:"cooldown" yaml:"cooldown"`
	CleanupInterval time.Duration `koanf:"cleanup_interval" yaml:"cleanup_interval"`
	// Store is "memory" or "redis".
	Store string `koanf:"store" yaml:"store"`
}

// RedisSection configures the shared Redis used by redis-backed stores.
type RedisSection struct {
	URL       string `koanf:"url" yaml:"url"`
	KeyPrefix string `koanf:"key_prefix" yaml:"key_prefix"`
}

// SecuritySection configures detection, the block list and admin access.
// The detection fields are reloaded at runtime when the file changes.
type SecuritySection struct {
	AdminKey       string `koanf:"admin_key" yaml:"admin_key"`
	EventCapacity  int    `koanf:"event_capacity" yaml:"event_capacity"`
	BlockListStore string `koanf:"blocklist_store" yaml:"blocklist_store"`

	AllowedOrigins         []string `koanf:"allowed_origins" yaml:"allowed_origins"`
	AllowInsecureLocalhost bool     `koanf:"allow_insecure_localhost" yaml:"allow_insecure_localhost"`
	BotUserAgents          []string `koanf:"bot_user_agents" yaml:"bot_user_agents"`
	ExploitUserAgents      []string `koanf:"exploit_user_agents" yaml:"exploit_user_agents"`
	MinUserAgentLength     int      `koanf:"min_user_agent_length" yaml:"min_user_agent_length"`

	RapidRequestThreshold int           `koanf:"rapid_request_threshold" yaml:"rapid_request_threshold"`
	RapidRequestWindow    time.Duration `koanf:"rapid_request_window" yaml:"rapid_request_window"`
	EnumerationThreshold  int           `koanf:"enumeration_threshold" yaml:"enumeration_threshold"`
	EnumerationWindow     time.Duration `koanf:"enumeration_window" yaml:"enumeration_window"`
}

// BackupSection configures backups.
type BackupSection struct {
	Dir string `koanf:"dir" yaml:"dir"`
	// Secret seeds the backup master key. Required when Encrypt is set.
	Secret        string        `koanf:"secret" yaml:"secret"`
	Algorithm     string        `koanf:"algorithm" yaml:"algorithm"`
	Encrypt       bool          `koanf:"encrypt" yaml:"encrypt"`
	Compress      bool          `koanf:"compress" yaml:"compress"`
	Interval      time.Duration `koanf:"interval" yaml:"interval"`
	RetentionDays int           `koanf:"retention_days" yaml:"retention_days"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}
