package ratelimit

import (
	"fmt"
	"time"
)

// Default limits.
const (
	DefaultWindow      = 60 * time.Second
	DefaultWindowLimit = 30
	DefaultBurstLimit  = 10
	DefaultCooldown    = 5 * time.Minute
)

// Config holds limiter thresholds.
type Config struct {
	// Window is the fixed window length.
	Window time.Duration
	// WindowLimit is the request ceiling per window.
	WindowLimit int
	// BurstLimit is the count within the current window that triggers a block.
	BurstLimit int
	// Cooldown is how long a burst block lasts.
	Cooldown time.Duration
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		Window:      DefaultWindow,
		WindowLimit: DefaultWindowLimit,
		BurstLimit:  DefaultBurstLimit,
		Cooldown:    DefaultCooldown,
	}
}

// Validate checks that all thresholds are positive.
func (c Config) Validate() error {
	switch {
	case c.Window <= 0:
		return fmt.Errorf("ratelimit: window must be positive, got %s", c.Window)
	case c.WindowLimit <= 0:
		return fmt.Errorf("ratelimit: window limit must be positive, got %d", c.WindowLimit)
	case c.BurstLimit <= 0:
		return fmt.Errorf("ratelimit: burst limit must be positive, got %d", c.BurstLimit)
	case c.Cooldown <= 0:
		return fmt.Errorf("ratelimit: cooldown must be positive, got %s", c.Cooldown)
	}
	return nil
}

// ceiling is the count at which the next request is refused.
func (c Config) ceiling() int {
	return min(c.WindowLimit, c.BurstLimit)
}
