// Package ratelimit implements per-identifier admission control.
//
// Each identifier owns one fixed window with a request ceiling. A separate
// burst ceiling is checked against the same window's count; crossing it
// blocks the identifier for a cooldown that outlives the window reset.
//
// Window state lives behind the WindowStore interface. MemoryStore keeps
// one independently locked window per identifier in a sharded map;
// RedisStore evaluates the same algorithm atomically in a Lua script so
// several server instances share limits.
package ratelimit
