package storage

import "time"

// Key prefixes.
const (
	guestPrefix = "g/"
	eventPrefix = "e/"
	campaignKey = "campaign"
)

// BadgerConfig contains Badger tuning parameters.
type BadgerConfig struct {
	// Dir is the storage directory.
	Dir string

	// GCInterval is the interval between automatic value-log GC runs.
	// Default: 10m
	GCInterval time.Duration

	// GCThreshold is the discard ratio passed to RunValueLogGC (0.0-1.0).
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 64MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 256MB
	ValueLogFileSize int64

	// NumMemtables is the number of memtables.
	// Default: 2
	NumMemtables int

	// SyncWrites fsyncs every commit. A completed RSVP must survive a crash.
	// Default: true
	SyncWrites bool

	// EventRetention is how long persisted security events are kept.
	// Default: 30 days
	EventRetention time.Duration

	// InMemory runs Badger without touching disk. Tests only.
	InMemory bool
}

// DefaultBadgerConfig returns the default configuration for dir.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:              dir,
		GCInterval:       10 * time.Minute,
		GCThreshold:      0.5,
		CacheSize:        64 << 20,  // 64MB
		ValueLogFileSize: 256 << 20, // 256MB
		NumMemtables:     2,
		SyncWrites:       true,
		EventRetention:   30 * 24 * time.Hour,
	}
}

// Stats contains storage statistics.
type Stats struct {
	LSMSize          int64
	ValueLogSize     int64
	LastGCTime       time.Time
	GCBytesReclaimed uint64
}

// TotalSize is the LSM plus value log size.
func (s Stats) TotalSize() int64 {
	return s.LSMSize + s.ValueLogSize
}
