// Package config holds the plain configuration record consumed by the
// persistence engine, following the teacher's DefaultConfig/MemoryConfig/
// DiskConfig constructor-function pattern (pkg/config in thirawat27/kvi).
package config

import "github.com/dkit/dkit/pkg/dkittypes"

// SyncMode selects how aggressively the WAL calls fsync (spec.md §4.13).
type SyncMode int

const (
	SyncAlways SyncMode = iota
	SyncEverySec
	SyncNone
)

// CompressionKind selects the snapshot body compression. "none" is the
// only kind spec.md requires; "zstd" is an optional enrichment grounded
// on the teacher's columnar zstd usage (see SPEC_FULL.md §5).
type CompressionKind int

const (
	CompressionNone CompressionKind = iota
	CompressionZstd
)

const (
	// DefaultWALMaxSize is the default WAL-size compaction trigger (64 MiB).
	DefaultWALMaxSize = 64 << 20
	// DefaultWALBufferSize is the default in-memory WAL write buffer (64 KiB).
	DefaultWALBufferSize = 64 << 10
	// DefaultCompactRatio is the default walSize/snapSize compaction trigger.
	DefaultCompactRatio = 2.0
)

// Config is the plain record from spec.md §6.
type Config struct {
	CompressionKind  CompressionKind
	CompressionLevel int

	ChecksumAlgo dkittypes.ChecksumAlgo
	SyncMode     SyncMode

	WALMaxSize    int64
	WALBufferSize int

	AutoCompact   bool
	CompactRatio  float64
	StrictRecovery bool

	// DataDir, SnapshotPath and WALPath are not named by spec.md but are
	// needed to open the two file Stores a disk-backed PersistContext
	// wants; purely a convenience for callers wiring os-file stores.
	DataDir      string
	SnapshotPath string
	WALPath      string
}

// DefaultConfig matches the teacher's config.DefaultConfig(): sane
// defaults for a checksummed, auto-compacting engine. It sets DataDir but
// no SnapshotPath or WALPath, so dkit.Open with it uses in-memory stores.
func DefaultConfig() *Config {
	return &Config{
		CompressionKind: CompressionNone,
		ChecksumAlgo:    dkittypes.Algo64,
		SyncMode:        SyncEverySec,
		WALMaxSize:      DefaultWALMaxSize,
		WALBufferSize:   DefaultWALBufferSize,
		AutoCompact:     true,
		CompactRatio:    DefaultCompactRatio,
		StrictRecovery:  false,
		DataDir:         "./data",
	}
}

// MemoryConfig mirrors config.MemoryConfig(): no durability, everything
// lives in the memory Store.
func MemoryConfig() *Config {
	cfg := DefaultConfig()
	cfg.SyncMode = SyncNone
	cfg.AutoCompact = false
	return cfg
}

// DiskConfig mirrors config.DiskConfig(): durable, strict-off (lenient)
// recovery by default, matching the teacher's non-strict posture.
func DiskConfig(dataDir string) *Config {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir
	cfg.SnapshotPath = dataDir + "/snapshot.dk"
	cfg.WALPath = dataDir + "/wal.log"
	return cfg
}

// Validate checks the handful of invariants the engine relies on, the way
// the teacher's cfg.Validate() gate in engine.NewEngine does.
func (c *Config) Validate() error {
	if c.WALMaxSize <= 0 {
		c.WALMaxSize = DefaultWALMaxSize
	}
	if c.WALBufferSize <= 0 {
		c.WALBufferSize = DefaultWALBufferSize
	}
	if c.CompactRatio <= 0 {
		c.CompactRatio = DefaultCompactRatio
	}
	return nil
}
