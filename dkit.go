// Package dkit is the top-level facade over the integer codec library
// (internal/codec/...) and the pluggable persistence engine
// (internal/persist, internal/store). Open mirrors kvi.Open/OpenMemory/
// OpenDisk but is parameterized by a registered persist.Ops rather than
// a hardcoded record type: there is no single fixed-shape value at this
// layer, so callers interact with their structure through the registry
// instead of Put/Get-style convenience wrappers.
package dkit

import (
	"fmt"
	"os"

	"github.com/dkit/dkit/internal/persist"
	"github.com/dkit/dkit/internal/store"
	"github.com/dkit/dkit/pkg/config"
	"github.com/dkit/dkit/pkg/dkiterrors"
)

// Version is the current module version.
const Version = "0.1.0"

// Open creates the Store(s) named by cfg, constructs an Engine around
// ops and initial, attaches the stores, and runs recovery. A cfg with an
// empty SnapshotPath and WALPath opens purely in-memory stores (no
// durability), whatever its DataDir; otherwise DataDir (if set) is
// created, each named path opens an os-file-backed store, and an unnamed
// one falls back to an in-memory store.
func Open(cfg *config.Config, ops persist.Ops, initial persist.Structure) (*persist.Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	eng, err := persist.New(cfg, ops, initial)
	if err != nil {
		return nil, err
	}

	snapStore, walStore, err := openStores(cfg)
	if err != nil {
		return nil, err
	}
	eng.AttachStores(snapStore, walStore)

	if err := eng.Recover(); err != nil {
		return nil, fmt.Errorf("%w: recovering engine: %v", dkiterrors.ErrIOError, err)
	}
	return eng, nil
}

// OpenMemory opens an Engine backed entirely by in-memory Stores: no
// data survives process exit.
func OpenMemory(ops persist.Ops, initial persist.Structure) (*persist.Engine, error) {
	return Open(config.MemoryConfig(), ops, initial)
}

// OpenDisk opens an Engine whose snapshot and WAL live under dataDir.
func OpenDisk(dataDir string, ops persist.Ops, initial persist.Structure) (*persist.Engine, error) {
	return Open(config.DiskConfig(dataDir), ops, initial)
}

func openStores(cfg *config.Config) (snapStore, walStore store.Store, err error) {
	if cfg.SnapshotPath == "" && cfg.WALPath == "" {
		return store.NewMemory(), store.NewMemory(), nil
	}

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, nil, fmt.Errorf("%w: creating data dir %q: %v", dkiterrors.ErrIOError, cfg.DataDir, err)
		}
	}

	if cfg.SnapshotPath != "" {
		snapStore, err = store.OpenFile(cfg.SnapshotPath)
		if err != nil {
			return nil, nil, err
		}
	} else {
		snapStore = store.NewMemory()
	}

	if cfg.WALPath != "" {
		walStore, err = store.OpenFile(cfg.WALPath)
		if err != nil {
			return nil, nil, err
		}
	} else {
		walStore = store.NewMemory()
	}
	return snapStore, walStore, nil
}
