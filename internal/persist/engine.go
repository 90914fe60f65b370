package persist

import (
	"fmt"
	"time"

	"github.com/dkit/dkit/internal/store"
	"github.com/dkit/dkit/pkg/config"
	"github.com/dkit/dkit/pkg/dkiterrors"
)

// recoveryState is the recovery orchestrator's state machine (spec.md
// §4.16): idle -> restoringSnapshot -> replayingWAL -> applied -> idle,
// or failed.
type recoveryState int

const (
	recoveryIdle recoveryState = iota
	recoveryRestoringSnapshot
	recoveryReplayingWAL
	recoveryApplied
	recoveryFailed
)

// Engine is a PersistContext: single-threaded cooperative ownership of
// one structure, its optional snapshot Store, and its optional WAL
// Store (spec.md §5). Nothing here spawns goroutines or timers; every
// blocking call is store.write/read/sync, called synchronously.
type Engine struct {
	cfg *config.Config
	ops Ops

	snapStore store.Store
	walStore  store.Store

	structure Structure

	nextSequence   uint64
	lastSyncTime   time.Time
	walInitialized bool
	walState       walState
	walBuffer      []byte

	recovery recoveryState

	stats Stats
}

// New creates an Engine for the given Ops registry and initial
// structure value (the zero value of whatever the caller's structure
// type is, before any restore).
func New(cfg *config.Config, ops Ops, initial Structure) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", dkiterrors.ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ops == nil {
		return nil, fmt.Errorf("%w: nil Ops registry", dkiterrors.ErrInvalidArgument)
	}
	return &Engine{
		cfg:          cfg,
		ops:          ops,
		structure:    initial,
		lastSyncTime: time.Now(),
	}, nil
}

// AttachStores wires the snapshot and/or WAL stores (either may be nil
// if that half of persistence is not used by the caller).
func (e *Engine) AttachStores(snapStore, walStore store.Store) {
	e.snapStore = snapStore
	e.walStore = walStore
}

// Structure returns the engine's current structure value.
func (e *Engine) Structure() Structure {
	return e.structure
}

// SetStructure replaces the engine's current structure value directly
// (used by callers constructing an in-memory structure before any
// snapshot exists).
func (e *Engine) SetStructure(s Structure) {
	e.structure = s
}

// Stats returns a copy of the engine's current statistics.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Recover runs restore-then-replay (spec.md §4.14): restore the
// snapshot if one exists, then replay the WAL. If ops supports a
// per-recovery scratch allocator, it is created before restore and
// freed after replay, never leaking across Recover calls or Engines.
func (e *Engine) Recover() error {
	e.recovery = recoveryRestoringSnapshot

	var scratch interface{}
	factory, hasScratch := e.ops.(ScratchFactory)
	if hasScratch {
		scratch = factory.NewScratch()
		defer factory.FreeScratch(scratch)
	}

	if e.snapStore != nil {
		if size, err := e.snapStore.Size(); err == nil && size > 0 {
			if err := e.ReadSnapshot(); err != nil {
				e.recovery = recoveryFailed
				return err
			}
		}
	}

	e.recovery = recoveryReplayingWAL
	if err := e.replayWAL(scratch); err != nil {
		e.recovery = recoveryFailed
		if f, ok := e.ops.(Freer); ok {
			f.Free(e.structure)
		}
		return err
	}

	e.recovery = recoveryApplied
	e.recovery = recoveryIdle
	return nil
}

// shouldCompact reports whether autoCompact is enabled and either the
// WAL has exceeded its configured maximum size, or its size relative
// to the snapshot has exceeded compactRatio (spec.md §4.14).
func (e *Engine) shouldCompact() bool {
	if !e.cfg.AutoCompact || e.walStore == nil {
		return false
	}
	walSize, err := e.walStore.Size()
	if err != nil {
		return false
	}
	if walSize > e.cfg.WALMaxSize {
		return true
	}
	if e.snapStore == nil {
		return false
	}
	snapSize, err := e.snapStore.Size()
	if err != nil || snapSize == 0 {
		return false
	}
	return float64(walSize) > e.cfg.CompactRatio*float64(snapSize)
}

// MaybeCompact calls Compact if shouldCompact reports true.
func (e *Engine) MaybeCompact() error {
	if e.shouldCompact() {
		return e.Compact()
	}
	return nil
}

// Compact snapshots the current structure (subsuming all prior WAL
// effects), truncates the WAL to a fresh header, and syncs both stores
// (spec.md §4.14). Compaction resets the WAL session state to fresh.
func (e *Engine) Compact() error {
	if err := e.WriteSnapshot(); err != nil {
		return err
	}
	if e.walStore != nil {
		if err := e.walStore.Seek(0); err != nil {
			return err
		}
		if err := e.walStore.Truncate(); err != nil {
			return err
		}
		h := walHeader{
			magic:         walMagic,
			version:       walVersion,
			structType:    e.ops.StructType(),
			startSequence: e.nextSequence,
		}
		if _, err := e.walStore.Write(encodeWALHeader(h)); err != nil {
			return err
		}
		if err := e.walStore.Sync(); err != nil {
			return err
		}
		e.walState = walFresh
		e.walInitialized = false
		e.walBuffer = e.walBuffer[:0]
	}
	if e.snapStore != nil {
		if err := e.snapStore.Sync(); err != nil {
			return err
		}
	}

	e.stats.CompactionCount++
	e.stats.LastCompactionTime = time.Now()
	return nil
}

// Close flushes and syncs the WAL (if any), transitioning it to
// closing.
func (e *Engine) Close() error {
	if err := e.CloseWAL(); err != nil {
		return err
	}
	if e.snapStore != nil {
		if err := e.snapStore.Close(); err != nil {
			return err
		}
	}
	if e.walStore != nil {
		if err := e.walStore.Close(); err != nil {
			return err
		}
	}
	return nil
}
