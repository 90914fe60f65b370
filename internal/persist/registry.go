// Package persist implements the pluggable snapshot+WAL persistence
// engine (spec.md §4.11-§4.17): a Store-backed snapshot file, a
// Store-backed write-ahead log, a recovery/compaction orchestrator, and
// a structure-operations registry that lets any structure type plug
// into all three without the engine knowing its internal shape.
package persist

import (
	"time"

	"github.com/dkit/dkit/pkg/dkittypes"
)

// Structure is the opaque payload the engine persists. Concrete
// structure types (see internal/structures) are plain Go values or
// pointers; the Ops implementation registered for a given structType is
// the only code that type-asserts them back to something concrete.
type Structure = interface{}

// Ops is the structure-operations registry every persistable type
// supplies (spec.md §4.15). The engine calls only these hooks; it never
// inspects a Structure's fields directly.
type Ops interface {
	// StructType identifies the structure kind on the wire.
	StructType() uint32

	// Snapshot serializes s to its full on-disk representation.
	Snapshot(s Structure) ([]byte, error)

	// Restore is Snapshot's inverse, producing a fresh Structure.
	Restore(data []byte) (Structure, error)

	// Count and EstimateSize back engine statistics and compaction
	// heuristics.
	Count(s Structure) int
	EstimateSize(s Structure) int

	// EncodeOp serializes a single operation's payload for the WAL.
	EncodeOp(op dkittypes.Operation, args []byte) ([]byte, error)

	// ApplyOp applies a decoded WAL entry to s, returning the
	// (possibly different) resulting Structure: an implementation may
	// mutate s in place and return it, or replace it outright.
	ApplyOp(s Structure, op dkittypes.Operation, payload []byte) (Structure, error)
}

// Validator is an optional Ops extension: a structure type that needs
// post-restore validation implements it.
type Validator interface {
	Validate(s Structure) error
}

// Freer is an optional Ops extension for structure types that hold
// resources needing explicit cleanup on validation failure or compact
// (file handles, pooled buffers). Most structures need no Freer.
type Freer interface {
	Free(s Structure)
}

// ScratchFactory is an optional Ops extension for structure types whose
// ApplyOp amortizes allocation via a per-recovery scratch arena
// (spec.md §5's "replay scratch state"). Unlike the abstract spec,
// the scratch value here is an explicit argument threaded through
// Recover rather than a package-level thread-local, so two Engines
// recovering concurrently never share one.
type ScratchFactory interface {
	NewScratch() interface{}
	FreeScratch(scratch interface{})
}

// ScratchOps is the scratch-aware counterpart to ApplyOp. An Ops that
// also implements ScratchFactory should implement this too.
type ScratchOps interface {
	ApplyOpScratch(s Structure, op dkittypes.Operation, payload []byte, scratch interface{}) (Structure, error)
}

// Stats mirrors the engine's externally observable statistics
// (spec.md §4.12-§4.14).
type Stats struct {
	SnapshotCount        int64
	SnapshotBytes        int64
	LastSnapshotTime     time.Time
	LastSnapshotDuration time.Duration

	WALEntries       int64
	EntriesRecovered int64
	EntriesSkipped   int64

	CompactionCount    int64
	LastCompactionTime time.Time
}
