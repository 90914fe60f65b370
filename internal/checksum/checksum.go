// Package checksum implements the unified hash interface over the 32/64/
// 128-bit algorithms dkit uses for snapshot and WAL integrity (spec.md
// §4.1). The teacher leans on hash/crc32 everywhere (wal.LogEntry.Checksum,
// engine.calculateChecksum, columnar.Block.Checksum); this package keeps
// CRC32 as the 32-bit algorithm for that reason and adds real 64- and
// 128-bit hashes from the retrieval pack's dependency surface (see
// SPEC_FULL.md §2).
package checksum

import (
	"fmt"
	"hash/crc32"

	"github.com/cespare/xxhash/v2"
	"github.com/twmb/murmur3"

	"github.com/dkit/dkit/pkg/dkiterrors"
	"github.com/dkit/dkit/pkg/dkittypes"
)

var (
	errInvalidAlgo = fmt.Errorf("%w: unrecognized checksum algorithm", dkiterrors.ErrInvalidArgument)
	errShortBuffer = fmt.Errorf("%w: buffer shorter than digest length", dkiterrors.ErrCorruptHeader)
)

// Value is a tagged union over {none, 32-bit, 64-bit, 128-bit}, carrying
// the algorithm, the digest length, and the raw bytes (spec.md §3).
type Value struct {
	Algo dkittypes.ChecksumAlgo
	Len  int
	Data [16]byte
}

// Compute hashes data with the given algorithm. AlgoNone always yields a
// zero-length Value; an unrecognized algorithm (e.g. the source's inert
// PERSIST_CHECKSUM_CRC32C constant, see SPEC_FULL.md §5) is rejected
// rather than silently aliased to another slot.
func Compute(algo dkittypes.ChecksumAlgo, data []byte) (Value, error) {
	var v Value
	v.Algo = algo

	switch algo {
	case dkittypes.AlgoNone:
		return v, nil
	case dkittypes.Algo32:
		sum := crc32.ChecksumIEEE(data)
		v.Len = 4
		v.Data[0] = byte(sum)
		v.Data[1] = byte(sum >> 8)
		v.Data[2] = byte(sum >> 16)
		v.Data[3] = byte(sum >> 24)
		return v, nil
	case dkittypes.Algo64:
		sum := xxhash.Sum64(data)
		v.Len = 8
		for i := 0; i < 8; i++ {
			v.Data[i] = byte(sum >> (8 * i))
		}
		return v, nil
	case dkittypes.Algo128:
		hi, lo := murmur3.Sum128(data)
		v.Len = 16
		for i := 0; i < 8; i++ {
			v.Data[i] = byte(lo >> (8 * i))
			v.Data[8+i] = byte(hi >> (8 * i))
		}
		return v, nil
	default:
		return Value{}, errInvalidAlgo
	}
}

// Equal reports whether a and b have the same algorithm, length, and
// digest bytes. A none-typed Value never equals a non-none Value.
func Equal(a, b Value) bool {
	if a.Algo != b.Algo || a.Len != b.Len {
		return false
	}
	if a.Len == 0 {
		return a.Algo == dkittypes.AlgoNone && b.Algo == dkittypes.AlgoNone
	}
	return a.Data == b.Data
}

// Verify recomputes expected's algorithm over data and compares via Equal.
func Verify(expected Value, data []byte) bool {
	got, err := Compute(expected.Algo, data)
	if err != nil {
		return false
	}
	return Equal(expected, got)
}

// Bytes returns the digest's Len leading bytes, ready to append to a wire
// buffer.
func (v Value) Bytes() []byte {
	return v.Data[:v.Len]
}

// FromBytes reconstructs a Value of the given algorithm from exactly
// algo.Len() bytes.
func FromBytes(algo dkittypes.ChecksumAlgo, b []byte) (Value, error) {
	n := algo.Len()
	if len(b) < n {
		return Value{}, errShortBuffer
	}
	var v Value
	v.Algo = algo
	v.Len = n
	copy(v.Data[:n], b[:n])
	return v, nil
}
