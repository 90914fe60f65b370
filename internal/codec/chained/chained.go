// Package chained implements the continuation-bit varint codec (spec.md
// §4.4): each byte carries 7 data bits plus a continuation bit, except a
// final ninth byte (reached only for values needing the full 64 bits)
// which carries a full 8 data bits with no continuation flag, capping
// the encoding at 9 bytes.
package chained

import (
	"fmt"

	"github.com/dkit/dkit/pkg/dkiterrors"
)

const continuationBit = 0x80

// Length returns the number of bytes Put(v) would write. Bytes 1..8 each
// carry 7 data bits (56 bits of capacity total); anything requiring more
// than 56 bits spills into the unflagged 9th byte.
func Length(v uint64) int {
	switch {
	case v < 1<<7:
		return 1
	case v < 1<<14:
		return 2
	case v < 1<<21:
		return 3
	case v < 1<<28:
		return 4
	case v < 1<<35:
		return 5
	case v < 1<<42:
		return 6
	case v < 1<<49:
		return 7
	case v < 1<<56:
		return 8
	default:
		return 9
	}
}

// Put writes v's chained-varint encoding into dst.
func Put(dst []byte, v uint64) (int, error) {
	n := Length(v)
	if len(dst) < n {
		return 0, fmt.Errorf("%w: destination shorter than %d bytes", dkiterrors.ErrInvalidArgument, n)
	}
	if n < 9 {
		for i := 0; i < n; i++ {
			b := byte(v & 0x7F)
			v >>= 7
			if i < n-1 {
				b |= continuationBit
			}
			dst[i] = b
		}
		return n, nil
	}
	// 9-byte form: 8 bytes of 7-bit groups, all continuation-flagged
	// except none here since the 9th byte always follows, then a final
	// full byte with no continuation bit.
	for i := 0; i < 8; i++ {
		dst[i] = byte(v&0x7F) | continuationBit
		v >>= 7
	}
	dst[8] = byte(v)
	return 9, nil
}

// Get decodes a chained varint from the front of src.
func Get(src []byte) (uint64, int, error) {
	var v uint64
	for i := 0; i < 9; i++ {
		if i >= len(src) {
			return 0, 0, fmt.Errorf("%w: truncated chained varint", dkiterrors.ErrCorruptEntry)
		}
		b := src[i]
		if i < 8 {
			v |= uint64(b&0x7F) << (7 * i)
			if b&continuationBit == 0 {
				return v, i + 1, nil
			}
			continue
		}
		// ninth byte: full 8 bits, no continuation flag, no further
		// bytes permitted.
		v |= uint64(b) << 56
		return v, 9, nil
	}
	return 0, 0, fmt.Errorf("%w: chained varint exceeds 9 bytes", dkiterrors.ErrCorruptEntry)
}

// FastGetSmall is the 32-bit fast path: a single-comparison decode for
// values known to be < 2^7 (spec.md §4.4). ok is false if the first byte
// carries a continuation bit or src is empty, in which case callers
// should fall back to Get.
func FastGetSmall(src []byte) (v uint32, n int, ok bool) {
	if len(src) == 0 {
		return 0, 0, false
	}
	b := src[0]
	if b&continuationBit != 0 {
		return 0, 0, false
	}
	return uint32(b), 1, true
}
