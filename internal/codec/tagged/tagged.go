// Package tagged implements the self-describing tagged-varint codec
// (spec.md §4.3): the first byte's value selects one of nine encoding
// widths and, for small values, carries part of the payload itself.
// Bytes 0..240 decode to themselves (1 byte total); 241..248 add an
// 8-bit tail (2 bytes total); 249 adds a 16-bit tail (3 bytes); 250..255
// select a plain 24/32/40/48/56/64-bit big-endian tail (4..9 bytes).
// Every multi-byte tail is stored big-endian — the one place in this
// codec family that departs from the otherwise little-endian wire (the
// split family's direct branches, spec.md §4.5, do the same).
package tagged

import (
	"fmt"

	"github.com/dkit/dkit/pkg/dkiterrors"
)

const (
	level1Max = 240 // bytes 0..240 are direct 1-byte values

	tag2Lo = 241 // 241..248: 2-byte encoding, 8-bit tail
	tag2Hi = 248
	tag3   = 249 // 3-byte encoding, 16-bit tail
	tag4   = 250 // 4-byte encoding, 24-bit tail
	tag5   = 251 // 5-byte encoding, 32-bit tail
	tag6   = 252 // 6-byte encoding, 40-bit tail
	tag7   = 253 // 7-byte encoding, 48-bit tail
	tag8   = 254 // 8-byte encoding, 56-bit tail
	tag9   = 255 // 9-byte encoding, 64-bit tail

	base2 = level1Max + 1                     // 241: smallest value needing 2 bytes
	base3 = level1Max + (tag2Hi-tag2Lo+1)*256 // 2288: smallest value needing 3 bytes
	max2  = base3 - 1                         // 2287
	max3  = base3 + 1<<16 - 1                 // 67823
	max4  = 1<<24 - 1
	max5  = 1<<32 - 1
	max6  = 1<<40 - 1
	max7  = 1<<48 - 1
	max8  = 1<<56 - 1
)

// Length returns the number of bytes Put(v) would write, without writing
// anything.
func Length(v uint64) int {
	switch {
	case v <= level1Max:
		return 1
	case v <= max2:
		return 2
	case v <= max3:
		return 3
	case v <= max4:
		return 4
	case v <= max5:
		return 5
	case v <= max6:
		return 6
	case v <= max7:
		return 7
	case v <= max8:
		return 8
	default:
		return 9
	}
}

// Put writes v's tagged-varint encoding into dst, returning the number of
// bytes written. dst must be at least Length(v) bytes.
func Put(dst []byte, v uint64) (int, error) {
	n := Length(v)
	if len(dst) < n {
		return 0, fmt.Errorf("%w: destination shorter than %d bytes", dkiterrors.ErrInvalidArgument, n)
	}

	switch n {
	case 1:
		dst[0] = byte(v)
	case 2:
		rem := v - level1Max
		dst[0] = byte(tag2Lo + rem/256)
		dst[1] = byte(rem % 256)
	case 3:
		rem := v - base3
		dst[0] = tag3
		dst[1] = byte(rem >> 8)
		dst[2] = byte(rem)
	default:
		// n-1 big-endian payload bytes, tag = tag4 + (n-4).
		dst[0] = byte(tag4 + (n - 4))
		tailBits := uint((n - 1) * 8)
		for i := 1; i < n; i++ {
			shift := tailBits - uint(i)*8
			dst[i] = byte(v >> shift)
		}
	}
	return n, nil
}

// Get decodes a tagged varint from the front of src, returning the value
// and the number of bytes consumed.
func Get(src []byte) (uint64, int, error) {
	if len(src) == 0 {
		return 0, 0, fmt.Errorf("%w: empty buffer", dkiterrors.ErrCorruptEntry)
	}
	b0 := src[0]

	switch {
	case b0 <= level1Max:
		return uint64(b0), 1, nil

	case b0 >= tag2Lo && b0 <= tag2Hi:
		if len(src) < 2 {
			return 0, 0, fmt.Errorf("%w: truncated 2-byte tagged varint", dkiterrors.ErrCorruptEntry)
		}
		rem := uint64(b0-tag2Lo)*256 + uint64(src[1])
		return level1Max + rem, 2, nil

	case b0 == tag3:
		if len(src) < 3 {
			return 0, 0, fmt.Errorf("%w: truncated 3-byte tagged varint", dkiterrors.ErrCorruptEntry)
		}
		rem := uint64(src[1])<<8 | uint64(src[2])
		return base3 + rem, 3, nil

	default:
		var n int
		switch b0 {
		case tag4:
			n = 4
		case tag5:
			n = 5
		case tag6:
			n = 6
		case tag7:
			n = 7
		case tag8:
			n = 8
		case tag9:
			n = 9
		default:
			return 0, 0, fmt.Errorf("%w: unrecognized tag byte 0x%02x", dkiterrors.ErrCorruptEntry, b0)
		}
		if len(src) < n {
			return 0, 0, fmt.Errorf("%w: truncated %d-byte tagged varint", dkiterrors.ErrCorruptEntry, n)
		}
		var v uint64
		for i := 1; i < n; i++ {
			v = (v << 8) | uint64(src[i])
		}
		return v, n, nil
	}
}
