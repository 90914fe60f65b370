// Package split implements the split-varint codec family (spec.md §4.5):
// the top two bits of the first byte select one of four branches — three
// direct-width branches embedding 14, 22, or 30 bits alongside their
// leading tag bits, and one escape branch whose low four bits name the
// external-varint width (extcodec) that follows. Each branch's base is
// the previous branch's exclusive maximum, so every value has exactly
// one valid encoding.
package split

import (
	"fmt"

	"github.com/dkit/dkit/internal/codec/extcodec"
	"github.com/dkit/dkit/pkg/dkiterrors"
	"github.com/dkit/dkit/pkg/dkittypes"
)

const (
	branch14 = 0x00 // top 2 bits 00: 14 payload bits (6 in byte 0, 8 in byte 1)
	branch22 = 0x40 // top 2 bits 01: 22 payload bits
	branch30 = 0x80 // top 2 bits 10: 30 payload bits
	branchEx = 0xC0 // top 2 bits 11: escape, low 4 bits = external-codec width

	branchMask = 0xC0

	max14 = 1<<14 - 1
	base22 = max14 + 1
	max22 = base22 + 1<<22 - 1
	base30 = max22 + 1
	max30 = base30 + 1<<30 - 1
	base48 = max30 + 1
)

// Length returns the number of bytes Put(v) would write.
func Length(v uint64) int {
	switch {
	case v <= max14:
		return 2
	case v <= max22:
		return 3
	case v <= max30:
		return 4
	default:
		w := extcodec.EncodeWidth(v - base48)
		return 1 + int(w)
	}
}

// Put writes v's split-varint encoding into dst.
//
// Wire layout, big-endian within the leading tag byte's embedded bits
// (the prefix is the one place in this codec family that is not
// little-endian, per spec.md §9):
//   - branch14: byte0 = 0b00|bits13..8, byte1 = bits7..0
//   - branch22: byte0 = 0b01|bits21..16, byte1..2 = bits15..0 (big-endian)
//   - branch30: byte0 = 0b10|bits29..24, byte1..3 = bits23..0 (big-endian)
//   - escape:   byte0 = 0b11|width(4 bits), followed by extcodec.Put(v-base48, width), little-endian
func Put(dst []byte, v uint64) (int, error) {
	n := Length(v)
	if len(dst) < n {
		return 0, fmt.Errorf("%w: destination shorter than %d bytes", dkiterrors.ErrInvalidArgument, n)
	}

	switch {
	case v <= max14:
		dst[0] = branch14 | byte(v>>8)
		dst[1] = byte(v)
		return 2, nil

	case v <= max22:
		r := v - base22
		dst[0] = branch22 | byte(r>>16)
		dst[1] = byte(r >> 8)
		dst[2] = byte(r)
		return 3, nil

	case v <= max30:
		r := v - base30
		dst[0] = branch30 | byte(r>>24)
		dst[1] = byte(r >> 16)
		dst[2] = byte(r >> 8)
		dst[3] = byte(r)
		return 4, nil

	default:
		r := v - base48
		w := extcodec.EncodeWidth(r)
		if int(w) > 15 {
			return 0, fmt.Errorf("%w: value does not fit escape branch", dkiterrors.ErrOverflow)
		}
		dst[0] = branchEx | byte(w)
		if _, err := extcodec.Put(dst[1:], r, w); err != nil {
			return 0, err
		}
		return 1 + int(w), nil
	}
}

// Get decodes a split varint from the front of src.
func Get(src []byte) (uint64, int, error) {
	if len(src) == 0 {
		return 0, 0, fmt.Errorf("%w: empty buffer", dkiterrors.ErrCorruptEntry)
	}
	b0 := src[0]
	branch := b0 & branchMask

	switch branch {
	case branch14:
		if len(src) < 2 {
			return 0, 0, fmt.Errorf("%w: truncated 14-bit split varint", dkiterrors.ErrCorruptEntry)
		}
		v := uint64(b0&^branchMask)<<8 | uint64(src[1])
		return v, 2, nil

	case branch22:
		if len(src) < 3 {
			return 0, 0, fmt.Errorf("%w: truncated 22-bit split varint", dkiterrors.ErrCorruptEntry)
		}
		r := uint64(b0&^branchMask)<<16 | uint64(src[1])<<8 | uint64(src[2])
		return base22 + r, 3, nil

	case branch30:
		if len(src) < 4 {
			return 0, 0, fmt.Errorf("%w: truncated 30-bit split varint", dkiterrors.ErrCorruptEntry)
		}
		r := uint64(b0&^branchMask)<<24 | uint64(src[1])<<16 | uint64(src[2])<<8 | uint64(src[3])
		return base30 + r, 4, nil

	default: // branchEx
		w := dkittypes.Width(b0 &^ branchMask)
		if !w.Valid() || w > 8 {
			return 0, 0, fmt.Errorf("%w: invalid escape width %d", dkiterrors.ErrCorruptEntry, w)
		}
		if len(src) < 1+int(w) {
			return 0, 0, fmt.Errorf("%w: truncated escape split varint", dkiterrors.ErrCorruptEntry)
		}
		r, err := extcodec.Get(src[1:], w)
		if err != nil {
			return 0, 0, err
		}
		return base48 + r, 1 + int(w), nil
	}
}
