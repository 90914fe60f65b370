// Package extcodec implements the "external" integer codec (spec.md
// §4.2): fixed-width little-endian integers whose width is carried
// out-of-band by the caller, with signed re-mapping for the non-native
// widths 3, 5, 6, 7. Wire layout is bit-exact per spec.md; the decoding
// style (shift-and-mask, never a native-endian memory read) follows
// spec.md §9's endianness note.
package extcodec

import (
	"fmt"

	"github.com/dkit/dkit/pkg/dkiterrors"
	"github.com/dkit/dkit/pkg/dkittypes"
)

// EncodeWidth returns the smallest w in [1,8] with v < 2^(8w).
func EncodeWidth(v uint64) dkittypes.Width {
	return dkittypes.EncodeWidth(v)
}

// Put writes the low 8*w bits of v into dst[:w], little-endian. dst must
// have length >= w.
func Put(dst []byte, v uint64, w dkittypes.Width) (int, error) {
	n := int(w)
	if n < 1 || n > 8 {
		return 0, fmt.Errorf("%w: width %d out of [1,8]", dkiterrors.ErrInvalidArgument, n)
	}
	if len(dst) < n {
		return 0, fmt.Errorf("%w: destination shorter than width %d", dkiterrors.ErrInvalidArgument, n)
	}
	for i := 0; i < n; i++ {
		dst[i] = byte(v >> (8 * i))
	}
	return n, nil
}

// Get reads w little-endian bytes from src into a uint64. src must have
// length >= w.
func Get(src []byte, w dkittypes.Width) (uint64, error) {
	n := int(w)
	if n < 1 || n > 8 {
		return 0, fmt.Errorf("%w: width %d out of [1,8]", dkiterrors.ErrInvalidArgument, n)
	}
	if len(src) < n {
		return 0, fmt.Errorf("%w: source shorter than width %d", dkiterrors.ErrCorruptEntry, n)
	}
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(src[i]) << (8 * i)
	}
	return v, nil
}

// isNativeWidth reports whether w is a storage-native power-of-two-ish
// width (1,2,4,8) where no signed re-mapping is needed.
func isNativeWidth(w dkittypes.Width) bool {
	switch w {
	case dkittypes.Width1, dkittypes.Width2, dkittypes.Width4, dkittypes.Width8:
		return true
	default:
		return false
	}
}

// PutSigned stores a signed value at a non-native width (3, 5, 6, or 7)
// by clearing the native sign bit, storing the absolute value, and
// setting the varint's top bit (bit 8w-1) iff v was negative (spec.md
// §4.2). For native widths it falls back to a plain two's-complement
// Put.
func PutSigned(dst []byte, v int64, w dkittypes.Width) (int, error) {
	if isNativeWidth(w) {
		return Put(dst, uint64(v), w)
	}
	n := int(w)
	if n < 1 || n > 8 {
		return 0, fmt.Errorf("%w: width %d out of [1,8]", dkiterrors.ErrInvalidArgument, n)
	}
	neg := v < 0
	mag := v
	if neg {
		mag = -mag
	}
	u := uint64(mag)
	topBit := uint64(1) << uint(8*n-1)
	if u >= topBit {
		return 0, fmt.Errorf("%w: magnitude %d does not fit %d-byte signed varint", dkiterrors.ErrOverflow, mag, n)
	}
	if neg {
		u |= topBit
	}
	return Put(dst, u, w)
}

// GetSigned is the inverse of PutSigned.
func GetSigned(src []byte, w dkittypes.Width) (int64, error) {
	if isNativeWidth(w) {
		u, err := Get(src, w)
		if err != nil {
			return 0, err
		}
		return int64(u), nil
	}
	n := int(w)
	u, err := Get(src, w)
	if err != nil {
		return 0, err
	}
	topBit := uint64(1) << uint(8*n-1)
	neg := u&topBit != 0
	mag := int64(u &^ topBit)
	if neg {
		return -mag, nil
	}
	return mag, nil
}

// AddNoGrow adds delta to v in place within width w, saturating to
// WidthInvalid (reported via ok=false) on signed overflow rather than
// wrapping.
func AddNoGrow(v uint64, delta int64, w dkittypes.Width) (result uint64, ok bool) {
	n := int(w)
	if n < 1 || n > 8 {
		return 0, false
	}
	var max uint64
	if n == 8 {
		max = ^uint64(0)
	} else {
		max = (uint64(1) << uint(8*n)) - 1
	}
	if delta >= 0 {
		d := uint64(delta)
		if v > max-d {
			return 0, false
		}
		return v + d, true
	}
	d := uint64(-delta)
	if d > v {
		return 0, false
	}
	return v - d, true
}

// AddGrow adds delta to v, returning the possibly-larger width needed to
// represent the result alongside the new value.
func AddGrow(v uint64, delta int64, w dkittypes.Width) (result uint64, newWidth dkittypes.Width, grew bool) {
	var next uint64
	if delta >= 0 {
		next = v + uint64(delta)
	} else {
		d := uint64(-delta)
		if d > v {
			next = 0
		} else {
			next = v - d
		}
	}
	nw := EncodeWidth(next)
	return next, nw, nw > w
}
