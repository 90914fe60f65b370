// Package delta implements delta encoding with ZigZag remapping
// (spec.md §4.9): the first value is stored in full, every successor is
// stored as its (ZigZag'd, signed) difference from the previous value.
// Runs of nearly-monotonic or slowly-varying data collapse to a
// handful of small diffs instead of N full-width values.
package delta

import (
	"fmt"

	"github.com/dkit/dkit/internal/codec/extcodec"
	"github.com/dkit/dkit/pkg/dkiterrors"
	"github.com/dkit/dkit/pkg/dkittypes"
)

// ZigZag maps a signed value to an unsigned one so that small
// magnitudes (positive or negative) encode as small unsigned numbers:
// 0, -1, 1, -2, 2, ... -> 0, 1, 2, 3, 4, ...
func ZigZag(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

// UnZigZag is ZigZag's inverse.
func UnZigZag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// Encode writes a length-prefixed, ZigZag'd base value followed by one
// length-byte-plus-diff pair per successor. values must not be empty.
func Encode(dst []byte, values []int64) (int, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: delta encoding requires at least one value", dkiterrors.ErrInvalidArgument)
	}
	n := 0

	base := ZigZag(values[0])
	baseWidth := dkittypes.EncodeWidth(base)
	if n >= len(dst) {
		return 0, fmt.Errorf("%w: destination too short for base length byte", dkiterrors.ErrInvalidArgument)
	}
	dst[n] = byte(baseWidth)
	n++
	wn, err := extcodec.Put(dst[n:], base, baseWidth)
	if err != nil {
		return 0, err
	}
	n += wn

	prev := values[0]
	for _, v := range values[1:] {
		diff := ZigZag(v - prev)
		w := dkittypes.EncodeWidth(diff)
		if n >= len(dst) {
			return 0, fmt.Errorf("%w: destination too short for diff length byte", dkiterrors.ErrInvalidArgument)
		}
		dst[n] = byte(w)
		n++
		wn, err := extcodec.Put(dst[n:], diff, w)
		if err != nil {
			return 0, err
		}
		n += wn
		prev = v
	}
	return n, nil
}

// Length returns the number of bytes Encode would write for values.
func Length(values []int64) int {
	if len(values) == 0 {
		return 0
	}
	base := ZigZag(values[0])
	n := 1 + int(dkittypes.EncodeWidth(base))
	prev := values[0]
	for _, v := range values[1:] {
		diff := ZigZag(v - prev)
		n += 1 + int(dkittypes.EncodeWidth(diff))
		prev = v
	}
	return n
}

// Decode inverts Encode, returning count values read from the front of
// src along with the number of bytes consumed.
func Decode(src []byte, count int) ([]int64, int, error) {
	if count == 0 {
		return nil, 0, nil
	}
	n := 0
	if n >= len(src) {
		return nil, 0, fmt.Errorf("%w: truncated delta base length byte", dkiterrors.ErrCorruptEntry)
	}
	baseWidth := dkittypes.Width(src[n])
	n++
	if !baseWidth.Valid() {
		return nil, 0, fmt.Errorf("%w: invalid delta base width %d", dkiterrors.ErrCorruptEntry, baseWidth)
	}
	base, err := extcodec.Get(src[n:], baseWidth)
	if err != nil {
		return nil, 0, err
	}
	n += int(baseWidth)

	out := make([]int64, count)
	out[0] = UnZigZag(base)
	prev := out[0]

	for i := 1; i < count; i++ {
		if n >= len(src) {
			return nil, 0, fmt.Errorf("%w: truncated delta diff length byte at %d", dkiterrors.ErrCorruptEntry, i)
		}
		w := dkittypes.Width(src[n])
		n++
		if !w.Valid() {
			return nil, 0, fmt.Errorf("%w: invalid delta diff width %d at %d", dkiterrors.ErrCorruptEntry, w, i)
		}
		diff, err := extcodec.Get(src[n:], w)
		if err != nil {
			return nil, 0, err
		}
		n += int(w)
		prev = prev + UnZigZag(diff)
		out[i] = prev
	}
	return out, n, nil
}

// EncodeUnsigned is the unsigned variant: the base is stored raw
// (no ZigZag, since it is already non-negative), while per-element
// diffs remain ZigZag'd signed values.
func EncodeUnsigned(dst []byte, values []uint64) (int, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: delta encoding requires at least one value", dkiterrors.ErrInvalidArgument)
	}
	n := 0
	base := values[0]
	baseWidth := dkittypes.EncodeWidth(base)
	if n >= len(dst) {
		return 0, fmt.Errorf("%w: destination too short for base length byte", dkiterrors.ErrInvalidArgument)
	}
	dst[n] = byte(baseWidth)
	n++
	wn, err := extcodec.Put(dst[n:], base, baseWidth)
	if err != nil {
		return 0, err
	}
	n += wn

	prev := int64(values[0])
	for _, v := range values[1:] {
		diff := ZigZag(int64(v) - prev)
		w := dkittypes.EncodeWidth(diff)
		if n >= len(dst) {
			return 0, fmt.Errorf("%w: destination too short for diff length byte", dkiterrors.ErrInvalidArgument)
		}
		dst[n] = byte(w)
		n++
		wn, err := extcodec.Put(dst[n:], diff, w)
		if err != nil {
			return 0, err
		}
		n += wn
		prev = int64(v)
	}
	return n, nil
}

// LengthUnsigned returns the number of bytes EncodeUnsigned would write.
func LengthUnsigned(values []uint64) int {
	if len(values) == 0 {
		return 0
	}
	n := 1 + int(dkittypes.EncodeWidth(values[0]))
	prev := int64(values[0])
	for _, v := range values[1:] {
		diff := ZigZag(int64(v) - prev)
		n += 1 + int(dkittypes.EncodeWidth(diff))
		prev = int64(v)
	}
	return n
}

// DecodeUnsigned inverts EncodeUnsigned.
func DecodeUnsigned(src []byte, count int) ([]uint64, int, error) {
	if count == 0 {
		return nil, 0, nil
	}
	n := 0
	if n >= len(src) {
		return nil, 0, fmt.Errorf("%w: truncated delta base length byte", dkiterrors.ErrCorruptEntry)
	}
	baseWidth := dkittypes.Width(src[n])
	n++
	if !baseWidth.Valid() {
		return nil, 0, fmt.Errorf("%w: invalid delta base width %d", dkiterrors.ErrCorruptEntry, baseWidth)
	}
	base, err := extcodec.Get(src[n:], baseWidth)
	if err != nil {
		return nil, 0, err
	}
	n += int(baseWidth)

	out := make([]uint64, count)
	out[0] = base
	prev := int64(base)

	for i := 1; i < count; i++ {
		if n >= len(src) {
			return nil, 0, fmt.Errorf("%w: truncated delta diff length byte at %d", dkiterrors.ErrCorruptEntry, i)
		}
		w := dkittypes.Width(src[n])
		n++
		if !w.Valid() {
			return nil, 0, fmt.Errorf("%w: invalid delta diff width %d at %d", dkiterrors.ErrCorruptEntry, w, i)
		}
		diff, err := extcodec.Get(src[n:], w)
		if err != nil {
			return nil, 0, err
		}
		n += int(w)
		prev = prev + UnZigZag(diff)
		out[i] = uint64(prev)
	}
	return out, n, nil
}
