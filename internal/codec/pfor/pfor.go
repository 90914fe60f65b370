// Package pfor implements Patched Frame-of-Reference encoding (spec.md
// §4.8): like forcodec, but the offset width is chosen from a
// percentile of the value distribution rather than its true range, and
// the handful of values above that percentile ("exceptions") are
// patched in afterward via a side list of (index, value) pairs. This
// keeps the common case narrow even when a few outliers would
// otherwise force every offset wide.
package pfor

import (
	"fmt"
	"sort"

	"github.com/dkit/dkit/internal/codec/extcodec"
	"github.com/dkit/dkit/internal/codec/tagged"
	"github.com/dkit/dkit/pkg/dkiterrors"
	"github.com/dkit/dkit/pkg/dkittypes"
)

// exception pairs a logical index with its true (unpatched) value.
type exception struct {
	index int
	value uint64
}

// Block is a decoded Patched Frame-of-Reference block.
type Block struct {
	Min         uint64
	OffsetWidth dkittypes.Width
	Count       int
	marker      uint64
	offsets     []byte
	exceptions  []exception
}

func markerFor(w dkittypes.Width) uint64 {
	if w >= 8 {
		return ^uint64(0)
	}
	return uint64(1)<<(8*uint(w)) - 1
}

// computeThreshold picks the threshold value, min, and offset width for
// values at the given percentile (90, 95, or 99). It uses the
// nearest-rank index (count-1)*pct/100 into the sorted copy, which
// matches spec.md's worked PFOR example exactly (an index of
// count*pct/100 would select the maximum itself at pct=95, count=8 and
// leave no room for the one designed-in outlier).
func computeThreshold(values []uint64, pct int) (min, thresholdValue uint64, width dkittypes.Width) {
	sorted := make([]uint64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	min = sorted[0]
	idx := (len(sorted) - 1) * pct / 100
	thresholdValue = sorted[idx]
	width = dkittypes.EncodeWidth(thresholdValue - min)
	return min, thresholdValue, width
}

// buildExceptions collects every value strictly greater than
// thresholdValue as an exception. It recovers from an allocation
// failure and reports ok=false, per spec.md's "memory failure in
// exception buffer" edge case; the caller must then fall back to a
// plain (exception-free) encoding.
func buildExceptions(values []uint64, thresholdValue uint64) (out []exception, ok bool) {
	defer func() {
		if recover() != nil {
			out, ok = nil, false
		}
	}()
	for i, v := range values {
		if v > thresholdValue {
			out = append(out, exception{index: i, value: v})
		}
	}
	return out, true
}

// Encode writes the Patched Frame-of-Reference wire encoding of values
// at the given percentile (90, 95, or 99).
func Encode(dst []byte, values []uint64, pct int) (int, error) {
	if pct != 90 && pct != 95 && pct != 99 {
		return 0, fmt.Errorf("%w: percentile %d not one of 90,95,99", dkiterrors.ErrInvalidArgument, pct)
	}

	if len(values) == 0 {
		n := 0
		w, err := tagged.Put(dst[n:], 0)
		if err != nil {
			return 0, err
		}
		n += w
		if n >= len(dst) {
			return 0, fmt.Errorf("%w: destination too short", dkiterrors.ErrInvalidArgument)
		}
		dst[n] = 0
		n++
		w, err = tagged.Put(dst[n:], 0)
		if err != nil {
			return 0, err
		}
		n += w
		w, err = tagged.Put(dst[n:], 0)
		if err != nil {
			return 0, err
		}
		n += w
		return n, nil
	}

	min, thresholdValue, width := computeThreshold(values, pct)
	exceptions, ok := buildExceptions(values, thresholdValue)
	if !ok {
		// Fall back to a plain, exception-free encoding wide enough for
		// every value.
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		min = values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		width = dkittypes.EncodeWidth(max - min)
		thresholdValue = max
		exceptions = nil
	}
	marker := markerFor(width)
	isException := make(map[int]bool, len(exceptions))
	for _, e := range exceptions {
		isException[e.index] = true
	}

	n := 0
	w, err := tagged.Put(dst[n:], min)
	if err != nil {
		return 0, err
	}
	n += w

	if n >= len(dst) {
		return 0, fmt.Errorf("%w: destination too short for width byte", dkiterrors.ErrInvalidArgument)
	}
	dst[n] = byte(width)
	n++

	w, err = tagged.Put(dst[n:], uint64(len(values)))
	if err != nil {
		return 0, err
	}
	n += w

	for i, v := range values {
		var offset uint64
		if isException[i] {
			offset = marker
		} else {
			offset = v - min
		}
		wn, err := extcodec.Put(dst[n:], offset, width)
		if err != nil {
			return 0, err
		}
		n += wn
	}

	w, err = tagged.Put(dst[n:], uint64(len(exceptions)))
	if err != nil {
		return 0, err
	}
	n += w

	for _, e := range exceptions {
		w, err = tagged.Put(dst[n:], uint64(e.index))
		if err != nil {
			return 0, err
		}
		n += w
		w, err = tagged.Put(dst[n:], e.value)
		if err != nil {
			return 0, err
		}
		n += w
	}
	return n, nil
}

// Length returns an upper bound on the number of bytes Encode would
// write for values at the given percentile (exact, since exception
// pairs are the same size whether counted in advance or not).
func Length(values []uint64, pct int) int {
	if len(values) == 0 {
		return tagged.Length(0) + 1 + tagged.Length(0) + tagged.Length(0)
	}
	min, thresholdValue, width := computeThreshold(values, pct)
	exceptions, ok := buildExceptions(values, thresholdValue)
	if !ok {
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		min = values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		width = dkittypes.EncodeWidth(max - min)
		exceptions = nil
	}
	n := tagged.Length(min) + 1 + tagged.Length(uint64(len(values))) + len(values)*int(width)
	n += tagged.Length(uint64(len(exceptions)))
	for _, e := range exceptions {
		n += tagged.Length(uint64(e.index)) + tagged.Length(e.value)
	}
	return n
}

// Decode parses a Patched Frame-of-Reference block from the front of
// src, returning the block and the number of bytes consumed.
func Decode(src []byte) (*Block, int, error) {
	min, nm, err := tagged.Get(src)
	if err != nil {
		return nil, 0, err
	}
	n := nm

	if n >= len(src) {
		return nil, 0, fmt.Errorf("%w: truncated PFOR header", dkiterrors.ErrCorruptEntry)
	}
	width := dkittypes.Width(src[n])
	n++

	count64, ncv, err := tagged.Get(src[n:])
	if err != nil {
		return nil, 0, err
	}
	n += ncv
	count := int(count64)

	if count == 0 {
		ec64, nec, err := tagged.Get(src[n:])
		if err != nil {
			return nil, 0, err
		}
		n += nec
		if ec64 != 0 {
			return nil, 0, fmt.Errorf("%w: zero-count PFOR block with nonzero exception count", dkiterrors.ErrCorruptEntry)
		}
		return &Block{Min: min, OffsetWidth: width, Count: 0}, n, nil
	}

	if !width.Valid() {
		return nil, 0, fmt.Errorf("%w: invalid PFOR offset width %d", dkiterrors.ErrCorruptEntry, width)
	}

	need := count * int(width)
	if len(src)-n < need {
		return nil, 0, fmt.Errorf("%w: truncated PFOR offsets, need %d bytes", dkiterrors.ErrCorruptEntry, need)
	}
	offsets := src[n : n+need]
	n += need

	ec64, nec, err := tagged.Get(src[n:])
	if err != nil {
		return nil, 0, err
	}
	n += nec
	exceptionCount := int(ec64)

	exceptions := make([]exception, 0, exceptionCount)
	for i := 0; i < exceptionCount; i++ {
		idx64, ni, err := tagged.Get(src[n:])
		if err != nil {
			return nil, 0, err
		}
		n += ni
		val, nv, err := tagged.Get(src[n:])
		if err != nil {
			return nil, 0, err
		}
		n += nv
		exceptions = append(exceptions, exception{index: int(idx64), value: val})
	}

	b := &Block{
		Min:         min,
		OffsetWidth: width,
		Count:       count,
		marker:      markerFor(width),
		offsets:     offsets,
		exceptions:  exceptions,
	}
	return b, n, nil
}

// At returns the value at logical index i. Regular slots resolve in
// constant time; exception slots fall back to a linear scan of the
// (rare, by construction) exception list.
func (b *Block) At(i int) (uint64, error) {
	if i < 0 || i >= b.Count {
		return 0, fmt.Errorf("%w: index %d out of range [0,%d)", dkiterrors.ErrInvalidArgument, i, b.Count)
	}
	w := int(b.OffsetWidth)
	start := i * w
	offset, err := extcodec.Get(b.offsets[start:start+w], b.OffsetWidth)
	if err != nil {
		return 0, err
	}
	if offset != b.marker {
		return b.Min + offset, nil
	}
	for _, e := range b.exceptions {
		if e.index == i {
			return e.value, nil
		}
	}
	return 0, fmt.Errorf("%w: marker slot %d has no matching exception", dkiterrors.ErrCorruptEntry, i)
}

// ToSlice materializes every value in the block, in order.
func (b *Block) ToSlice() ([]uint64, error) {
	out := make([]uint64, b.Count)
	for i := range out {
		v, err := b.At(i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ExceptionCount reports how many exceptions the block carries (test
// and diagnostic use).
func (b *Block) ExceptionCount() int {
	return len(b.exceptions)
}

// ExceptionIndex reports the logical index of the j'th exception.
func (b *Block) ExceptionIndex(j int) int {
	return b.exceptions[j].index
}
