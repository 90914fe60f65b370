// Package forcodec implements Frame-of-Reference encoding (spec.md
// §4.7): every value in a block is stored as a small fixed-width offset
// from the block minimum, so a block with a narrow value range packs
// down to the offset width rather than each value's own width.
package forcodec

import (
	"fmt"

	"github.com/dkit/dkit/internal/codec/extcodec"
	"github.com/dkit/dkit/internal/codec/tagged"
	"github.com/dkit/dkit/pkg/dkiterrors"
	"github.com/dkit/dkit/pkg/dkittypes"
)

// Block is a decoded Frame-of-Reference block: a minimum plus a packed
// run of fixed-width offsets.
type Block struct {
	Min         uint64
	OffsetWidth dkittypes.Width
	Count       int
	offsets     []byte
}

// Analyze computes the min, range, and offset width for values, without
// encoding anything yet.
func Analyze(values []uint64) (min uint64, offsetWidth dkittypes.Width) {
	if len(values) == 0 {
		return 0, dkittypes.Width1
	}
	min = values[0]
	max := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, dkittypes.EncodeWidth(max - min)
}

// Encode writes the Frame-of-Reference wire encoding of values:
// tagged-varint min, one byte offsetWidth, tagged-varint count, then
// count fixed-width little-endian offsets.
func Encode(dst []byte, values []uint64) (int, error) {
	min, offsetWidth := Analyze(values)

	n := 0
	nm, err := tagged.Put(dst[n:], min)
	if err != nil {
		return 0, err
	}
	n += nm

	if n >= len(dst) {
		return 0, fmt.Errorf("%w: destination too short for offset width byte", dkiterrors.ErrInvalidArgument)
	}
	dst[n] = byte(offsetWidth)
	n++

	nc, err := tagged.Put(dst[n:], uint64(len(values)))
	if err != nil {
		return 0, err
	}
	n += nc

	for _, v := range values {
		w, err := extcodec.Put(dst[n:], v-min, offsetWidth)
		if err != nil {
			return 0, err
		}
		n += w
	}
	return n, nil
}

// Length returns the number of bytes Encode would write for values.
func Length(values []uint64) int {
	min, offsetWidth := Analyze(values)
	return tagged.Length(min) + 1 + tagged.Length(uint64(len(values))) + len(values)*int(offsetWidth)
}

// Decode parses a Frame-of-Reference block from the front of src,
// returning the block and the number of bytes consumed. Decode does not
// materialize the full value slice; use Block.At for constant-time
// lookups.
func Decode(src []byte) (*Block, int, error) {
	min, nm, err := tagged.Get(src)
	if err != nil {
		return nil, 0, err
	}
	n := nm

	if n >= len(src) {
		return nil, 0, fmt.Errorf("%w: truncated FOR header", dkiterrors.ErrCorruptEntry)
	}
	offsetWidth := dkittypes.Width(src[n])
	n++
	if !offsetWidth.Valid() {
		return nil, 0, fmt.Errorf("%w: invalid FOR offset width %d", dkiterrors.ErrCorruptEntry, offsetWidth)
	}

	count64, ncv, err := tagged.Get(src[n:])
	if err != nil {
		return nil, 0, err
	}
	n += ncv
	count := int(count64)

	need := count * int(offsetWidth)
	if len(src)-n < need {
		return nil, 0, fmt.Errorf("%w: truncated FOR offsets, need %d bytes", dkiterrors.ErrCorruptEntry, need)
	}

	b := &Block{
		Min:         min,
		OffsetWidth: offsetWidth,
		Count:       count,
		offsets:     src[n : n+need],
	}
	return b, n + need, nil
}

// At returns the value at logical index i in constant time: an indexed
// fixed-width read plus min.
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
	return b.Min + offset, nil
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
