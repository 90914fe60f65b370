// Package dict implements dictionary encoding (spec.md §4.10): the
// distinct values in a sequence are collected into a sorted dictionary
// once, and each original value is replaced by a fixed-width index into
// that dictionary. Good for low-cardinality columns where the same
// handful of values repeats many times.
package dict

import (
	"fmt"

	"github.com/dkit/dkit/internal/codec/extcodec"
	"github.com/dkit/dkit/internal/codec/tagged"
	"github.com/dkit/dkit/pkg/dkiterrors"
	"github.com/dkit/dkit/pkg/dkittypes"
	"github.com/google/btree"
)

// maxDictSize caps dictionary size to prevent memory exhaustion from
// adversarial inputs (spec.md §4.10).
const maxDictSize = 1 << 20

// uint64Item orders uint64 values inside the build-time btree, the same
// btree.Item shape the engine's ordered index uses for keys.
type uint64Item uint64

func (a uint64Item) Less(than btree.Item) bool {
	return a < than.(uint64Item)
}

// buildDictionary inserts values into a degree-32 btree (duplicates
// collapse on insert) and walks it in ascending order to extract the
// strictly-increasing set of unique values.
func buildDictionary(values []uint64) ([]uint64, error) {
	tree := btree.New(32)
	for _, v := range values {
		tree.ReplaceOrInsert(uint64Item(v))
	}
	if tree.Len() > maxDictSize {
		return nil, fmt.Errorf("%w: dictionary size %d exceeds cap of %d", dkiterrors.ErrOverflow, tree.Len(), maxDictSize)
	}

	dictionary := make([]uint64, 0, tree.Len())
	tree.Ascend(func(item btree.Item) bool {
		dictionary = append(dictionary, uint64(item.(uint64Item)))
		return true
	})
	return dictionary, nil
}

// indexOf returns the position of v within the sorted dictionary, or -1.
func indexOf(dictionary []uint64, v uint64) int {
	lo, hi := 0, len(dictionary)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if dictionary[mid] < v {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(dictionary) && dictionary[lo] == v {
		return lo
	}
	return -1
}

func indexWidthFor(dictSize int) dkittypes.Width {
	if dictSize == 0 {
		return dkittypes.Width1
	}
	return dkittypes.EncodeWidth(uint64(dictSize - 1))
}

// Encode builds a dictionary from values and writes the wire encoding:
// tagged-varint dictSize, dictSize tagged-varint values, tagged-varint
// count, then count fixed-width indices.
func Encode(dst []byte, values []uint64) (int, error) {
	dictionary, err := buildDictionary(values)
	if err != nil {
		return 0, err
	}
	// overflow check on dictSize * 8 per spec.md §4.10
	if uint64(len(dictionary))*8 < uint64(len(dictionary)) {
		return 0, fmt.Errorf("%w: dictSize*8 overflow", dkiterrors.ErrOverflow)
	}
	indexWidth := indexWidthFor(len(dictionary))

	n := 0
	w, err := tagged.Put(dst[n:], uint64(len(dictionary)))
	if err != nil {
		return 0, err
	}
	n += w

	for _, v := range dictionary {
		w, err = tagged.Put(dst[n:], v)
		if err != nil {
			return 0, err
		}
		n += w
	}

	w, err = tagged.Put(dst[n:], uint64(len(values)))
	if err != nil {
		return 0, err
	}
	n += w

	for _, v := range values {
		idx := indexOf(dictionary, v)
		if idx < 0 {
			return 0, fmt.Errorf("%w: value %d missing from built dictionary", dkiterrors.ErrCorruptEntry, v)
		}
		wn, err := extcodec.Put(dst[n:], uint64(idx), indexWidth)
		if err != nil {
			return 0, err
		}
		n += wn
	}
	return n, nil
}

// Length returns the number of bytes Encode would write for values.
func Length(values []uint64) (int, error) {
	dictionary, err := buildDictionary(values)
	if err != nil {
		return 0, err
	}
	indexWidth := indexWidthFor(len(dictionary))
	n := tagged.Length(uint64(len(dictionary)))
	for _, v := range dictionary {
		n += tagged.Length(v)
	}
	n += tagged.Length(uint64(len(values)))
	n += len(values) * int(indexWidth)
	return n, nil
}

// Block is a decoded dictionary-encoded sequence.
type Block struct {
	Dictionary []uint64
	Count      int
	indexWidth dkittypes.Width
	indices    []byte
}

// Decode parses a dictionary-encoded block from the front of src.
func Decode(src []byte) (*Block, int, error) {
	dictSize64, n1, err := tagged.Get(src)
	if err != nil {
		return nil, 0, err
	}
	n := n1
	dictSize := int(dictSize64)
	if dictSize > maxDictSize {
		return nil, 0, fmt.Errorf("%w: dictionary size %d exceeds cap of %d", dkiterrors.ErrCorruptEntry, dictSize, maxDictSize)
	}

	dictionary := make([]uint64, dictSize)
	for i := 0; i < dictSize; i++ {
		v, nv, err := tagged.Get(src[n:])
		if err != nil {
			return nil, 0, err
		}
		n += nv
		dictionary[i] = v
	}

	count64, nc, err := tagged.Get(src[n:])
	if err != nil {
		return nil, 0, err
	}
	n += nc
	count := int(count64)

	indexWidth := indexWidthFor(dictSize)
	need := count * int(indexWidth)
	if len(src)-n < need {
		return nil, 0, fmt.Errorf("%w: truncated dictionary indices, need %d bytes", dkiterrors.ErrCorruptEntry, need)
	}
	indices := src[n : n+need]
	n += need

	return &Block{
		Dictionary: dictionary,
		Count:      count,
		indexWidth: indexWidth,
		indices:    indices,
	}, n, nil
}

// At returns the value at logical index i, validating that its
// dictionary index is in range.
func (b *Block) At(i int) (uint64, error) {
	if i < 0 || i >= b.Count {
		return 0, fmt.Errorf("%w: index %d out of range [0,%d)", dkiterrors.ErrInvalidArgument, i, b.Count)
	}
	w := int(b.indexWidth)
	start := i * w
	idx64, err := extcodec.Get(b.indices[start:start+w], b.indexWidth)
	if err != nil {
		return 0, err
	}
	idx := int(idx64)
	if idx < 0 || idx >= len(b.Dictionary) {
		return 0, fmt.Errorf("%w: dictionary index %d out of range [0,%d)", dkiterrors.ErrCorruptEntry, idx, len(b.Dictionary))
	}
	return b.Dictionary[idx], nil
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
