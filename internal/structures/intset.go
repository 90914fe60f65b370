package structures

import (
	"fmt"

	"github.com/dkit/dkit/internal/codec/tagged"
	"github.com/dkit/dkit/pkg/dkiterrors"
	"github.com/dkit/dkit/pkg/dkittypes"
	"github.com/google/btree"
)

type intItem int64

func (a intItem) Less(than btree.Item) bool {
	return a < than.(intItem)
}

// IntSet is an ordered set of unique int64 values backed by a
// degree-32 google/btree.BTree, the same ordered-index shape the
// teacher's DiskEngine uses for its key index.
type IntSet struct {
	tree *btree.BTree
}

// NewIntSet creates an empty IntSet.
func NewIntSet() *IntSet {
	return &IntSet{tree: btree.New(32)}
}

// Insert adds v to the set; a no-op if v is already present.
func (s *IntSet) Insert(v int64) {
	s.tree.ReplaceOrInsert(intItem(v))
}

// Delete removes v from the set; a no-op if v is absent.
func (s *IntSet) Delete(v int64) {
	s.tree.Delete(intItem(v))
}

// Contains reports whether v is in the set.
func (s *IntSet) Contains(v int64) bool {
	return s.tree.Get(intItem(v)) != nil
}

// Len returns the number of elements.
func (s *IntSet) Len() int {
	return s.tree.Len()
}

// Values returns every element, ascending.
func (s *IntSet) Values() []int64 {
	out := make([]int64, 0, s.tree.Len())
	s.tree.Ascend(func(item btree.Item) bool {
		out = append(out, int64(item.(intItem)))
		return true
	})
	return out
}

// Equal reports whether s and other hold the same elements.
func (s *IntSet) Equal(other *IntSet) bool {
	if other == nil {
		return s.Len() == 0
	}
	a, b := s.Values(), other.Values()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// IntSetOps is the persist.Ops registration for IntSet. Its snapshot
// body is a tagged-varint count followed by each element, ascending, as
// a ZigZag'd tagged varint; it does not use the dictionary codec.
type IntSetOps struct{}

// IntSetStructType identifies IntSet on the wire.
const IntSetStructType uint32 = 2

func (IntSetOps) StructType() uint32 { return IntSetStructType }

func (IntSetOps) Snapshot(s interface{}) ([]byte, error) {
	set := s.(*IntSet)
	values := set.Values()
	n := tagged.Length(uint64(len(values)))
	for _, v := range values {
		n += tagged.Length(zigzagToUint(v))
	}
	buf := make([]byte, n)
	off, err := tagged.Put(buf, uint64(len(values)))
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		wn, err := tagged.Put(buf[off:], zigzagToUint(v))
		if err != nil {
			return nil, err
		}
		off += wn
	}
	return buf, nil
}

func (IntSetOps) Restore(data []byte) (interface{}, error) {
	count64, n, err := tagged.Get(data)
	if err != nil {
		return nil, err
	}
	set := NewIntSet()
	off := n
	for i := uint64(0); i < count64; i++ {
		u, vn, err := tagged.Get(data[off:])
		if err != nil {
			return nil, err
		}
		set.Insert(uintToZigzag(u))
		off += vn
	}
	return set, nil
}

func (IntSetOps) Count(s interface{}) int {
	return s.(*IntSet).Len()
}

func (IntSetOps) EstimateSize(s interface{}) int {
	set := s.(*IntSet)
	return tagged.Length(uint64(set.Len())) + set.Len()*4
}

func (IntSetOps) EncodeOp(op dkittypes.Operation, args []byte) ([]byte, error) {
	switch op {
	case dkittypes.OpINSERT, dkittypes.OpDELETE, dkittypes.OpBULK_INSERT:
		return args, nil
	default:
		return nil, fmt.Errorf("%w: IntSet does not support operation %s", dkiterrors.ErrInvalidArgument, op)
	}
}

func (IntSetOps) ApplyOp(s interface{}, op dkittypes.Operation, payload []byte) (interface{}, error) {
	var set *IntSet
	if s == nil {
		set = NewIntSet()
	} else {
		set = s.(*IntSet)
	}

	switch op {
	case dkittypes.OpINSERT:
		u, _, err := tagged.Get(payload)
		if err != nil {
			return nil, err
		}
		set.Insert(uintToZigzag(u))

	case dkittypes.OpDELETE:
		u, _, err := tagged.Get(payload)
		if err != nil {
			return nil, err
		}
		set.Delete(uintToZigzag(u))

	case dkittypes.OpBULK_INSERT:
		count64, n, err := tagged.Get(payload)
		if err != nil {
			return nil, err
		}
		off := n
		for i := uint64(0); i < count64; i++ {
			u, vn, err := tagged.Get(payload[off:])
			if err != nil {
				return nil, err
			}
			set.Insert(uintToZigzag(u))
			off += vn
		}

	default:
		return nil, fmt.Errorf("%w: IntSet cannot apply operation %s", dkiterrors.ErrInvalidArgument, op)
	}
	return set, nil
}

// zigzagToUint and uintToZigzag let IntSet store negative int64s
// through the unsigned-only tagged varint codec.
func zigzagToUint(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

func uintToZigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// EncodeIntOp builds the payload for an INSERT/DELETE op on a single
// value.
func EncodeIntOp(v int64) ([]byte, error) {
	u := zigzagToUint(v)
	buf := make([]byte, tagged.Length(u))
	n, err := tagged.Put(buf, u)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// EncodeIntBulkInsert builds the payload for a BULK_INSERT op.
func EncodeIntBulkInsert(values []int64) ([]byte, error) {
	n := tagged.Length(uint64(len(values)))
	for _, v := range values {
		n += tagged.Length(zigzagToUint(v))
	}
	buf := make([]byte, n)
	off, err := tagged.Put(buf, uint64(len(values)))
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		wn, err := tagged.Put(buf[off:], zigzagToUint(v))
		if err != nil {
			return nil, err
		}
		off += wn
	}
	return buf, nil
}
