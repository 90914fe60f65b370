// Package structures holds two small registrable structures used to
// exercise the persistence engine's registry and the codec library end
// to end: Sequence, an ordered double-ended sequence of tagged values,
// and IntSet, a btree-backed unique-value set. Neither is a spec
// module in its own right; they are test fixtures in the spirit of the
// teacher's tests/engine_test.go driving KviEngine end to end.
package structures

import (
	"fmt"

	"github.com/dkit/dkit/internal/codec/extcodec"
	"github.com/dkit/dkit/internal/codec/tagged"
	"github.com/dkit/dkit/pkg/dkiterrors"
	"github.com/dkit/dkit/pkg/dkittypes"
)

// ValueKind tags a Sequence element as an int64 or a string.
type ValueKind uint8

const (
	KindInt64 ValueKind = iota
	KindString
)

// Value is a Sequence element: exactly one of Int or Str is
// meaningful, per Kind.
type Value struct {
	Kind ValueKind
	Int  int64
	Str  string
}

// IntValue builds an int64 Value.
func IntValue(v int64) Value { return Value{Kind: KindInt64, Int: v} }

// StringValue builds a string Value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

func (v Value) equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	if v.Kind == KindInt64 {
		return v.Int == other.Int
	}
	return v.Str == other.Str
}

// Sequence is an ordered, doubly-ended sequence of tagged values,
// adapted from the teacher's memTable + BTreeItem ordering idea but
// stripped to exactly the operations the registry needs.
type Sequence struct {
	items []Value
}

// NewSequence creates an empty Sequence.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Len returns the number of elements.
func (s *Sequence) Len() int {
	return len(s.items)
}

// At returns the element at logical index i.
func (s *Sequence) At(i int) Value {
	return s.items[i]
}

// Values returns a copy of the sequence's elements, in order.
func (s *Sequence) Values() []Value {
	out := make([]Value, len(s.items))
	copy(out, s.items)
	return out
}

// Equal reports whether s and other hold the same elements in the same
// order.
func (s *Sequence) Equal(other *Sequence) bool {
	if other == nil {
		return len(s.items) == 0
	}
	if len(s.items) != len(other.items) {
		return false
	}
	for i := range s.items {
		if !s.items[i].equal(other.items[i]) {
			return false
		}
	}
	return true
}

func encodeValue(dst []byte, v Value) (int, error) {
	if len(dst) < 1 {
		return 0, fmt.Errorf("%w: destination too short for value tag", dkiterrors.ErrInvalidArgument)
	}
	dst[0] = byte(v.Kind)
	switch v.Kind {
	case KindInt64:
		n, err := extcodec.Put(dst[1:], uint64(v.Int), dkittypes.Width8)
		if err != nil {
			return 0, err
		}
		return 1 + n, nil
	case KindString:
		n, err := tagged.Put(dst[1:], uint64(len(v.Str)))
		if err != nil {
			return 0, err
		}
		total := 1 + n
		if len(dst)-total < len(v.Str) {
			return 0, fmt.Errorf("%w: destination too short for string value", dkiterrors.ErrInvalidArgument)
		}
		copy(dst[total:], v.Str)
		return total + len(v.Str), nil
	default:
		return 0, fmt.Errorf("%w: unknown value kind %d", dkiterrors.ErrCorruptEntry, v.Kind)
	}
}

func encodedValueLen(v Value) int {
	switch v.Kind {
	case KindInt64:
		return 1 + 8
	default:
		return 1 + tagged.Length(uint64(len(v.Str))) + len(v.Str)
	}
}

func decodeValue(src []byte) (Value, int, error) {
	if len(src) < 1 {
		return Value{}, 0, fmt.Errorf("%w: truncated value tag", dkiterrors.ErrCorruptEntry)
	}
	kind := ValueKind(src[0])
	switch kind {
	case KindInt64:
		u, err := extcodec.Get(src[1:], dkittypes.Width8)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Kind: KindInt64, Int: int64(u)}, 9, nil
	case KindString:
		l, n, err := tagged.Get(src[1:])
		if err != nil {
			return Value{}, 0, err
		}
		start := 1 + n
		end := start + int(l)
		if len(src) < end {
			return Value{}, 0, fmt.Errorf("%w: truncated string value", dkiterrors.ErrCorruptEntry)
		}
		return Value{Kind: KindString, Str: string(src[start:end])}, end, nil
	default:
		return Value{}, 0, fmt.Errorf("%w: unknown value kind %d", dkiterrors.ErrCorruptEntry, kind)
	}
}

// SequenceOps is the persist.Ops registration for Sequence.
type SequenceOps struct{}

// SequenceStructType identifies Sequence on the wire.
const SequenceStructType uint32 = 1

func (SequenceOps) StructType() uint32 { return SequenceStructType }

func (SequenceOps) Snapshot(s interface{}) ([]byte, error) {
	seq := s.(*Sequence)
	n := tagged.Length(uint64(len(seq.items)))
	for _, v := range seq.items {
		n += encodedValueLen(v)
	}
	buf := make([]byte, n)
	off, err := tagged.Put(buf, uint64(len(seq.items)))
	if err != nil {
		return nil, err
	}
	for _, v := range seq.items {
		wn, err := encodeValue(buf[off:], v)
		if err != nil {
			return nil, err
		}
		off += wn
	}
	return buf, nil
}

func (SequenceOps) Restore(data []byte) (interface{}, error) {
	count64, n, err := tagged.Get(data)
	if err != nil {
		return nil, err
	}
	seq := &Sequence{items: make([]Value, 0, count64)}
	off := n
	for i := uint64(0); i < count64; i++ {
		v, vn, err := decodeValue(data[off:])
		if err != nil {
			return nil, err
		}
		seq.items = append(seq.items, v)
		off += vn
	}
	return seq, nil
}

func (SequenceOps) Count(s interface{}) int {
	return s.(*Sequence).Len()
}

func (SequenceOps) EstimateSize(s interface{}) int {
	seq := s.(*Sequence)
	n := tagged.Length(uint64(len(seq.items)))
	for _, v := range seq.items {
		n += encodedValueLen(v)
	}
	return n
}

// EncodeOp validates op is one Sequence understands and returns args
// unchanged: the caller (EncodePush, EncodeInsertAt, ...) has already
// built the operation's payload bytes.
func (SequenceOps) EncodeOp(op dkittypes.Operation, args []byte) ([]byte, error) {
	switch op {
	case dkittypes.OpPUSH_HEAD, dkittypes.OpPUSH_TAIL, dkittypes.OpPOP_HEAD, dkittypes.OpPOP_TAIL,
		dkittypes.OpINSERT_AT, dkittypes.OpDELETE_AT, dkittypes.OpCLEAR,
		dkittypes.OpBULK_INSERT, dkittypes.OpMERGE:
		return args, nil
	default:
		return nil, fmt.Errorf("%w: Sequence does not support operation %s", dkiterrors.ErrInvalidArgument, op)
	}
}

func (SequenceOps) ApplyOp(s interface{}, op dkittypes.Operation, payload []byte) (interface{}, error) {
	var seq *Sequence
	if s == nil {
		seq = NewSequence()
	} else {
		seq = s.(*Sequence)
	}

	switch op {
	case dkittypes.OpPUSH_HEAD:
		v, _, err := decodeValue(payload)
		if err != nil {
			return nil, err
		}
		seq.items = append([]Value{v}, seq.items...)

	case dkittypes.OpPUSH_TAIL:
		v, _, err := decodeValue(payload)
		if err != nil {
			return nil, err
		}
		seq.items = append(seq.items, v)

	case dkittypes.OpPOP_HEAD:
		if len(seq.items) == 0 {
			return nil, fmt.Errorf("%w: pop_head on empty sequence", dkiterrors.ErrInvalidArgument)
		}
		seq.items = seq.items[1:]

	case dkittypes.OpPOP_TAIL:
		if len(seq.items) == 0 {
			return nil, fmt.Errorf("%w: pop_tail on empty sequence", dkiterrors.ErrInvalidArgument)
		}
		seq.items = seq.items[:len(seq.items)-1]

	case dkittypes.OpINSERT_AT:
		idx64, n, err := tagged.Get(payload)
		if err != nil {
			return nil, err
		}
		v, _, err := decodeValue(payload[n:])
		if err != nil {
			return nil, err
		}
		idx := int(idx64)
		if idx < 0 || idx > len(seq.items) {
			return nil, fmt.Errorf("%w: insert_at index %d out of range", dkiterrors.ErrInvalidArgument, idx)
		}
		seq.items = append(seq.items, Value{})
		copy(seq.items[idx+1:], seq.items[idx:])
		seq.items[idx] = v

	case dkittypes.OpDELETE_AT:
		idx64, _, err := tagged.Get(payload)
		if err != nil {
			return nil, err
		}
		idx := int(idx64)
		if idx < 0 || idx >= len(seq.items) {
			return nil, fmt.Errorf("%w: delete_at index %d out of range", dkiterrors.ErrInvalidArgument, idx)
		}
		seq.items = append(seq.items[:idx], seq.items[idx+1:]...)

	case dkittypes.OpCLEAR:
		seq.items = seq.items[:0]

	case dkittypes.OpBULK_INSERT:
		count64, n, err := tagged.Get(payload)
		if err != nil {
			return nil, err
		}
		off := n
		for i := uint64(0); i < count64; i++ {
			v, vn, err := decodeValue(payload[off:])
			if err != nil {
				return nil, err
			}
			seq.items = append(seq.items, v)
			off += vn
		}

	case dkittypes.OpMERGE:
		other, err := SequenceOps{}.Restore(payload)
		if err != nil {
			return nil, err
		}
		seq.items = append(seq.items, other.(*Sequence).items...)

	default:
		return nil, fmt.Errorf("%w: Sequence cannot apply operation %s", dkiterrors.ErrInvalidArgument, op)
	}
	return seq, nil
}

// EncodePush builds the payload for a PUSH_HEAD/PUSH_TAIL op.
func EncodePush(v Value) ([]byte, error) {
	buf := make([]byte, encodedValueLen(v))
	n, err := encodeValue(buf, v)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// EncodeInsertAt builds the payload for an INSERT_AT op.
func EncodeInsertAt(index int, v Value) ([]byte, error) {
	n := tagged.Length(uint64(index)) + encodedValueLen(v)
	buf := make([]byte, n)
	off, err := tagged.Put(buf, uint64(index))
	if err != nil {
		return nil, err
	}
	wn, err := encodeValue(buf[off:], v)
	if err != nil {
		return nil, err
	}
	return buf[:off+wn], nil
}

// EncodeDeleteAt builds the payload for a DELETE_AT op.
func EncodeDeleteAt(index int) ([]byte, error) {
	buf := make([]byte, tagged.Length(uint64(index)))
	n, err := tagged.Put(buf, uint64(index))
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// EncodeBulkInsert builds the payload for a BULK_INSERT op appending
// every value in values at the tail, in order.
func EncodeBulkInsert(values []Value) ([]byte, error) {
	n := tagged.Length(uint64(len(values)))
	for _, v := range values {
		n += encodedValueLen(v)
	}
	buf := make([]byte, n)
	off, err := tagged.Put(buf, uint64(len(values)))
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		wn, err := encodeValue(buf[off:], v)
		if err != nil {
			return nil, err
		}
		off += wn
	}
	return buf, nil
}
