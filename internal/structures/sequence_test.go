package structures

import (
	"bytes"
	"testing"

	"github.com/dkit/dkit/pkg/dkittypes"
)

func TestSequenceSnapshotRoundTrip(t *testing.T) {
	seq := NewSequence()
	seq.items = []Value{IntValue(42), IntValue(-100), StringValue("hello")}

	ops := SequenceOps{}
	data, err := ops.Snapshot(seq)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	restoredAny, err := ops.Restore(data)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	restored := restoredAny.(*Sequence)
	if !seq.Equal(restored) {
		t.Fatalf("restored sequence %+v does not equal original %+v", restored.items, seq.items)
	}

	data2, err := ops.Snapshot(restored)
	if err != nil {
		t.Fatalf("Snapshot (2nd pass): %v", err)
	}
	if !bytes.Equal(data, data2) {
		t.Fatalf("snapshot bytes differ on round trip: %x vs %x", data, data2)
	}
}

func TestSequencePushHeadTail(t *testing.T) {
	ops := SequenceOps{}
	var s interface{} = NewSequence()

	push := func(v Value, head bool) {
		payload, err := EncodePush(v)
		if err != nil {
			t.Fatalf("EncodePush: %v", err)
		}
		op := dkittypes.OpPUSH_TAIL
		if head {
			op = dkittypes.OpPUSH_HEAD
		}
		next, err := ops.ApplyOp(s, op, payload)
		if err != nil {
			t.Fatalf("ApplyOp: %v", err)
		}
		s = next
	}

	push(IntValue(100), false)
	push(IntValue(200), false)
	push(IntValue(-50), true)

	seq := s.(*Sequence)
	want := []int64{-50, 100, 200}
	if seq.Len() != len(want) {
		t.Fatalf("len = %d, want %d", seq.Len(), len(want))
	}
	for i, w := range want {
		if seq.At(i).Int != w {
			t.Fatalf("At(%d) = %d, want %d", i, seq.At(i).Int, w)
		}
	}
}

func TestSequencePopHeadTail(t *testing.T) {
	ops := SequenceOps{}
	seq := &Sequence{items: []Value{IntValue(1), IntValue(2), IntValue(3)}}
	var s interface{} = seq

	next, err := ops.ApplyOp(s, dkittypes.OpPOP_HEAD, nil)
	if err != nil {
		t.Fatalf("pop_head: %v", err)
	}
	s = next
	if s.(*Sequence).Len() != 2 || s.(*Sequence).At(0).Int != 2 {
		t.Fatalf("unexpected state after pop_head: %+v", s.(*Sequence).items)
	}

	next, err = ops.ApplyOp(s, dkittypes.OpPOP_TAIL, nil)
	if err != nil {
		t.Fatalf("pop_tail: %v", err)
	}
	s = next
	if s.(*Sequence).Len() != 1 || s.(*Sequence).At(0).Int != 2 {
		t.Fatalf("unexpected state after pop_tail: %+v", s.(*Sequence).items)
	}
}

func TestSequencePopEmptyIsError(t *testing.T) {
	ops := SequenceOps{}
	empty := NewSequence()
	if _, err := ops.ApplyOp(empty, dkittypes.OpPOP_HEAD, nil); err == nil {
		t.Fatal("expected error popping head of empty sequence")
	}
	if _, err := ops.ApplyOp(empty, dkittypes.OpPOP_TAIL, nil); err == nil {
		t.Fatal("expected error popping tail of empty sequence")
	}
}

func TestSequenceInsertDeleteAt(t *testing.T) {
	ops := SequenceOps{}
	seq := &Sequence{items: []Value{IntValue(1), IntValue(2), IntValue(3)}}

	payload, err := EncodeInsertAt(1, IntValue(99))
	if err != nil {
		t.Fatalf("EncodeInsertAt: %v", err)
	}
	next, err := ops.ApplyOp(seq, dkittypes.OpINSERT_AT, payload)
	if err != nil {
		t.Fatalf("insert_at: %v", err)
	}
	seq = next.(*Sequence)
	want := []int64{1, 99, 2, 3}
	for i, w := range want {
		if seq.At(i).Int != w {
			t.Fatalf("after insert_at: At(%d)=%d, want %d", i, seq.At(i).Int, w)
		}
	}

	delPayload, err := EncodeDeleteAt(0)
	if err != nil {
		t.Fatalf("EncodeDeleteAt: %v", err)
	}
	next, err = ops.ApplyOp(seq, dkittypes.OpDELETE_AT, delPayload)
	if err != nil {
		t.Fatalf("delete_at: %v", err)
	}
	seq = next.(*Sequence)
	want = []int64{99, 2, 3}
	for i, w := range want {
		if seq.At(i).Int != w {
			t.Fatalf("after delete_at: At(%d)=%d, want %d", i, seq.At(i).Int, w)
		}
	}
}

func TestSequenceInsertAtOutOfRangeIsError(t *testing.T) {
	ops := SequenceOps{}
	seq := NewSequence()
	payload, _ := EncodeInsertAt(5, IntValue(1))
	if _, err := ops.ApplyOp(seq, dkittypes.OpINSERT_AT, payload); err == nil {
		t.Fatal("expected error inserting out of range")
	}
}

func TestSequenceClear(t *testing.T) {
	ops := SequenceOps{}
	seq := &Sequence{items: []Value{IntValue(1), IntValue(2)}}
	next, err := ops.ApplyOp(seq, dkittypes.OpCLEAR, nil)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if next.(*Sequence).Len() != 0 {
		t.Fatalf("expected empty sequence after clear, got %d elements", next.(*Sequence).Len())
	}
}

func TestSequenceBulkInsertAndMerge(t *testing.T) {
	ops := SequenceOps{}
	seq := NewSequence()

	bulkPayload, err := EncodeBulkInsert([]Value{IntValue(1), StringValue("a"), IntValue(2)})
	if err != nil {
		t.Fatalf("EncodeBulkInsert: %v", err)
	}
	next, err := ops.ApplyOp(seq, dkittypes.OpBULK_INSERT, bulkPayload)
	if err != nil {
		t.Fatalf("bulk_insert: %v", err)
	}
	seq = next.(*Sequence)
	if seq.Len() != 3 {
		t.Fatalf("len after bulk_insert = %d, want 3", seq.Len())
	}

	other := &Sequence{items: []Value{IntValue(99)}}
	mergePayload, err := ops.Snapshot(other)
	if err != nil {
		t.Fatalf("Snapshot for merge payload: %v", err)
	}
	next, err = ops.ApplyOp(seq, dkittypes.OpMERGE, mergePayload)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	seq = next.(*Sequence)
	if seq.Len() != 4 || seq.At(3).Int != 99 {
		t.Fatalf("unexpected state after merge: %+v", seq.items)
	}
}

func TestSequenceEncodeOpRejectsUnknownOperation(t *testing.T) {
	ops := SequenceOps{}
	if _, err := ops.EncodeOp(dkittypes.OpUPDATE, nil); err == nil {
		t.Fatal("expected error for unsupported operation")
	}
}

func TestSequenceCountAndEstimateSize(t *testing.T) {
	ops := SequenceOps{}
	seq := &Sequence{items: []Value{IntValue(1), StringValue("ab")}}
	if ops.Count(seq) != 2 {
		t.Fatalf("Count = %d, want 2", ops.Count(seq))
	}
	if ops.EstimateSize(seq) <= 0 {
		t.Fatalf("EstimateSize = %d, want > 0", ops.EstimateSize(seq))
	}
}
