package forcodec

import (
	"reflect"
	"testing"
)

func TestAnalyze(t *testing.T) {
	min, w := Analyze([]uint64{100, 105, 103, 108, 101})
	if min != 100 {
		t.Fatalf("min = %d, want 100", min)
	}
	if w != 1 {
		t.Fatalf("offsetWidth = %d, want 1 (range 8)", w)
	}
}

func TestRoundTrip(t *testing.T) {
	values := []uint64{1000, 1005, 999999, 1000000, 1000042}
	buf := make([]byte, Length(values))
	n, err := Encode(buf, values)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Encode wrote %d, Length said %d", n, len(buf))
	}

	block, consumed, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != n {
		t.Fatalf("Decode consumed %d, want %d", consumed, n)
	}

	got, err := block.ToSlice()
	if err != nil {
		t.Fatalf("ToSlice: %v", err)
	}
	if !reflect.DeepEqual(got, values) {
		t.Fatalf("ToSlice = %v, want %v", got, values)
	}

	for i, want := range values {
		v, err := block.At(i)
		if err != nil {
			t.Fatalf("At(%d): %v", i, err)
		}
		if v != want {
			t.Fatalf("At(%d) = %d, want %d", i, v, want)
		}
	}
}

func TestEmptyBlock(t *testing.T) {
	var values []uint64
	buf := make([]byte, Length(values))
	n, err := Encode(buf, values)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	block, consumed, err := Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != n || block.Count != 0 {
		t.Fatalf("empty block: consumed=%d count=%d", consumed, block.Count)
	}
}

func TestAllEqualValues(t *testing.T) {
	values := []uint64{7, 7, 7, 7}
	buf := make([]byte, Length(values))
	n, _ := Encode(buf, values)
	block, _, err := Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if block.OffsetWidth != 1 {
		t.Fatalf("all-equal offset width = %d, want 1", block.OffsetWidth)
	}
	for i := 0; i < 4; i++ {
		v, _ := block.At(i)
		if v != 7 {
			t.Fatalf("At(%d) = %d, want 7", i, v)
		}
	}
}

func TestAtOutOfRange(t *testing.T) {
	values := []uint64{1, 2, 3}
	buf := make([]byte, Length(values))
	n, _ := Encode(buf, values)
	block, _, _ := Decode(buf[:n])
	if _, err := block.At(-1); err == nil {
		t.Fatal("expected error for negative index")
	}
	if _, err := block.At(3); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}

func TestTruncatedDecodeIsError(t *testing.T) {
	values := []uint64{10, 20, 30, 1 << 20}
	buf := make([]byte, Length(values))
	n, _ := Encode(buf, values)
	if _, _, err := Decode(buf[:n-1]); err == nil {
		t.Fatal("expected error decoding truncated FOR block")
	}
}
