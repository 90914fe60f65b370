package tagged

import "testing"

// S2 — tagged first-byte optimization (spec.md §8).
func TestS2FirstByteOptimization(t *testing.T) {
	buf := make([]byte, 9)
	n, err := Put(buf, 555557)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n != 4 {
		t.Fatalf("Put(555557) wrote %d bytes, want 4", n)
	}
	got, consumed, err := Get(buf[:n])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if consumed != 4 || got != 555557 {
		t.Fatalf("Get = %d,%d want 555557,4", got, consumed)
	}
}

func TestRoundTripAllLevels(t *testing.T) {
	values := []uint64{
		0, 1, 240, 241, 242, 2287, 2288, 2289, 67823, 67824,
		1<<24 - 1, 1 << 24, 1<<32 - 1, 1 << 32, 1<<40 - 1, 1 << 40,
		1<<48 - 1, 1 << 48, 1<<56 - 1, 1 << 56, ^uint64(0),
	}
	for _, v := range values {
		buf := make([]byte, 9)
		n, err := Put(buf, v)
		if err != nil {
			t.Fatalf("Put(%d): %v", v, err)
		}
		if n != Length(v) {
			t.Fatalf("Put(%d) wrote %d bytes, Length says %d", v, n, Length(v))
		}
		got, consumed, err := Get(buf[:n])
		if err != nil {
			t.Fatalf("Get(%d): %v", v, err)
		}
		if consumed != n || got != v {
			t.Fatalf("round trip %d: got %d, consumed %d (wrote %d)", v, got, consumed, n)
		}
	}
}

func TestLengthAgreesAcrossBoundaries(t *testing.T) {
	prevLen := 0
	prevVal := uint64(0)
	for v := uint64(0); v < 3000; v++ {
		l := Length(v)
		if l < prevLen {
			t.Fatalf("Length not monotonic at %d (prev %d at %d)", v, prevLen, prevVal)
		}
		prevLen, prevVal = l, v
	}
}

func TestTruncatedBufferIsError(t *testing.T) {
	buf := make([]byte, 9)
	n, _ := Put(buf, 555557)
	if _, _, err := Get(buf[:n-1]); err == nil {
		t.Fatal("expected error decoding truncated tagged varint")
	}
}
