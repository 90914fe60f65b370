package extcodec

import (
	"testing"

	"github.com/dkit/dkit/pkg/dkittypes"
)

// S1 — external round-trip at width boundaries (spec.md §8).
func TestRoundTripWidthBoundaries(t *testing.T) {
	values := []uint64{0, 255, 256, 65535, 65536, 1<<24 - 1, 1 << 24, 1<<32 - 1, 1 << 32, ^uint64(0)}
	wantWidths := []int{1, 1, 2, 2, 3, 3, 4, 4, 5, 8}

	for i, v := range values {
		w := EncodeWidth(v)
		if int(w) != wantWidths[i] {
			t.Fatalf("EncodeWidth(%d) = %d, want %d", v, w, wantWidths[i])
		}
		buf := make([]byte, 8)
		n, err := Put(buf, v, w)
		if err != nil {
			t.Fatalf("Put(%d): %v", v, err)
		}
		got, err := Get(buf[:n], w)
		if err != nil {
			t.Fatalf("Get(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip %d -> %d", v, got)
		}
	}
}

func TestWidthMonotonicity(t *testing.T) {
	if EncodeWidth(0) != 1 {
		t.Fatalf("EncodeWidth(0) = %d, want 1", EncodeWidth(0))
	}
	prev := EncodeWidth(0)
	for _, v := range []uint64{1, 1 << 10, 1 << 20, 1 << 30, 1 << 40, 1 << 50, 1 << 60, ^uint64(0)} {
		w := EncodeWidth(v)
		if w < prev {
			t.Fatalf("EncodeWidth not monotonic at %d", v)
		}
		prev = w
	}
}

func TestSignedNonNativeWidths(t *testing.T) {
	for _, w := range []dkittypes.Width{3, 5, 6, 7} {
		buf := make([]byte, 8)
		for _, v := range []int64{0, 1, -1, 100, -100} {
			n, err := PutSigned(buf, v, w)
			if err != nil {
				t.Fatalf("PutSigned(%d, w=%d): %v", v, w, err)
			}
			got, err := GetSigned(buf[:n], w)
			if err != nil {
				t.Fatalf("GetSigned(w=%d): %v", w, err)
			}
			if got != v {
				t.Fatalf("signed round trip w=%d: got %d want %d", w, got, v)
			}
		}
	}
}

func TestAddNoGrowSaturates(t *testing.T) {
	v, ok := AddNoGrow(250, 10, 1)
	if ok {
		t.Fatalf("expected saturation (overflow) for 250+10 at width 1, got %d", v)
	}
	v, ok = AddNoGrow(5, 10, 1)
	if !ok || v != 15 {
		t.Fatalf("AddNoGrow(5,10) = %d,%v want 15,true", v, ok)
	}
}

