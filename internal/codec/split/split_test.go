package split

import "testing"

func TestRoundTripEveryBranch(t *testing.T) {
	values := []uint64{
		0, 1, max14, max14 + 1,
		base22, base22 + 1, max22, max22 + 1,
		base30, base30 + 1, max30, max30 + 1,
		base48, base48 + 1, 1 << 40, ^uint64(0),
	}
	for _, v := range values {
		buf := make([]byte, 9)
		n, err := Put(buf, v)
		if err != nil {
			t.Fatalf("Put(%d): %v", v, err)
		}
		if n != Length(v) {
			t.Fatalf("Put(%d) wrote %d, Length says %d", v, n, Length(v))
		}
		got, consumed, err := Get(buf[:n])
		if err != nil {
			t.Fatalf("Get(%d): %v", v, err)
		}
		if got != v || consumed != n {
			t.Fatalf("round trip %d: got %d consumed %d", v, got, consumed)
		}
	}
}

func TestBranchSelection(t *testing.T) {
	buf := make([]byte, 9)
	n, _ := Put(buf, 0)
	if buf[0]&branchMask != branch14 {
		t.Fatalf("value 0 should use branch14, got tag 0x%02x", buf[0]&branchMask)
	}
	if n != 2 {
		t.Fatalf("branch14 should write 2 bytes, wrote %d", n)
	}

	n, _ = Put(buf, max30)
	if buf[0]&branchMask != branch30 {
		t.Fatalf("max30 should use branch30, got tag 0x%02x", buf[0]&branchMask)
	}
	if n != 4 {
		t.Fatalf("branch30 should write 4 bytes, wrote %d", n)
	}

	n, _ = Put(buf, ^uint64(0))
	if buf[0]&branchMask != branchEx {
		t.Fatalf("max uint64 should use the escape branch, got tag 0x%02x", buf[0]&branchMask)
	}
}

func TestTruncatedIsError(t *testing.T) {
	buf := make([]byte, 9)
	n, _ := Put(buf, ^uint64(0))
	if _, _, err := Get(buf[:n-1]); err == nil {
		t.Fatal("expected error decoding truncated split varint")
	}
}
