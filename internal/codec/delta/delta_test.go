package delta

import (
	"math"
	"reflect"
	"testing"
)

func TestZigZagRoundTrip(t *testing.T) {
	values := []int64{0, -1, 1, -2, 2, math.MaxInt64, math.MinInt64, -1000000, 1000000}
	for _, v := range values {
		u := ZigZag(v)
		if got := UnZigZag(u); got != v {
			t.Fatalf("ZigZag/UnZigZag(%d) round trip got %d", v, got)
		}
	}
}

func TestZigZagSmallMagnitudesStaySmall(t *testing.T) {
	cases := map[int64]uint64{0: 0, -1: 1, 1: 2, -2: 3, 2: 4}
	for v, want := range cases {
		if got := ZigZag(v); got != want {
			t.Fatalf("ZigZag(%d) = %d, want %d", v, got, want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	values := []int64{1000, 1005, 999, 1100, -50, -55, 0, 70000}
	buf := make([]byte, Length(values))
	n, err := Encode(buf, values)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Encode wrote %d, Length said %d", n, len(buf))
	}
	got, consumed, err := Decode(buf, len(values))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != n {
		t.Fatalf("Decode consumed %d, want %d", consumed, n)
	}
	if !reflect.DeepEqual(got, values) {
		t.Fatalf("decode = %v, want %v", got, values)
	}
}

func TestSingleValue(t *testing.T) {
	values := []int64{42}
	buf := make([]byte, Length(values))
	n, err := Encode(buf, values)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, _, err := Decode(buf[:n], 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, values) {
		t.Fatalf("decode = %v, want %v", got, values)
	}
}

func TestEncodeEmptyIsError(t *testing.T) {
	buf := make([]byte, 16)
	if _, err := Encode(buf, nil); err == nil {
		t.Fatal("expected error encoding empty value slice")
	}
}

func TestUnsignedVariantRoundTrip(t *testing.T) {
	values := []uint64{10, 20, 15, 15, 1000000, 999999}
	buf := make([]byte, LengthUnsigned(values))
	n, err := EncodeUnsigned(buf, values)
	if err != nil {
		t.Fatalf("EncodeUnsigned: %v", err)
	}
	got, consumed, err := DecodeUnsigned(buf[:n], len(values))
	if err != nil {
		t.Fatalf("DecodeUnsigned: %v", err)
	}
	if consumed != n {
		t.Fatalf("consumed %d, want %d", consumed, n)
	}
	if !reflect.DeepEqual(got, values) {
		t.Fatalf("decode = %v, want %v", got, values)
	}
}

func TestTruncatedDecodeIsError(t *testing.T) {
	values := []int64{1, 2, 3, 4}
	buf := make([]byte, Length(values))
	n, _ := Encode(buf, values)
	if _, _, err := Decode(buf[:n-1], len(values)); err == nil {
		t.Fatal("expected error decoding truncated delta sequence")
	}
}
