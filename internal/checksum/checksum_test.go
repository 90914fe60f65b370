package checksum

import (
	"testing"

	"github.com/dkit/dkit/pkg/dkittypes"
)

func TestComputeVerify(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	for _, algo := range []dkittypes.ChecksumAlgo{dkittypes.Algo32, dkittypes.Algo64, dkittypes.Algo128} {
		v, err := Compute(algo, data)
		if err != nil {
			t.Fatalf("Compute(%v): %v", algo, err)
		}
		if v.Len != algo.Len() {
			t.Fatalf("Compute(%v) len = %d, want %d", algo, v.Len, algo.Len())
		}
		if !Verify(v, data) {
			t.Fatalf("Verify(%v) = false, want true", algo)
		}
		corrupted := append([]byte(nil), data...)
		corrupted[0] ^= 0x01
		if Verify(v, corrupted) {
			t.Fatalf("Verify(%v) against corrupted data = true, want false", algo)
		}
	}
}

func TestNoneNeverMatches(t *testing.T) {
	none, _ := Compute(dkittypes.AlgoNone, []byte("x"))
	some, _ := Compute(dkittypes.Algo32, []byte("x"))
	if Equal(none, some) {
		t.Fatal("none checksum matched a real one")
	}
	if none.Len != 0 {
		t.Fatalf("none checksum len = %d, want 0", none.Len)
	}
}

func TestInvalidAlgoRejected(t *testing.T) {
	if _, err := Compute(dkittypes.ChecksumAlgo(99), []byte("x")); err == nil {
		t.Fatal("expected error for unrecognized algorithm")
	}
}

func TestRoundTripBytes(t *testing.T) {
	v, _ := Compute(dkittypes.Algo64, []byte("roundtrip"))
	back, err := FromBytes(dkittypes.Algo64, v.Bytes())
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if !Equal(v, back) {
		t.Fatal("FromBytes(Bytes()) did not reconstruct the original value")
	}
}
