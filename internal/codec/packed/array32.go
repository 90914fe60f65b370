package packed

import (
	"fmt"

	"github.com/dkit/dkit/pkg/dkiterrors"
)

// Array32 is the monomorphized 32-bit-slot packed array for the default
// slot width (spec.md §9:
// "the hot-path B should be a type parameter"; here it is a dedicated
// []uint32 backing rather than the generic []uint64 Array uses).
type Array32 struct {
	slots        []uint32
	bitsPerValue uint
	valueMask    uint32
}

// NewArray32 creates an empty 32-bit-slot packed array for values of the
// given bit width (<= 32).
func NewArray32(bitsPerValue int) (*Array32, error) {
	if bitsPerValue < 1 || bitsPerValue > 32 {
		return nil, fmt.Errorf("%w: bitsPerValue %d out of [1,32] for Array32", dkiterrors.ErrInvalidArgument, bitsPerValue)
	}
	a := &Array32{bitsPerValue: uint(bitsPerValue)}
	if bitsPerValue == 32 {
		a.valueMask = ^uint32(0)
	} else {
		a.valueMask = (uint32(1) << uint(bitsPerValue)) - 1
	}
	return a, nil
}

func (a *Array32) bitOffset(i int) (slotIdx int, startBit uint) {
	bitPos := uint64(i) * uint64(a.bitsPerValue)
	return int(bitPos / 32), uint(bitPos % 32)
}

func (a *Array32) ensureCapacity(i int) {
	slotIdx, _ := a.bitOffset(i)
	needed := slotIdx + 2
	if len(a.slots) >= needed {
		return
	}
	grown := make([]uint32, needed)
	copy(grown, a.slots)
	a.slots = grown
}

// Set writes v (< 2^bitsPerValue) at logical index i.
func (a *Array32) Set(i int, v uint32) error {
	if v&^a.valueMask != 0 {
		return fmt.Errorf("%w: value %d does not fit %d bits", dkiterrors.ErrInvalidArgument, v, a.bitsPerValue)
	}
	a.ensureCapacity(i)
	slotIdx, startBit := a.bitOffset(i)

	if a.bitsPerValue <= 32-startBit {
		clearMask := (a.valueMask << startBit)
		a.slots[slotIdx] = (a.slots[slotIdx] &^ clearMask) | (v << startBit)
		return nil
	}

	lowBits := 32 - startBit
	a.slots[slotIdx] = (a.slots[slotIdx] &^ (^uint32(0) << startBit)) | (v << startBit)

	high := v >> lowBits
	highBits := a.bitsPerValue - lowBits
	highMask := (uint32(1) << highBits) - 1
	a.slots[slotIdx+1] = (a.slots[slotIdx+1] &^ highMask) | (high & highMask)
	return nil
}

// Get reads the value at logical index i.
func (a *Array32) Get(i int) uint32 {
	slotIdx, startBit := a.bitOffset(i)
	if slotIdx >= len(a.slots) {
		return 0
	}
	if a.bitsPerValue <= 32-startBit {
		return (a.slots[slotIdx] >> startBit) & a.valueMask
	}
	lowBits := 32 - startBit
	low := (a.slots[slotIdx] >> startBit) & ((uint32(1) << lowBits) - 1)
	var high uint32
	if slotIdx+1 < len(a.slots) {
		highBits := a.bitsPerValue - lowBits
		highMask := (uint32(1) << highBits) - 1
		high = a.slots[slotIdx+1] & highMask
	}
	return low | (high << lowBits)
}

// BinarySearch returns the leftmost index j in [0,count) with Get(j) >= v.
func (a *Array32) BinarySearch(count int, v uint32) int {
	lo, hi := 0, count
	for lo < hi {
		mid := lo + (hi-lo)/2
		if a.Get(mid) < v {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Member returns the index of v in [0,count), or -1.
func (a *Array32) Member(count int, v uint32) int {
	i := a.BinarySearch(count, v)
	if i < count && a.Get(i) == v {
		return i
	}
	return -1
}

// Insert shifts [i,count) up one slot, tail-to-head, then writes v at i.
func (a *Array32) Insert(count, i int, v uint32) error {
	a.ensureCapacity(count)
	for j := count; j > i; j-- {
		if err := a.Set(j, a.Get(j-1)); err != nil {
			return err
		}
	}
	return a.Set(i, v)
}

// InsertSorted finds v's sorted position and inserts it there.
func (a *Array32) InsertSorted(count int, v uint32) (int, error) {
	i := a.BinarySearch(count, v)
	if err := a.Insert(count, i, v); err != nil {
		return 0, err
	}
	return i, nil
}

// Delete removes the element at i, shifting (i,count) down one slot. The
// trailing element is left with its old value.
func (a *Array32) Delete(count, i int) error {
	for j := i; j < count-1; j++ {
		if err := a.Set(j, a.Get(j+1)); err != nil {
			return err
		}
	}
	return nil
}
