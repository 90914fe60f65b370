// Package packed implements fixed-bit-width packed integer arrays
// (spec.md §4.6): a logical sequence of N unsigned integers of bit width
// B in [1,64], stored in physical slots (a []uint64 for Array, a []uint32
// for Array32) whose slot width S is a power of two >= B, little-endian by bit
// position within a slot. Element count is tracked externally — the
// physical buffer carries no length, matching spec.md's data model.
//
// Array is the general-purpose, runtime-dispatched implementation (any
// bitsPerValue/slotBits pair, spec.md §9's "runtime dispatch ... is
// acceptable"); Array32 is the monomorphized 32-bit-slot fast path,
// patterned on the teacher's preference for
// a dedicated []uint32-backed type over a generic slice (engine.go's
// btree.BTree is the analogous "one concrete shape for the hot path"
// choice there).
package packed

import (
	"fmt"

	"github.com/dkit/dkit/pkg/dkiterrors"
)

// Array is a packed array of bitsPerValue-wide unsigned integers backed
// by slots of slotBits width (a power of two >= bitsPerValue, default
// 32).
type Array struct {
	slots        []uint64
	bitsPerValue uint
	slotBits     uint
	slotMask     uint64
	valueMask    uint64
}

// New creates an empty packed array with the given bit width per value
// and slot width (0 selects the default of 32).
func New(bitsPerValue int, slotBits int) (*Array, error) {
	if bitsPerValue < 1 || bitsPerValue > 64 {
		return nil, fmt.Errorf("%w: bitsPerValue %d out of [1,64]", dkiterrors.ErrInvalidArgument, bitsPerValue)
	}
	if slotBits == 0 {
		slotBits = 32
	}
	if slotBits&(slotBits-1) != 0 {
		return nil, fmt.Errorf("%w: slotBits %d is not a power of two", dkiterrors.ErrInvalidArgument, slotBits)
	}
	if slotBits < bitsPerValue {
		return nil, fmt.Errorf("%w: slotBits %d smaller than bitsPerValue %d", dkiterrors.ErrInvalidArgument, slotBits, bitsPerValue)
	}
	if slotBits > 64 {
		return nil, fmt.Errorf("%w: slotBits %d exceeds 64", dkiterrors.ErrInvalidArgument, slotBits)
	}

	a := &Array{
		bitsPerValue: uint(bitsPerValue),
		slotBits:     uint(slotBits),
	}
	if slotBits == 64 {
		a.slotMask = ^uint64(0)
	} else {
		a.slotMask = (uint64(1) << uint(slotBits)) - 1
	}
	if bitsPerValue == 64 {
		a.valueMask = ^uint64(0)
	} else {
		a.valueMask = (uint64(1) << uint(bitsPerValue)) - 1
	}
	return a, nil
}

// Reserve ensures the backing storage can hold at least n logical
// elements without further growth.
func (a *Array) Reserve(n int) {
	need := a.slotsFor(n)
	if len(a.slots) >= need {
		return
	}
	grown := make([]uint64, need)
	copy(grown, a.slots)
	a.slots = grown
}

func (a *Array) slotsFor(n int) int {
	bits := uint64(n) * uint64(a.bitsPerValue)
	return int((bits + uint64(a.slotBits) - 1) / uint64(a.slotBits))
}

func (a *Array) bitOffset(i int) (slotIdx int, startBit uint) {
	bitPos := uint64(i) * uint64(a.bitsPerValue)
	return int(bitPos / uint64(a.slotBits)), uint(bitPos % uint64(a.slotBits))
}

// ensureCapacity grows the backing slice so that logical index i is
// addressable.
func (a *Array) ensureCapacity(i int) {
	slotIdx, _ := a.bitOffset(i)
	// the value at i may span into slotIdx+1
	needed := slotIdx + 2
	if len(a.slots) >= needed {
		return
	}
	grown := make([]uint64, needed)
	copy(grown, a.slots)
	a.slots = grown
}

// Set writes v at logical index i. v must satisfy v < 2^bitsPerValue.
func (a *Array) Set(i int, v uint64) error {
	if v&^a.valueMask != 0 {
		return fmt.Errorf("%w: value %d does not fit %d bits", dkiterrors.ErrInvalidArgument, v, a.bitsPerValue)
	}
	a.ensureCapacity(i)

	slotIdx, startBit := a.bitOffset(i)
	v &= a.valueMask

	if a.bitsPerValue <= a.slotBits-startBit {
		// fits entirely within slots[slotIdx]
		clearMask := (a.valueMask << startBit) & a.slotMask
		a.slots[slotIdx] = (a.slots[slotIdx] &^ clearMask) | ((v << startBit) & a.slotMask)
		return nil
	}

	// spans slots[slotIdx] and slots[slotIdx+1]
	lowBits := a.slotBits - startBit
	low := v << startBit
	clearLow := (a.slotMask << startBit) & a.slotMask
	a.slots[slotIdx] = (a.slots[slotIdx] &^ clearLow) | (low & a.slotMask)

	high := v >> lowBits
	highBits := a.bitsPerValue - lowBits
	highMask := (uint64(1) << highBits) - 1
	a.slots[slotIdx+1] = (a.slots[slotIdx+1] &^ highMask) | (high & highMask)
	return nil
}

// Get reads the value at logical index i.
func (a *Array) Get(i int) uint64 {
	slotIdx, startBit := a.bitOffset(i)
	if slotIdx >= len(a.slots) {
		return 0
	}

	if a.bitsPerValue <= a.slotBits-startBit {
		return (a.slots[slotIdx] >> startBit) & a.valueMask
	}

	lowBits := a.slotBits - startBit
	low := (a.slots[slotIdx] >> startBit) & ((uint64(1) << lowBits) - 1)
	var high uint64
	if slotIdx+1 < len(a.slots) {
		highBits := a.bitsPerValue - lowBits
		highMask := (uint64(1) << highBits) - 1
		high = a.slots[slotIdx+1] & highMask
	}
	return low | (high << lowBits)
}

// SetIncr adds delta (which may be negative, expressed as an int64) to
// the value at i, saturating at 0 and at 2^bitsPerValue-1 rather than
// wrapping (spec.md §4.6).
func (a *Array) SetIncr(i int, delta int64) error {
	cur := a.Get(i)
	var next uint64
	if delta >= 0 {
		d := uint64(delta)
		if cur > a.valueMask-d {
			next = a.valueMask // saturate high
		} else {
			next = cur + d
		}
	} else {
		d := uint64(-delta)
		if d > cur {
			next = 0 // saturate low
		} else {
			next = cur - d
		}
	}
	return a.Set(i, next)
}

// SetHalf halves the value at i (integer division by two), a no-op at
// zero.
func (a *Array) SetHalf(i int) error {
	cur := a.Get(i)
	if cur == 0 {
		return nil
	}
	return a.Set(i, cur/2)
}

// BinarySearch returns the leftmost index j in [0,count) such that
// Get(j) >= v, or count if no such index exists. It does not early-exit
// on an exact match (spec.md §4.6, §9's "extra iterations avoid a branch
// and aid cache-resident arrays").
func (a *Array) BinarySearch(count int, v uint64) int {
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

// Member returns the index of v within [0,count) if present, else -1.
func (a *Array) Member(count int, v uint64) int {
	i := a.BinarySearch(count, v)
	if i < count && a.Get(i) == v {
		return i
	}
	return -1
}

// Insert shifts elements [i,count) up by one position and writes v at i.
// Shifting proceeds tail-to-head so no element is overwritten before
// being read.
func (a *Array) Insert(count, i int, v uint64) error {
	a.ensureCapacity(count)
	for j := count; j > i; j-- {
		if err := a.Set(j, a.Get(j-1)); err != nil {
			return err
		}
	}
	return a.Set(i, v)
}

// InsertSorted finds v's sorted position via BinarySearch and inserts it
// there.
func (a *Array) InsertSorted(count int, v uint64) (int, error) {
	i := a.BinarySearch(count, v)
	if err := a.Insert(count, i, v); err != nil {
		return 0, err
	}
	return i, nil
}

// Delete removes the element at i, shifting [i+1,count) down by one.
// The trailing element (formerly at count-1) is left with its old value
// (spec.md: "the trailing element is not cleared").
func (a *Array) Delete(count, i int) error {
	for j := i; j < count-1; j++ {
		if err := a.Set(j, a.Get(j+1)); err != nil {
			return err
		}
	}
	return nil
}

// SlotCount returns the number of slots currently allocated (for diagnostics
// and testing, not a logical element count — spec.md tracks count
// externally).
func (a *Array) SlotCount() int {
	return len(a.slots)
}
