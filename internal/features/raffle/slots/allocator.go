package slots

import (
	"errors"
	"fmt"
)

var (
	ErrSlotAlreadyTaken     = errors.New("slot already taken")
	ErrSlotIndexOutOfRange  = errors.New("slot index out of range")
	ErrPartialBatchConflict = errors.New("some requested slots are already taken")
	ErrDuplicateSlot        = errors.New("duplicate slot in batch")
)

// Allocator tracks slot occupancy for a raffle of a fixed size with a
// compact bitmap. A slot index is valid in [0, size). Claims are
// all-or-nothing: a batch either marks every requested slot or none.
type Allocator struct {
	size  uint32
	taken uint32
	words []uint64
}

// New returns an empty allocator for size slots.
func New(size uint32) *Allocator {
	return &Allocator{
		size:  size,
		words: make([]uint64, (int(size)+63)/64),
	}
}

// FromWords restores an allocator from a persisted bitmap.
func FromWords(size uint32, words []uint64) (*Allocator, error) {
	want := (int(size) + 63) / 64
	if len(words) != want {
		return nil, fmt.Errorf("bitmap length mismatch: got %d words, want %d", len(words), want)
	}
	a := &Allocator{size: size, words: words}
	for _, w := range words {
		for ; w != 0; w &= w - 1 {
			a.taken++
		}
	}
	if a.taken > size {
		return nil, fmt.Errorf("bitmap has %d bits set for size %d", a.taken, size)
	}
	return a, nil
}

func (a *Allocator) Size() uint32 { return a.size }

// Taken returns the number of occupied slots.
func (a *Allocator) Taken() uint32 { return a.taken }

// Words exposes the raw bitmap for persistence.
func (a *Allocator) Words() []uint64 { return a.words }

// IsFree reports whether the slot at index is unoccupied.
func (a *Allocator) IsFree(index uint32) (bool, error) {
	if index >= a.size {
		return false, fmt.Errorf("%w: %d (size %d)", ErrSlotIndexOutOfRange, index, a.size)
	}
	return a.words[index/64]&(1<<(index%64)) == 0, nil
}

// Claim marks a single slot occupied. It fails without mutation if the
// index is out of range or the slot is already taken.
func (a *Allocator) Claim(index uint32) error {
	free, err := a.IsFree(index)
	if err != nil {
		return err
	}
	if !free {
		return fmt.Errorf("%w: %d", ErrSlotAlreadyTaken, index)
	}
	a.words[index/64] |= 1 << (index % 64)
	a.taken++
	return nil
}

// ClaimBatch claims every listed slot atomically: validation of the whole
// batch runs before any bit is set, so a conflict leaves the bitmap
// untouched.
func (a *Allocator) ClaimBatch(indices []uint32) error {
	seen := make(map[uint32]struct{}, len(indices))
	for _, index := range indices {
		if _, dup := seen[index]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateSlot, index)
		}
		seen[index] = struct{}{}

		free, err := a.IsFree(index)
		if err != nil {
			return err
		}
		if !free {
			return fmt.Errorf("%w: slot %d", ErrPartialBatchConflict, index)
		}
	}

	for _, index := range indices {
		a.words[index/64] |= 1 << (index % 64)
	}
	a.taken += uint32(len(indices))
	return nil
}

// Occupied enumerates all taken slot indices in ascending order.
func (a *Allocator) Occupied() []uint32 {
	out := make([]uint32, 0, a.taken)
	for i := uint32(0); i < a.size; i++ {
		if a.words[i/64]&(1<<(i%64)) != 0 {
			out = append(out, i)
		}
	}
	return out
}

// Free enumerates all unoccupied slot indices in ascending order.
func (a *Allocator) Free() []uint32 {
	out := make([]uint32, 0, a.size-a.taken)
	for i := uint32(0); i < a.size; i++ {
		if a.words[i/64]&(1<<(i%64)) == 0 {
			out = append(out, i)
		}
	}
	return out
}

// NextFree returns the lowest unoccupied slot index, or false when full.
func (a *Allocator) NextFree() (uint32, bool) {
	for w, word := range a.words {
		if word == ^uint64(0) {
			continue
		}
		for b := 0; b < 64; b++ {
			index := uint32(w*64 + b)
			if index >= a.size {
				return 0, false
			}
			if word&(1<<uint(b)) == 0 {
				return index, true
			}
		}
	}
	return 0, false
}
