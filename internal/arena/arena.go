// Package arena implements a bump allocator used as the backing store for a
// memtable's skiplist. Keys and values are copied into one contiguous
// buffer, both to keep the skiplist's working set compact and so node
// offsets (rather than pointers) can be used for the tower links — a
// memtable's approximate size is simply the arena's position.
package arena

import (
	"errors"

	"boulder/internal/arch"
)

// ErrArenaFull is returned by Alloc when the arena has no room left for the
// requested allocation.
var ErrArenaFull = errors.New("arena: allocation failed, arena is full")

// Arena is a bump allocator over a single pre-sized byte buffer. Offset 0 is
// reserved as a nil sentinel, so a valid allocation never starts at 0.
// Alloc is safe to call concurrently: it claims space with a single atomic
// add, matching the single-writer-multi-reader contract of the memtable.
type Arena struct {
	position arch.AtomicUint
	buf      []byte
}

// New allocates a new arena with the given capacity in bytes.
func New(size uint) *Arena {
	a := &Arena{buf: make([]byte, size)}
	a.position.Store(1)
	return a
}

// Alloc reserves size bytes aligned to alignment (which must be a power of
// two) and returns the offset of the start of the allocation. It returns
// ErrArenaFull if the arena does not have enough remaining capacity.
func (a *Arena) Alloc(size, alignment uint) (offset uint, err error) {
	// Pad the allocation so that, wherever the bump pointer currently sits,
	// there is room to round up to the requested alignment.
	padded := size + alignment - 1

	newPosition := uint(a.position.Add(arch.UintToArchSize(padded)))
	if newPosition > uint(len(a.buf)) {
		return 0, ErrArenaFull
	}

	offset = (newPosition - padded + alignment - 1) &^ (alignment - 1)
	return offset, nil
}

// Bytes returns the size bytes starting at offset. The returned slice's
// capacity is bounded to size so a caller cannot accidentally write past the
// end of its own allocation.
func (a *Arena) Bytes(offset, size uint) []byte {
	if offset == 0 {
		return nil
	}
	return a.buf[offset : offset+size : offset+size]
}

// Size returns the number of bytes allocated so far (excluding the reserved
// nil offset).
func (a *Arena) Size() uint {
	pos := uint(a.position.Load())
	if pos == 0 {
		return 0
	}
	return pos - 1
}

// Cap returns the total capacity of the arena's backing buffer.
func (a *Arena) Cap() uint {
	return uint(len(a.buf))
}

// Reset rewinds the arena to empty so its buffer can be reused by a new
// skiplist. The caller must guarantee no other goroutine holds references
// into the old contents.
func (a *Arena) Reset() {
	a.position.Store(1)
}
