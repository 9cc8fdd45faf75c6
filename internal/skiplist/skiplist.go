// Package skiplist implements the ordered in-memory structure backing a
// memtable. It is a single-writer, multi-reader skiplist: inserts must be
// externally serialized (the engine does this with its write mutex), but
// readers may run concurrently with a writer and with each other, observing
// either the pre- or post-insert state but never a torn one.
//
// Key and value bytes are bump-allocated out of an arena so the memtable's
// encoded size (ApproximateSize) is cheap to track and so repeated inserts
// of similar-length keys don't fragment the Go heap.
package skiplist

import (
	"math/rand"
	"sync/atomic"

	"boulder/internal/arena"
	"boulder/internal/base"
	"boulder/internal/compare"
)

const (
	maxHeight = 20
	pValue    = 0.25
)

// entryOverhead approximates the bookkeeping cost of a single skiplist
// entry (trailer + length prefixes), added to key+value bytes when
// accounting a memtable's approximate size.
const entryOverhead = 16

type node struct {
	keyOffset, keySize uint32
	valOffset, valSize uint32
	trailer            base.InternalKeyTrailer
	tower              []atomic.Pointer[node]
}

func (n *node) key(a *arena.Arena) []byte {
	return a.Bytes(uint(n.keyOffset), uint(n.keySize))
}

func (n *node) value(a *arena.Arena) []byte {
	return a.Bytes(uint(n.valOffset), uint(n.valSize))
}

func (n *node) internalKey(a *arena.Arena) base.InternalKey {
	return base.InternalKey{UserKey: n.key(a), Trailer: n.trailer}
}

func (n *node) next(level int) *node {
	return n.tower[level].Load()
}

func (n *node) setNext(level int, next *node) {
	n.tower[level].Store(next)
}

// Skiplist is an ordered set of internal keys.
type Skiplist struct {
	arena  *arena.Arena
	cmp    compare.Compare
	head   *node
	height atomic.Uint32 // 1 <= height <= maxHeight

	size atomic.Uint64
}

// New creates an empty skiplist whose key/value bytes are allocated from a.
func New(a *arena.Arena, cmp compare.Compare) *Skiplist {
	s := &Skiplist{arena: a, cmp: cmp}
	s.head = &node{tower: make([]atomic.Pointer[node], maxHeight)}
	s.height.Store(1)
	return s
}

// Arena returns the arena backing this skiplist's key/value bytes.
func (s *Skiplist) Arena() *arena.Arena { return s.arena }

// ApproximateSize returns the cumulative encoded size of every entry added
// so far, used by the memtable to decide when to rotate.
func (s *Skiplist) ApproximateSize() uint {
	return uint(s.size.Load())
}

func randomHeight() int {
	h := 1
	for h < maxHeight && rand.Float64() < pValue {
		h++
	}
	return h
}

// ErrRecordExists is returned by Add when an identical internal key (same
// user key AND sequence number) is already present. Callers should bump the
// sequence number and retry.
var ErrRecordExists = errIdentical{}

type errIdentical struct{}

func (errIdentical) Error() string { return "skiplist: record with this internal key already exists" }

// ErrArenaFull is returned by Add when the backing arena has no room for the
// new entry's key/value bytes.
var ErrArenaFull = arena.ErrArenaFull

// Add inserts key/value into the skiplist. The caller must ensure Add is
// never called concurrently with another Add on the same skiplist (see
// package doc); concurrent Find/iteration is always safe.
func (s *Skiplist) Add(key base.InternalKey, value []byte) error {
	var preds [maxHeight]*node
	var succs [maxHeight]*node

	listHeight := int(s.height.Load())
	found := s.findSplice(key, listHeight, preds[:], succs[:])
	if found {
		return ErrRecordExists
	}

	keyOff, err := s.arena.Alloc(uint(len(key.UserKey)), 1)
	if err != nil {
		return ErrArenaFull
	}
	copy(s.arena.Bytes(keyOff, uint(len(key.UserKey))), key.UserKey)

	var valOff uint
	if len(value) > 0 {
		valOff, err = s.arena.Alloc(uint(len(value)), 1)
		if err != nil {
			return ErrArenaFull
		}
		copy(s.arena.Bytes(valOff, uint(len(value))), value)
	}

	height := randomHeight()
	nd := &node{
		keyOffset: uint32(keyOff),
		keySize:   uint32(len(key.UserKey)),
		valOffset: uint32(valOff),
		valSize:   uint32(len(value)),
		trailer:   key.Trailer,
		tower:     make([]atomic.Pointer[node], height),
	}

	if height > listHeight {
		// Any new levels start out pointing directly from head to tail
		// (nil); findSplice above only populated preds/succs up to
		// listHeight.
		for i := listHeight; i < height; i++ {
			preds[i] = s.head
			succs[i] = nil
		}
		s.height.Store(uint32(height))
	}

	for i := 0; i < height; i++ {
		nd.setNext(i, succs[i])
		preds[i].setNext(i, nd)
	}

	s.size.Add(uint64(len(key.UserKey)) + uint64(len(value)) + entryOverhead)
	return nil
}

// findSplice locates, at every level from listHeight-1 down to 0, the
// predecessor and successor node bracketing key. It returns true if a node
// with an identical internal key already exists.
func (s *Skiplist) findSplice(key base.InternalKey, listHeight int, preds, succs []*node) bool {
	prev := s.head
	found := false
	for level := listHeight - 1; level >= 0; level-- {
		next := prev.next(level)
		for next != nil {
			c := base.Compare(s.cmp, next.internalKey(s.arena), key)
			if c < 0 {
				prev = next
				next = prev.next(level)
				continue
			}
			if c == 0 {
				found = true
			}
			break
		}
		preds[level] = prev
		succs[level] = next
	}
	return found
}

// NewIter returns a forward iterator positioned before the first entry.
func (s *Skiplist) NewIter() *Iterator {
	return &Iterator{s: s}
}
