// Package mergeiter implements the k-way merging iterator that presents an
// engine's active memtable, immutable memtables and every live sstable as a
// single ordered stream: newest version of each user key only, entries
// newer than the read's pinned sequence number hidden entirely, and
// tombstones passed through as real entries so a caller can tell "deleted"
// apart from "never written".
//
// Built directly against stdlib container/heap, the standard tool for an
// N-way merge, the same way a LevelDB/Pebble-style storage engine uses it.
package mergeiter

import (
	"container/heap"

	"boulder/internal/base"
	"boulder/internal/compare"
	"boulder/internal/iterator"
)

type iterHeap struct {
	iters []iterator.Iterator
	cmp   compare.Compare
}

func (h *iterHeap) Len() int { return len(h.iters) }
func (h *iterHeap) Less(i, j int) bool {
	return base.Compare(h.cmp, h.iters[i].Key(), h.iters[j].Key()) < 0
}
func (h *iterHeap) Swap(i, j int) { h.iters[i], h.iters[j] = h.iters[j], h.iters[i] }
func (h *iterHeap) Push(x any)    { h.iters = append(h.iters, x.(iterator.Iterator)) }
func (h *iterHeap) Pop() any {
	old := h.iters
	n := len(old)
	it := old[n-1]
	h.iters = old[:n-1]
	return it
}

// MergeIterator merges any number of source iterators, newest-first
// collapsing of duplicate user keys, filtered to a fixed read sequence
// number. Source iterators should be supplied in no particular priority
// order: global sequence numbers alone determine recency, since every
// write across every source was assigned a strictly increasing one.
type MergeIterator struct {
	srcs    []iterator.Iterator
	cmp     compare.Compare
	readSeq base.SeqNum
	heap    *iterHeap

	curKey   base.InternalKey
	curValue []byte
	valid    bool
}

// New constructs a MergeIterator over srcs, visible only to entries with
// sequence number <= readSeq.
func New(cmp compare.Compare, readSeq base.SeqNum, srcs ...iterator.Iterator) *MergeIterator {
	return &MergeIterator{
		srcs:    srcs,
		cmp:     cmp,
		readSeq: readSeq,
		heap:    &iterHeap{cmp: cmp},
	}
}

func skipForward(it iterator.Iterator, ok bool, readSeq base.SeqNum) bool {
	for ok && it.Key().SeqNum() > readSeq {
		ok = it.Next()
	}
	return ok
}

func (m *MergeIterator) rebuildHeap(position func(iterator.Iterator) bool) bool {
	m.heap.iters = m.heap.iters[:0]
	for _, src := range m.srcs {
		if skipForward(src, position(src), m.readSeq) {
			m.heap.iters = append(m.heap.iters, src)
		}
	}
	heap.Init(m.heap)
	return m.advance()
}

// First positions the iterator at the smallest visible user key across
// every source.
func (m *MergeIterator) First() bool {
	return m.rebuildHeap(func(it iterator.Iterator) bool { return it.First() })
}

// SeekGE positions the iterator at the first visible entry whose user key
// is greater than or equal to key's user key.
func (m *MergeIterator) SeekGE(key base.InternalKey) bool {
	return m.rebuildHeap(func(it iterator.Iterator) bool { return it.SeekGE(key) })
}

// advanceAndReinsert moves it past its current entry and, if a visible
// entry remains, pushes it back onto the heap.
func (m *MergeIterator) advanceAndReinsert(it iterator.Iterator) {
	if skipForward(it, it.Next(), m.readSeq) {
		heap.Push(m.heap, it)
	}
}

// advance pops the minimum entry across every source, discarding any other
// heap entries that share the same user key (older versions), and leaves
// the iterator positioned on the surviving, newest entry.
func (m *MergeIterator) advance() bool {
	if m.heap.Len() == 0 {
		m.valid = false
		return false
	}

	top := heap.Pop(m.heap).(iterator.Iterator)
	m.curKey = top.Key()
	m.curValue = top.Value()
	m.advanceAndReinsert(top)

	for m.heap.Len() > 0 && m.cmp(m.heap.iters[0].Key().UserKey, m.curKey.UserKey) == 0 {
		dup := heap.Pop(m.heap).(iterator.Iterator)
		m.advanceAndReinsert(dup)
	}

	m.valid = true
	return true
}

// Next advances to the next distinct user key.
func (m *MergeIterator) Next() bool {
	if !m.valid {
		return false
	}
	return m.advance()
}

// Valid reports whether the iterator is positioned on an entry.
func (m *MergeIterator) Valid() bool { return m.valid }

// Key returns the current entry's internal key.
func (m *MergeIterator) Key() base.InternalKey { return m.curKey }

// Value returns the current entry's value.
func (m *MergeIterator) Value() []byte { return m.curValue }

var _ iterator.Iterator = (*MergeIterator)(nil)
