package sstable

import (
	"boulder/internal/base"
	"boulder/internal/block"
)

// Iterator walks every entry of a table in increasing internal-key order,
// transparently advancing across data block boundaries via the index.
type Iterator struct {
	r      *Reader
	idxIt  *block.Iterator
	dataIt *block.Iterator
	valid  bool
}

func (it *Iterator) loadBlockAt(idxValid bool) bool {
	if !idxValid {
		it.dataIt = nil
		it.valid = false
		return false
	}
	handle, _, err := block.DecodeHandle(it.idxIt.Value())
	if err != nil {
		it.valid = false
		return false
	}
	dr, err := it.r.readDataBlock(handle)
	if err != nil {
		it.valid = false
		return false
	}
	it.dataIt = dr.NewIter()
	return true
}

// First positions the iterator at the table's first entry.
func (it *Iterator) First() bool {
	if !it.loadBlockAt(it.idxIt.First()) {
		return false
	}
	if !it.dataIt.First() {
		return it.advanceBlock()
	}
	it.valid = true
	return true
}

// advanceBlock moves to the next data block after the current one is
// exhausted.
func (it *Iterator) advanceBlock() bool {
	for it.idxIt.Next() {
		if !it.loadBlockAt(true) {
			return false
		}
		if it.dataIt.First() {
			it.valid = true
			return true
		}
	}
	it.valid = false
	return false
}

// Next advances to the following entry, crossing into the next data block
// if the current one is exhausted.
func (it *Iterator) Next() bool {
	if !it.valid {
		return false
	}
	if it.dataIt.Next() {
		return true
	}
	return it.advanceBlock()
}

// SeekGE positions the iterator at the first entry whose internal key is
// greater than or equal to key.
func (it *Iterator) SeekGE(key base.InternalKey) bool {
	if !it.loadBlockAt(it.idxIt.SeekGE(key)) {
		return false
	}
	if it.dataIt.SeekGE(key) {
		it.valid = true
		return true
	}
	return it.advanceBlock()
}

// Valid reports whether the iterator is positioned on an entry.
func (it *Iterator) Valid() bool { return it.valid }

// Key returns the current entry's internal key.
func (it *Iterator) Key() base.InternalKey { return it.dataIt.Key() }

// Value returns the current entry's value.
func (it *Iterator) Value() []byte { return it.dataIt.Value() }
