// Package iterator defines the common forward-iteration interface shared by
// memtables, sstables, and the k-way merging iterator composed from them.
//
// A single shared interface, rather than one copy per source, keeps the
// merging iterator in internal/mergeiter agnostic to where a key came from.
package iterator

import "boulder/internal/base"

// Iterator walks a sequence of internal keys in increasing order.
type Iterator interface {
	// First positions the iterator at the first entry, returning false if
	// the sequence is empty.
	First() bool
	// Next advances to the following entry, returning false once exhausted.
	Next() bool
	// SeekGE positions the iterator at the first entry whose key is
	// greater than or equal to key, returning false if none exists.
	SeekGE(key base.InternalKey) bool
	// Valid reports whether the iterator is currently positioned on an
	// entry.
	Valid() bool
	// Key returns the current entry's internal key. Valid must be true.
	Key() base.InternalKey
	// Value returns the current entry's value. Valid must be true.
	Value() []byte
}
