// Package batch groups internal key/value pairs into one ordered unit. The
// engine does not use it: each Put or Delete reaches the memtable and the
// WAL as a single entry.
//
// There is no public multi-call batch builder, since accumulating writes
// across calls before committing them would amount to a multi-key
// transaction.
package batch

import "boulder/internal/base"

// Batch is an ordered group of internal key/value pairs.
type Batch struct {
	kvs []base.InternalKV
}

// New returns an empty Batch.
func New() *Batch {
	return &Batch{}
}

// Set appends a value entry.
func (b *Batch) Set(key []byte, seq base.SeqNum, value []byte) {
	b.kvs = append(b.kvs, base.InternalKV{
		K: base.MakeInternalKey(key, seq, base.InternalKeyKindSet),
		V: append([]byte(nil), value...),
	})
}

// Delete appends a tombstone entry.
func (b *Batch) Delete(key []byte, seq base.SeqNum) {
	b.kvs = append(b.kvs, base.InternalKV{
		K: base.MakeInternalKey(key, seq, base.InternalKeyKindDelete),
		V: nil,
	})
}

// Entries returns the batch's internal key/value pairs in insertion order.
func (b *Batch) Entries() []base.InternalKV { return b.kvs }

// Len returns the number of entries in the batch.
func (b *Batch) Len() int { return len(b.kvs) }

// Empty reports whether the batch has no entries.
func (b *Batch) Empty() bool { return len(b.kvs) == 0 }
