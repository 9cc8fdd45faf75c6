// Package base defines the internal key representation shared by every
// layer of the engine: the memtable skiplist, the block/sstable format, the
// merging iterator, and the manifest.
package base

import "sync/atomic"

// SeqNum is a sequence number defining precedence among identical user keys.
// A key with a higher sequence number takes precedence over an equal user
// key with a lower sequence number. As writes are committed, they are
// assigned strictly increasing sequence numbers from a single engine-wide
// counter. Readers use a sequence number to read a consistent snapshot of
// the database, ignoring keys with a sequence number greater than the
// reader's visible sequence number.
type SeqNum uint64

const (
	// SeqNumZero never appears on a committed key; wal.Replay returns it
	// for a missing or empty log.
	SeqNumZero SeqNum = 0
	// SeqNumStart is the engine's last-assigned sequence number in a fresh
	// database, so the first write is assigned SeqNumStart+1.
	SeqNumStart SeqNum = 1
	// SeqNumMax is the largest representable sequence number (56 bits, to
	// leave room for the 1-byte kind in the trailer).
	SeqNumMax SeqNum = 1<<56 - 1
)

// AtomicSeqNum is a SeqNum that can be manipulated concurrently.
type AtomicSeqNum struct {
	value atomic.Uint64
}

// Load atomically loads and returns the stored SeqNum.
func (a *AtomicSeqNum) Load() SeqNum { return SeqNum(a.value.Load()) }

// Store atomically stores s.
func (a *AtomicSeqNum) Store(s SeqNum) { a.value.Store(uint64(s)) }

// Add atomically adds delta to a and returns the new value.
func (a *AtomicSeqNum) Add(delta SeqNum) SeqNum { return SeqNum(a.value.Add(uint64(delta))) }

// CompareAndSwap executes the compare-and-swap operation.
func (a *AtomicSeqNum) CompareAndSwap(old, new SeqNum) bool {
	return a.value.CompareAndSwap(uint64(old), uint64(new))
}
