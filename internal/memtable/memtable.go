// Package memtable implements the mutable, in-memory write buffer fronting
// an engine: an arena-backed skiplist paired with the write-ahead log that
// makes its contents durable before they are acknowledged.
//
// The original repo's pkg/memtable/memtable.go had the right shape —
// reference counting so a memtable mid-flush can still serve readers, a
// WaitGroup tracking in-flight writers so a flush never observes a torn
// insert, an atomic readOnly flag gating new writes — built against a
// skiplist that didn't compile. This keeps that shape and wires it to the
// real skiplist and wal packages.
package memtable

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"boulder/internal/arena"
	"boulder/internal/base"
	"boulder/internal/compare"
	"boulder/internal/skiplist"
	"boulder/internal/wal"
)

var (
	// ErrRecordExists is returned by Add when an identical internal key is
	// already present; the caller should bump the sequence number and retry.
	ErrRecordExists = errors.New("memtable: record with this internal key already exists")
	// ErrMemtableFull is returned by Add when the memtable's arena has no
	// room left for the new entry; the caller must rotate to a new memtable
	// and retry the write there.
	ErrMemtableFull = errors.New("memtable: full, caller must rotate")
	// ErrInvalidSeqNum is returned by Add when the write's sequence number
	// precedes the memtable's creation sequence number.
	ErrInvalidSeqNum = errors.New("memtable: sequence number precedes memtable creation")
	// ErrStillActive is returned by ReleaseArena when callers still hold a
	// reference to the memtable.
	ErrStillActive = errors.New("memtable: still has active references")
)

// MemTable is a memory table storing key-value pairs in sorted order via a
// skiplist, with every mutation additionally appended to a write-ahead log.
type MemTable struct {
	fileNum uint64
	seqNum  base.SeqNum
	skip    *skiplist.Skiplist
	cmp     compare.Compare
	log     *wal.Writer

	// references counts readers (including the engine's own "this is the
	// active memtable" slot) currently allowed to observe this memtable.
	// It starts at 1 and is incremented by Ref for each concurrent reader;
	// it reaches zero only after the memtable has been marked read-only,
	// flushed, and every borrowing reader has called Unref.
	references atomic.Int32
	// writers tracks in-flight Add calls so a flush can wait for them to
	// finish before taking a final snapshot iterator.
	writers sync.WaitGroup
	// readOnly is set once the memtable is full or the engine has decided
	// to rotate it regardless; no further Add calls are accepted.
	readOnly atomic.Bool
}

// New creates an empty memtable backed by a new arena of sizeLimit bytes and
// a fresh WAL file at wal.FileName(walDir, fileNum). seqNum is the sequence
// number at creation time: every subsequent Add must carry a sequence
// number at least this large.
func New(fileNum uint64, sizeLimit uint, seqNum base.SeqNum, walDir string, policy wal.SyncPolicy, cmp compare.Compare) (*MemTable, error) {
	log, err := wal.Create(wal.FileName(walDir, fileNum), policy)
	if err != nil {
		return nil, err
	}
	m := &MemTable{
		fileNum: fileNum,
		seqNum:  seqNum,
		skip:    skiplist.New(arena.New(sizeLimit), cmp),
		cmp:     cmp,
		log:     log,
	}
	m.references.Store(1)
	return m, nil
}

// FileNum returns the memtable's (and its WAL's) file number.
func (m *MemTable) FileNum() uint64 { return m.fileNum }

// SeqNum returns the sequence number at which this memtable was created.
func (m *MemTable) SeqNum() base.SeqNum { return m.seqNum }

// Add inserts kv into the memtable and then logs it to the WAL as a batch
// of one record, so SyncPerBatch fsyncs after every Add.
// The skiplist insert happens before the WAL append: an arena-full failure
// must be discoverable without having committed anything to disk, so the
// caller can rotate to a fresh memtable and retry without risking the
// rejected write reappearing twice on WAL replay.
func (m *MemTable) Add(kv base.InternalKV) error {
	m.writers.Add(1)
	defer m.writers.Done()

	if kv.K.SeqNum() < m.seqNum {
		return ErrInvalidSeqNum
	}
	if m.readOnly.Load() {
		return ErrMemtableFull
	}

	if err := m.skip.Add(kv.K, kv.V); err != nil {
		if errors.Is(err, skiplist.ErrArenaFull) {
			m.readOnly.Store(true)
			return ErrMemtableFull
		}
		if errors.Is(err, skiplist.ErrRecordExists) {
			return ErrRecordExists
		}
		return err
	}

	return m.log.WriteBatch([]base.InternalKV{kv})
}

// AddWithoutLog inserts kv into the skiplist only, bypassing the WAL
// append, so the entry is not recorded in this memtable's WAL. An
// identical internal key already present is accepted without error.
func (m *MemTable) AddWithoutLog(kv base.InternalKV) error {
	m.writers.Add(1)
	defer m.writers.Done()

	if err := m.skip.Add(kv.K, kv.V); err != nil {
		if errors.Is(err, skiplist.ErrRecordExists) {
			return nil
		}
		return err
	}
	return nil
}

// Get looks up the most recent value for key as of seq, if present in this
// memtable. ok is false if the key was never written to this memtable.
func (m *MemTable) Get(key []byte, seq base.SeqNum) (value []byte, kind base.InternalKeyKind, ok bool) {
	it := m.skip.NewIter()
	if !it.SeekGE(base.MakeSearchKeyAt(key, seq)) {
		return nil, 0, false
	}
	ik := it.Key()
	if m.cmp(ik.UserKey, key) != 0 {
		return nil, 0, false
	}
	return it.Value(), ik.Kind(), true
}

// NewIter returns a forward iterator over every entry in the memtable,
// including tombstones, used both for Scan and for flushing to an sstable.
func (m *MemTable) NewIter() *skiplist.Iterator {
	return m.skip.NewIter()
}

// ApproximateSize returns the cumulative encoded size of the memtable's
// contents, used by the engine to decide when to rotate.
func (m *MemTable) ApproximateSize() uint {
	return m.skip.ApproximateSize()
}

// ReadOnly reports whether the memtable is accepting no further writes.
func (m *MemTable) ReadOnly() bool {
	return m.readOnly.Load()
}

// MarkReadOnly transitions the memtable out of accepting writes, returning
// false if it was already read-only. The engine calls this on every
// rotation to a new active memtable and when queuing a memtable recovered
// by WAL replay.
func (m *MemTable) MarkReadOnly() bool {
	return m.readOnly.CompareAndSwap(false, true)
}

// WaitForWriters blocks until every in-flight Add call has returned. The
// engine calls this after MarkReadOnly and before taking the flush
// iterator, so the flush observes a complete, untorn snapshot.
func (m *MemTable) WaitForWriters() {
	m.writers.Wait()
}

// Ref increments the memtable's reader refcount. Callers that retain a
// pointer to a memtable across a potential flush (e.g. an in-flight Scan)
// must Ref it first and Unref when done.
func (m *MemTable) Ref() {
	m.references.Add(1)
}

// Unref decrements the refcount and returns the value remaining. Once it
// reaches zero and the memtable is read-only, the engine may close its WAL
// and drop it.
func (m *MemTable) Unref() int32 {
	return m.references.Add(-1)
}

// CloseWAL closes the memtable's write-ahead log. The caller must ensure no
// further Add calls will occur (i.e. the memtable is already read-only).
func (m *MemTable) CloseWAL() error {
	if m.log == nil {
		return nil
	}
	return m.log.Close()
}
