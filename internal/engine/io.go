package engine

import (
	"context"
	"os"
	"sort"

	"github.com/cockroachdb/errors"

	"boulder/internal/base"
	"boulder/internal/compaction"
	"boulder/internal/compare"
	"boulder/internal/iterator"
	"boulder/internal/manifest"
	"boulder/internal/memtable"
	"boulder/internal/mergeiter"
	"boulder/internal/sstable"
)

// Put inserts or overwrites the value for key.
func (e *Engine) Put(key, value []byte) error {
	return e.apply(key, value, base.InternalKeyKindSet)
}

// Delete removes key. It is a blind delete: no error if key is absent.
func (e *Engine) Delete(key []byte) error {
	return e.apply(key, nil, base.InternalKeyKindDelete)
}

func (e *Engine) apply(key, value []byte, kind base.InternalKeyKind) error {
	if len(key) == 0 {
		return errors.Wrap(ErrInvalidArgument, "engine: empty key")
	}
	if e.shuttingDown.Load() {
		return ErrShuttingDown
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	seq := e.seqNum.Add(1)
	kv := base.InternalKV{K: base.MakeInternalKey(key, seq, kind), V: value}

	for {
		err := e.active.Add(kv)
		if err == nil {
			break
		}
		if !errors.Is(err, memtable.ErrMemtableFull) {
			return err
		}
		if err := e.rotateLocked(); err != nil {
			return err
		}
	}

	if e.active.ApproximateSize() > e.opts.MemtableSizeLimit {
		if err := e.rotateLocked(); err != nil {
			return err
		}
	}
	return nil
}

// rotateLocked freezes the active memtable, queues it for flush, and opens
// a fresh active memtable. If the immutable queue is already at
// MaxImmutableMemtables, it blocks until flushMemtable drains a slot, so a
// burst of writes can't queue an unbounded number of un-flushed memtables.
// Caller must hold writeMu.
func (e *Engine) rotateLocked() error {
	for len(e.immutable) >= e.opts.MaxImmutableMemtables {
		e.flushCond.Wait()
	}

	e.active.MarkReadOnly()
	e.active.WaitForWriters()
	e.immutable = append(e.immutable, e.active)
	if err := e.rotateActiveLocked(); err != nil {
		return err
	}
	e.scheduleFlushesLocked()
	return nil
}

// scheduleFlushesLocked submits one flush job per queued immutable
// memtable that isn't already being flushed. Caller must hold writeMu.
func (e *Engine) scheduleFlushesLocked() {
	for _, mt := range e.immutable {
		if e.flushing[mt] {
			continue
		}
		e.flushing[mt] = true
		mt := mt
		_ = e.flushPool.Submit(func(ctx context.Context) error {
			return e.flushMemtable(mt)
		})
	}
}

// Get returns the value for key as of the engine's current write position,
// checking the active memtable, then the immutable queue newest-first,
// then L0 (newest-first) and L1+ (binary-searched), each bloom-filter
// gated. The first Value or Tombstone decides the outcome.
func (e *Engine) Get(key []byte) ([]byte, error) {
	if e.shuttingDown.Load() {
		return nil, ErrShuttingDown
	}
	readSeq := e.seqNum.Load()

	e.writeMu.Lock()
	active := e.active
	active.Ref()
	immutable := make([]*memtable.MemTable, len(e.immutable))
	copy(immutable, e.immutable)
	for _, mt := range immutable {
		mt.Ref()
	}
	e.writeMu.Unlock()

	defer func() {
		active.Unref()
		for _, mt := range immutable {
			mt.Unref()
		}
	}()

	if v, kind, ok := active.Get(key, readSeq); ok {
		return resolveLookup(v, kind)
	}
	for i := len(immutable) - 1; i >= 0; i-- {
		if v, kind, ok := immutable[i].Get(key, readSeq); ok {
			return resolveLookup(v, kind)
		}
	}

	version := e.manifest.Current()
	defer version.Unref()

	for _, f := range reversed(version.Files(0)) {
		v, kind, ok, err := e.getFromTable(f.FileNum, key, readSeq)
		if err != nil {
			return nil, err
		}
		if ok {
			return resolveLookup(v, kind)
		}
	}

	for level := 1; level < manifest.NumLevels; level++ {
		files := version.Files(level)
		idx := sort.Search(len(files), func(i int) bool {
			return e.opts.Cmp(files[i].Largest.UserKey, key) >= 0
		})
		if idx >= len(files) || e.opts.Cmp(files[idx].Smallest.UserKey, key) > 0 {
			continue
		}
		v, kind, ok, err := e.getFromTable(files[idx].FileNum, key, readSeq)
		if err != nil {
			return nil, err
		}
		if ok {
			return resolveLookup(v, kind)
		}
	}

	return nil, ErrNotFound
}

func (e *Engine) getFromTable(fileNum uint64, key []byte, readSeq base.SeqNum) (value []byte, kind base.InternalKeyKind, ok bool, err error) {
	r, err := e.tables.get(fileNum)
	if err != nil {
		return nil, 0, false, err
	}
	defer r.Unref()
	return r.Get(key, readSeq)
}

func resolveLookup(value []byte, kind base.InternalKeyKind) ([]byte, error) {
	if kind == base.InternalKeyKindDelete {
		return nil, ErrNotFound
	}
	return value, nil
}

func reversed(files []*manifest.FileMetadata) []*manifest.FileMetadata {
	out := make([]*manifest.FileMetadata, len(files))
	for i, f := range files {
		out[len(files)-1-i] = f
	}
	return out
}

// Iterator exposes an ordered, tombstone-filtered view over [lower, upper).
type Iterator struct {
	merged    *mergeiter.MergeIterator
	upper     []byte
	cmp       compare.Compare
	version   *manifest.Version
	refs      []*memtable.MemTable
	tableRefs []*sstable.Reader
	valid     bool
	key       []byte
	value     []byte
}

// Scan returns an Iterator over every live (non-tombstone) key in
// [lower, upper).
func (e *Engine) Scan(lower, upper []byte) (*Iterator, error) {
	if e.shuttingDown.Load() {
		return nil, ErrShuttingDown
	}
	readSeq := e.seqNum.Load()

	e.writeMu.Lock()
	active := e.active
	active.Ref()
	immutable := make([]*memtable.MemTable, len(e.immutable))
	copy(immutable, e.immutable)
	for _, mt := range immutable {
		mt.Ref()
	}
	e.writeMu.Unlock()

	version := e.manifest.Current()

	var srcs []iterator.Iterator
	srcs = append(srcs, active.NewIter())
	for i := len(immutable) - 1; i >= 0; i-- {
		srcs = append(srcs, immutable[i].NewIter())
	}

	var tableRefs []*sstable.Reader
	for _, f := range reversed(version.Files(0)) {
		r, err := e.tables.get(f.FileNum)
		if err != nil {
			releaseScanResources(active, immutable, version, tableRefs)
			return nil, err
		}
		tableRefs = append(tableRefs, r)
		srcs = append(srcs, r.NewIter())
	}
	for level := 1; level < manifest.NumLevels; level++ {
		for _, f := range version.Files(level) {
			if upper != nil && e.opts.Cmp(f.Smallest.UserKey, upper) >= 0 {
				continue
			}
			if lower != nil && e.opts.Cmp(f.Largest.UserKey, lower) < 0 {
				continue
			}
			r, err := e.tables.get(f.FileNum)
			if err != nil {
				releaseScanResources(active, immutable, version, tableRefs)
				return nil, err
			}
			tableRefs = append(tableRefs, r)
			srcs = append(srcs, r.NewIter())
		}
	}

	merged := mergeiter.New(e.opts.Cmp, readSeq, srcs...)

	it := &Iterator{
		merged:    merged,
		upper:     upper,
		cmp:       e.opts.Cmp,
		version:   version,
		refs:      append([]*memtable.MemTable{active}, immutable...),
		tableRefs: tableRefs,
	}

	var start base.InternalKey
	if lower != nil {
		start = base.MakeSearchKeyAt(lower, readSeq)
		it.valid = merged.SeekGE(start)
	} else {
		it.valid = merged.First()
	}
	it.advancePastTombstones()
	return it, nil
}

func releaseScanResources(active *memtable.MemTable, immutable []*memtable.MemTable, version *manifest.Version, tableRefs []*sstable.Reader) {
	active.Unref()
	for _, mt := range immutable {
		mt.Unref()
	}
	version.Unref()
	for _, r := range tableRefs {
		r.Unref()
	}
}

func (it *Iterator) advancePastTombstones() {
	for it.valid {
		k := it.merged.Key()
		if it.upper != nil && it.cmp(k.UserKey, it.upper) >= 0 {
			it.valid = false
			break
		}
		if k.Kind() != base.InternalKeyKindDelete {
			it.key = k.UserKey
			it.value = it.merged.Value()
			return
		}
		it.valid = it.merged.Next()
	}
	it.key = nil
	it.value = nil
}

// Next advances to the next live key, returning false once the upper bound
// or the end of the keyspace is reached.
func (it *Iterator) Next() bool {
	if !it.valid {
		return false
	}
	it.valid = it.merged.Next()
	it.advancePastTombstones()
	return it.valid
}

// Valid reports whether the iterator is positioned on an entry.
func (it *Iterator) Valid() bool { return it.valid }

// Key returns the current entry's user key.
func (it *Iterator) Key() []byte { return it.key }

// Value returns the current entry's value.
func (it *Iterator) Value() []byte { return it.value }

// Close releases every resource (memtable refs, version ref, table reader
// refs) pinned by the scan.
func (it *Iterator) Close() error {
	releaseScanResources(it.refs[0], it.refs[1:], it.version, it.tableRefs)
	return nil
}

// LevelStats summarizes one level's file count and total size.
type LevelStats struct {
	Level     int
	NumFiles  int
	SizeBytes uint64
}

// Stats returns a per-level summary of the current Version, one entry per
// level that has at least one file.
func (e *Engine) Stats() []LevelStats {
	version := e.manifest.Current()
	defer version.Unref()

	var stats []LevelStats
	for level := 0; level < manifest.NumLevels; level++ {
		files := version.Files(level)
		if len(files) == 0 {
			continue
		}
		var size uint64
		for _, f := range files {
			size += f.Size
		}
		stats = append(stats, LevelStats{Level: level, NumFiles: len(files), SizeBytes: size})
	}
	return stats
}

// commitCompaction is the compaction.CommitFunc the scheduler calls once a
// job finishes: apply the edit to the manifest, then evict any now-dead
// files from the table cache and unlink them from disk.
func (e *Engine) commitCompaction(edit manifest.VersionEdit) error {
	if err := e.manifest.Apply(edit); err != nil {
		return err
	}
	moved := make(map[uint64]bool, len(edit.NewFiles))
	for _, f := range edit.NewFiles {
		moved[f.FileNum] = true
	}
	for _, d := range edit.DeletedFiles {
		if moved[d.FileNum] {
			// Trivial move: the same file is still live one level down.
			continue
		}
		e.tables.evict(d.FileNum)
		if err := compaction.RemoveObsoleteFile(e.dataDir, d.FileNum); err != nil {
			e.log.Infof("engine: failed to remove obsolete sstable %d: %v", d.FileNum, err)
		}
	}
	return nil
}

// flushMemtable writes mt's contents to a new L0 sstable, commits the
// result to the manifest, and drops mt (closing and unlinking its WAL).
func (e *Engine) flushMemtable(mt *memtable.MemTable) error {
	fileNum := e.manifest.AllocFileNum()
	w, err := sstable.NewWriter(sstable.FileName(e.dataDir, fileNum), e.opts.Cmp, sstable.WriterOptions{
		Compression:     e.opts.Compression,
		BlockSize:       e.opts.BlockSize,
		RestartInterval: e.opts.RestartInterval,
	})
	if err != nil {
		return err
	}

	it := mt.NewIter()
	for ok := it.First(); ok; ok = it.Next() {
		if err := w.Add(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	empty := w.Empty()
	if err := w.Finish(); err != nil {
		return err
	}

	edit := manifest.VersionEdit{LastSeqNum: e.seqNum.Load()}
	if empty {
		if err := os.Remove(sstable.FileName(e.dataDir, fileNum)); err != nil && !os.IsNotExist(err) {
			return err
		}
	} else {
		edit.NewFiles = []manifest.FileMetadata{{
			FileNum:    fileNum,
			Level:      0,
			Smallest:   w.Smallest(),
			Largest:    w.Largest(),
			Size:       w.FileSize(),
			NumEntries: w.NumEntries(),
		}}
	}
	if err := e.manifest.Apply(edit); err != nil {
		return err
	}

	e.writeMu.Lock()
	for i, m := range e.immutable {
		if m == mt {
			e.immutable = append(e.immutable[:i], e.immutable[i+1:]...)
			break
		}
	}
	delete(e.flushing, mt)
	e.flushCond.Broadcast()
	e.writeMu.Unlock()

	if err := mt.CloseWAL(); err != nil {
		e.log.Infof("engine: failed to close wal for memtable %d: %v", mt.FileNum(), err)
	}
	if err := removeWALFile(e.walDir, mt.FileNum()); err != nil {
		e.log.Infof("engine: failed to remove wal file for memtable %d: %v", mt.FileNum(), err)
	}

	version := e.manifest.Current()
	oldestLiveSeq := e.seqNum.Load()
	e.scheduler.MaybeSchedule(e.compactCtx, version, e.manifest.AllocFileNum, oldestLiveSeq)
	version.Unref()
	return nil
}
