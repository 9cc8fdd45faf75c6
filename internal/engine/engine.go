// Package engine orchestrates the write path (write mutex, active memtable,
// immutable memtable queue, WAL), the read path (probing memtable(s) then
// sstable levels through a merging iterator), and background flush and
// compaction, all against a single manifest-tracked Version. It is the
// component the top-level package façade (Open/Close) delegates to.
//
// Open locks the database directory with syscall.Flock, maintains separate
// data/ and wal/ subdirectories, and replays any un-flushed WALs before
// accepting writes. Memtable rotation queues a frozen memtable for flush
// and hands the write path a fresh one to keep writing into, all under the
// same write mutex.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/cockroachdb/errors"

	"boulder/internal/base"
	"boulder/internal/cache"
	"boulder/internal/codec"
	"boulder/internal/compaction"
	"boulder/internal/compare"
	"boulder/internal/manifest"
	"boulder/internal/memtable"
	"boulder/internal/wal"
	"boulder/internal/workerpool"
)

const (
	dataDirName  = "data"
	walDirName   = "wal"
	lockFileName = "LOCK"
)

// Sentinel errors surfaced to the façade; ambient error kinds per §7.
var (
	ErrNotFound        = errors.New("boulder: not found")
	ErrShuttingDown    = errors.New("boulder: engine is shutting down")
	ErrLockFailed      = errors.New("boulder: directory already in use")
	ErrInvalidArgument = errors.New("boulder: invalid argument")
)

// Logger is the minimal structured logging surface the engine and its
// compactor need.
type Logger interface {
	Infof(format string, args ...any)
	Fatalf(format string, args ...any)
}

// Options configures an Engine. Zero values are filled in by setDefaults.
type Options struct {
	Cmp                     compare.Compare
	MemtableSizeLimit       uint
	MaxImmutableMemtables   int
	WALSync                 wal.SyncPolicy
	Compression             codec.Codec
	BlockSize               int
	RestartInterval         int
	BlockCacheCapacityBytes int
	CompactionThreads       int
	L0CompactionTrigger     int
	LevelSizeBase           uint64
	LevelSizeMultiplier     float64
	TargetFileSize          uint64
	Logger                  Logger
}

// validate rejects Options combinations that can never be sensible, before
// setDefaults has a chance to paper over them. A zero value means "use the
// default" for every numeric knob (the functional-options convention the
// root package's options.go follows throughout), so only the genuinely
// out-of-range values below — which a user could only reach by setting them
// explicitly — are rejected; a bare zero is never an error.
func (o *Options) validate() error {
	switch {
	case o.BlockSize < 0:
		return errors.Wrap(ErrInvalidArgument, "engine: BlockSize must not be negative")
	case o.RestartInterval < 0:
		return errors.Wrap(ErrInvalidArgument, "engine: RestartInterval must not be negative")
	case o.BlockCacheCapacityBytes < 0:
		return errors.Wrap(ErrInvalidArgument, "engine: BlockCacheCapacityBytes must not be negative")
	case o.CompactionThreads < 0:
		return errors.Wrap(ErrInvalidArgument, "engine: CompactionThreads must not be negative")
	case o.L0CompactionTrigger < 0:
		return errors.Wrap(ErrInvalidArgument, "engine: L0CompactionTrigger must not be negative")
	case o.MaxImmutableMemtables < 0:
		return errors.Wrap(ErrInvalidArgument, "engine: MaxImmutableMemtables must not be negative")
	case o.LevelSizeMultiplier < 0:
		return errors.Wrap(ErrInvalidArgument, "engine: LevelSizeMultiplier must not be negative")
	case o.TargetFileSize > 0 && o.LevelSizeBase > 0 && o.TargetFileSize > o.LevelSizeBase:
		return errors.Wrap(ErrInvalidArgument, "engine: TargetFileSize must not exceed LevelSizeBase")
	}
	return nil
}

func (o *Options) setDefaults() {
	if o.Cmp == nil {
		o.Cmp = compare.Default
	}
	if o.MemtableSizeLimit == 0 {
		o.MemtableSizeLimit = 4 << 20
	}
	if o.MaxImmutableMemtables <= 0 {
		o.MaxImmutableMemtables = 4
	}
	if o.BlockSize <= 0 {
		o.BlockSize = 4096
	}
	if o.RestartInterval <= 0 {
		o.RestartInterval = 16
	}
	if o.BlockCacheCapacityBytes <= 0 {
		o.BlockCacheCapacityBytes = 8 << 20
	}
	if o.CompactionThreads <= 0 {
		o.CompactionThreads = 2
	}
	if o.TargetFileSize <= 0 {
		o.TargetFileSize = 16 << 20
	}
}

// Engine is the storage orchestrator: one per open database directory.
type Engine struct {
	dir     string
	dataDir string
	walDir  string
	opts    Options
	log     Logger

	lockFile    *os.File
	dataDirFile *os.File
	walDirFile  *os.File

	seqNum base.AtomicSeqNum

	writeMu   sync.Mutex
	active    *memtable.MemTable
	immutable []*memtable.MemTable
	flushing  map[*memtable.MemTable]bool // submitted to flushPool, not yet committed
	flushCond *sync.Cond                  // signaled by flushMemtable; rotateLocked waits on it for backpressure

	manifest *manifest.Manifest
	cache    *cache.Cache
	tables   *tableCache
	picker   *compaction.Picker

	flushPool     *workerpool.Pool
	compactCtx    context.Context
	compactCancel context.CancelFunc
	scheduler     *compaction.Scheduler

	closed       atomic.Bool
	shuttingDown atomic.Bool
}

// noopLogger discards everything; used when no Logger option is supplied.
type noopLogger struct{}

func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Fatalf(string, ...any) {}

// Open opens (creating if necessary) a database directory, replaying the
// manifest and any WALs for memtables not yet known to be flushed.
func Open(dir string, opts Options) (*Engine, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.setDefaults()
	log := opts.Logger
	if log == nil {
		log = noopLogger{}
	}

	dataDir := filepath.Join(dir, dataDirName)
	walDir := filepath.Join(dir, walDirName)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, errors.Wrap(err, "engine: creating data directory")
	}
	if err := os.MkdirAll(walDir, 0755); err != nil {
		return nil, errors.Wrap(err, "engine: creating wal directory")
	}

	lockFile, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "engine: opening lock file")
	}
	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		lockFile.Close()
		return nil, errors.Wrapf(ErrLockFailed, "engine: directory is locked by another process: %v", err)
	}

	e := &Engine{
		dir:      dir,
		dataDir:  dataDir,
		walDir:   walDir,
		opts:     opts,
		log:      log,
		lockFile: lockFile,
		flushing: make(map[*memtable.MemTable]bool),
	}
	e.flushCond = sync.NewCond(&e.writeMu)

	ok := false
	defer func() {
		if !ok {
			e.lockFile.Close()
		}
	}()

	dataDirFile, err := os.Open(dataDir)
	if err != nil {
		return nil, err
	}
	e.dataDirFile = dataDirFile
	walDirFile, err := os.Open(walDir)
	if err != nil {
		return nil, err
	}
	e.walDirFile = walDirFile

	blockCache, err := cache.New(opts.BlockCacheCapacityBytes)
	if err != nil {
		return nil, err
	}
	e.cache = blockCache
	e.tables = newTableCache(dataDir, opts.Cmp, blockCache)

	m, lastSeq, err := openOrCreateManifest(dataDir)
	if err != nil {
		return nil, err
	}
	e.manifest = m
	e.seqNum.Store(lastSeq)

	if err := e.replayWALs(); err != nil {
		return nil, err
	}

	if e.active == nil {
		if err := e.rotateActiveLocked(); err != nil {
			return nil, err
		}
	}

	e.picker = compaction.NewPicker(compaction.Options{
		Dir:                 dataDir,
		Cmp:                 opts.Cmp,
		Cache:               e.cache,
		Compression:         opts.Compression,
		BlockSize:           opts.BlockSize,
		RestartInterval:     opts.RestartInterval,
		L0CompactionTrigger: opts.L0CompactionTrigger,
		LevelSizeBase:       opts.LevelSizeBase,
		LevelSizeMultiplier: opts.LevelSizeMultiplier,
		TargetFileSize:      opts.TargetFileSize,
	})
	e.compactCtx, e.compactCancel = context.WithCancel(context.Background())
	e.scheduler = compaction.NewScheduler(e.picker, e.commitCompaction, log, opts.CompactionThreads)
	e.flushPool = workerpool.New(e.compactCtx, 1)

	// Every recovered memtable except the newest (which stays active) was
	// queued as immutable by replayWALs; flush those now rather than
	// waiting for the next size-triggered rotation.
	if len(e.immutable) > 0 {
		e.scheduleFlushesLocked()
	}

	ok = true
	return e, nil
}

func openOrCreateManifest(dataDir string) (*manifest.Manifest, base.SeqNum, error) {
	if _, err := os.Stat(filepath.Join(dataDir, "CURRENT")); err == nil {
		m, err := manifest.Open(dataDir)
		if err != nil {
			return nil, 0, err
		}
		return m, m.LastSeqNum(), nil
	}
	m, err := manifest.Create(dataDir)
	if err != nil {
		return nil, 0, err
	}
	return m, base.SeqNumStart, nil
}

// replayWALs reinserts every record of every WAL file under walDir into a
// fresh memtable, in file-number order, leaving the newest as the active
// memtable and any earlier ones queued as immutable (an unclean shutdown
// can leave more than one un-flushed memtable behind).
func (e *Engine) replayWALs() error {
	entries, err := os.ReadDir(e.walDir)
	if err != nil {
		return err
	}

	nums := walFileNumsSorted(entries)
	for _, fileNum := range nums {
		// memtable.New truncates the WAL file, so its records are read out
		// first and then written back through Add.
		var kvs []base.InternalKV
		lastSeq, err := wal.Replay(wal.FileName(e.walDir, fileNum), func(kv base.InternalKV) error {
			kvs = append(kvs, kv)
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "engine: replaying wal %d", fileNum)
		}
		mt, err := memtable.New(fileNum, e.opts.MemtableSizeLimit, base.SeqNumStart, e.walDir, e.opts.WALSync, e.opts.Cmp)
		if err != nil {
			return err
		}
		for _, kv := range kvs {
			if err := mt.Add(kv); err != nil {
				return err
			}
		}
		if lastSeq > e.seqNum.Load() {
			e.seqNum.Store(lastSeq)
		}
		if e.active != nil {
			e.active.MarkReadOnly()
			e.immutable = append(e.immutable, e.active)
		}
		e.active = mt
	}
	// WAL file numbers are not recorded by any other edit; move the
	// manifest's allocator past them so a new memtable cannot reuse one.
	if len(nums) > 0 {
		if err := e.manifest.Apply(manifest.VersionEdit{NextFileNum: nums[len(nums)-1] + 1}); err != nil {
			return err
		}
	}
	return nil
}

func walFileNumsSorted(entries []os.DirEntry) []uint64 {
	var nums []uint64
	for _, ent := range entries {
		var n uint64
		if _, err := fmt.Sscanf(ent.Name(), "%06d.wal", &n); err == nil {
			nums = append(nums, n)
		}
	}
	for i := 1; i < len(nums); i++ {
		for j := i; j > 0 && nums[j-1] > nums[j]; j-- {
			nums[j-1], nums[j] = nums[j], nums[j-1]
		}
	}
	return nums
}

// removeWALFile unlinks the WAL file backing a flushed memtable. It is not
// an error if the file is already gone.
func removeWALFile(walDir string, fileNum uint64) error {
	err := os.Remove(wal.FileName(walDir, fileNum))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// rotateActiveLocked creates a fresh active memtable. Caller must hold
// writeMu.
func (e *Engine) rotateActiveLocked() error {
	fileNum := e.manifest.AllocFileNum()
	mt, err := memtable.New(fileNum, e.opts.MemtableSizeLimit, e.seqNum.Load()+1, e.walDir, e.opts.WALSync, e.opts.Cmp)
	if err != nil {
		return err
	}
	e.active = mt
	return nil
}

// Close shuts the engine down: stops accepting new compactions, drains
// in-flight flush/compaction work, then releases files and the lock.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.shuttingDown.Store(true)
	e.compactCancel()

	if e.flushPool != nil {
		_ = e.flushPool.Shutdown()
	}

	e.writeMu.Lock()
	if e.active != nil {
		_ = e.active.CloseWAL()
	}
	for _, mt := range e.immutable {
		_ = mt.CloseWAL()
	}
	e.writeMu.Unlock()

	var err error
	err = errors.CombineErrors(err, e.tables.closeAll())
	err = errors.CombineErrors(err, e.manifest.Close())
	err = errors.CombineErrors(err, e.cache.Close())
	err = errors.CombineErrors(err, e.dataDirFile.Close())
	err = errors.CombineErrors(err, e.walDirFile.Close())
	err = errors.CombineErrors(err, syscall.Flock(int(e.lockFile.Fd()), syscall.LOCK_UN))
	err = errors.CombineErrors(err, e.lockFile.Close())

	if err != nil {
		return errors.Wrap(err, "engine: close")
	}
	return nil
}
