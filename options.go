package boulder

import (
	"boulder/internal/codec"
	"boulder/internal/compare"
	"boulder/internal/engine"
	"boulder/internal/wal"
)

// Option configures a database at Open time. Each Option mutates a pending
// engine.Options value, so every tuning knob is assembled before any file
// is touched rather than patched onto a half-built database.
type Option func(*engine.Options)

// WithComparer overrides the default byte-lexicographic key ordering.
func WithComparer(cmp compare.Compare) Option {
	return func(o *engine.Options) { o.Cmp = cmp }
}

// WithMemtableSizeLimit bounds how many bytes of arena a single memtable may
// use before it is rotated out for flushing.
func WithMemtableSizeLimit(bytes uint) Option {
	return func(o *engine.Options) { o.MemtableSizeLimit = bytes }
}

// WithMaxImmutableMemtables bounds how many flush-pending memtables may
// queue up before writes start blocking on flush backpressure.
func WithMaxImmutableMemtables(n int) Option {
	return func(o *engine.Options) { o.MaxImmutableMemtables = n }
}

// WithWALSync selects how aggressively the write-ahead log calls fsync.
func WithWALSync(policy wal.SyncPolicy) Option {
	return func(o *engine.Options) { o.WALSync = policy }
}

// WithCompression selects the block compression codec used by new
// sstables. Existing on-disk blocks written with a different codec remain
// readable; each block records its own codec in a tag byte.
func WithCompression(c codec.Codec) Option {
	return func(o *engine.Options) { o.Compression = c }
}

// WithBlockSize sets the target uncompressed size of an sstable data block.
func WithBlockSize(bytes int) Option {
	return func(o *engine.Options) { o.BlockSize = bytes }
}

// WithRestartInterval sets how many entries separate two restart points
// within a block's prefix-compressed key sequence.
func WithRestartInterval(n int) Option {
	return func(o *engine.Options) { o.RestartInterval = n }
}

// WithBlockCacheCapacity bounds the shared block cache's memory footprint.
func WithBlockCacheCapacity(bytes int) Option {
	return func(o *engine.Options) { o.BlockCacheCapacityBytes = bytes }
}

// WithCompactionThreads bounds how many compaction jobs may run at once.
func WithCompactionThreads(n int) Option {
	return func(o *engine.Options) { o.CompactionThreads = n }
}

// WithL0CompactionTrigger sets how many L0 files accumulate before a
// compaction of L0 is scheduled.
func WithL0CompactionTrigger(n int) Option {
	return func(o *engine.Options) { o.L0CompactionTrigger = n }
}

// WithLevelSizeBase sets L1's target size in bytes; each deeper level's
// target grows by LevelSizeMultiplier.
func WithLevelSizeBase(bytes uint64) Option {
	return func(o *engine.Options) { o.LevelSizeBase = bytes }
}

// WithLevelSizeMultiplier sets the per-level size growth factor.
func WithLevelSizeMultiplier(factor float64) Option {
	return func(o *engine.Options) { o.LevelSizeMultiplier = factor }
}

// WithTargetFileSize bounds how large a single sstable produced by a flush
// or compaction may grow before being cut.
func WithTargetFileSize(bytes uint64) Option {
	return func(o *engine.Options) { o.TargetFileSize = bytes }
}

// WithLogger supplies the structured logger used for engine and compaction
// diagnostics. The default logs to a production zap.Logger.
func WithLogger(log Logger) Option {
	return func(o *engine.Options) { o.Logger = log }
}
