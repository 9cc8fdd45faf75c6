// Package compaction implements the leveled compaction policy and job
// execution: scoring each level to decide whether a compaction is due,
// composing the input file set for a job, and running it by merging the
// inputs through internal/mergeiter into fresh sstables via
// internal/sstable.Writer.
//
// The level-size-ratio scoring and L0-vs-Ln job composition below follow
// the well-known LevelDB/Pebble leveled-compaction design; the per-level-
// pair concurrency gate is built on golang.org/x/sync/semaphore.
package compaction

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"

	"boulder/internal/base"
	"boulder/internal/cache"
	"boulder/internal/codec"
	"boulder/internal/compare"
	"boulder/internal/iterator"
	"boulder/internal/manifest"
	"boulder/internal/mergeiter"
	"boulder/internal/sstable"
)

// Options configures the compaction policy and job execution.
type Options struct {
	Dir              string
	Cmp              compare.Compare
	Cache            *cache.Cache
	Compression      codec.Codec
	BlockSize        int
	RestartInterval  int
	L0CompactionTrigger int
	LevelSizeBase       uint64
	LevelSizeMultiplier float64
	TargetFileSize      uint64
}

func (o *Options) setDefaults() {
	if o.L0CompactionTrigger <= 0 {
		o.L0CompactionTrigger = 4
	}
	if o.LevelSizeBase <= 0 {
		o.LevelSizeBase = 64 << 20
	}
	if o.LevelSizeMultiplier <= 0 {
		o.LevelSizeMultiplier = 10
	}
	if o.TargetFileSize <= 0 {
		o.TargetFileSize = 16 << 20
	}
}

// levelTargetSize returns the size budget for level (1-indexed levels
// grow geometrically from LevelSizeBase; L0 has no size target, only a
// file-count trigger).
func (o *Options) levelTargetSize(level int) uint64 {
	size := float64(o.LevelSizeBase)
	for i := 1; i < level; i++ {
		size *= o.LevelSizeMultiplier
	}
	return uint64(size)
}

// Picker scores levels and composes compaction jobs against a manifest's
// current Version.
type Picker struct {
	opts Options
}

// NewPicker constructs a Picker. opts.setDefaults fills in zero fields.
func NewPicker(opts Options) *Picker {
	opts.setDefaults()
	return &Picker{opts: opts}
}

// levelScore returns level's compaction urgency score; >= 1 means a
// compaction of this level is due.
func (p *Picker) levelScore(v *manifest.Version, level int) float64 {
	files := v.Files(level)
	if level == 0 {
		return float64(len(files)) / float64(p.opts.L0CompactionTrigger)
	}
	var total uint64
	for _, f := range files {
		total += f.Size
	}
	return float64(total) / float64(p.opts.levelTargetSize(level))
}

// PickLevel returns the level with the highest score, and whether any
// level's score reached the compaction threshold.
func (p *Picker) PickLevel(v *manifest.Version) (level int, score float64, ok bool) {
	best := -1
	bestScore := 0.0
	for l := 0; l < manifest.NumLevels-1; l++ {
		s := p.levelScore(v, l)
		if s > bestScore {
			bestScore = s
			best = l
		}
	}
	if best < 0 || bestScore < 1 {
		return 0, bestScore, false
	}
	return best, bestScore, true
}

// Job describes one compaction: a set of input files from level and
// level+1, and the edit that will commit its result.
type Job struct {
	Level   int
	Inputs  []*manifest.FileMetadata // from Level
	Outputs []*manifest.FileMetadata // from Level+1 overlapping Inputs
	TrivialMove bool
}

func overlaps(cmp compare.Compare, f *manifest.FileMetadata, smallest, largest base.InternalKey) bool {
	return cmp(f.Smallest.UserKey, largest.UserKey) <= 0 && cmp(f.Largest.UserKey, smallest.UserKey) >= 0
}

func keyRange(cmp compare.Compare, files []*manifest.FileMetadata) (smallest, largest base.InternalKey) {
	for i, f := range files {
		if i == 0 || base.Compare(cmp, f.Smallest, smallest) < 0 {
			smallest = f.Smallest
		}
		if i == 0 || base.Compare(cmp, f.Largest, largest) > 0 {
			largest = f.Largest
		}
	}
	return
}

// ComposeJob builds the input/output file sets for compacting level.
func (p *Picker) ComposeJob(v *manifest.Version, level int, compactPointer base.InternalKey) *Job {
	cmp := p.opts.Cmp
	levelFiles := v.Files(level)
	if len(levelFiles) == 0 {
		return nil
	}

	var picked []*manifest.FileMetadata
	if level == 0 {
		// L0 files may overlap each other; every L0 file is picked, which
		// covers any transitive overlap among them.
		picked = append(picked, levelFiles...)
	} else {
		// Pick the first file whose smallest key sorts after the compaction
		// pointer, wrapping to the first file in the level otherwise.
		idx := 0
		for i, f := range levelFiles {
			if cmp(f.Smallest.UserKey, compactPointer.UserKey) > 0 {
				idx = i
				break
			}
		}
		picked = []*manifest.FileMetadata{levelFiles[idx]}
	}

	smallest, largest := keyRange(cmp, picked)

	var nextLevelOverlap []*manifest.FileMetadata
	for _, f := range v.Files(level + 1) {
		if overlaps(cmp, f, smallest, largest) {
			nextLevelOverlap = append(nextLevelOverlap, f)
		}
	}

	job := &Job{Level: level, Inputs: picked, Outputs: nextLevelOverlap}
	if level > 0 && len(nextLevelOverlap) == 0 {
		job.TrivialMove = true
	}
	return job
}

// Execute runs job, merging its inputs through a sstable reader set and
// writing the result as new Level+1 files, cutting output files at
// TargetFileSize on an entry boundary. oldestLiveSeq bounds which
// tombstones may be dropped (only at the bottom level, and only those with
// seq <= oldestLiveSeq). It returns the VersionEdit to commit; for a trivial
// move that edit deletes the input at Level and adds the same file at
// Level+1, with no I/O. A failed run removes the output files it wrote.
func (p *Picker) Execute(ctx context.Context, job *Job, allocFileNum func() uint64, oldestLiveSeq base.SeqNum, isBottomLevel bool) (manifest.VersionEdit, error) {
	if job.TrivialMove {
		f := *job.Inputs[0]
		f.Level = job.Level + 1
		return manifest.VersionEdit{
			NewFiles:     []manifest.FileMetadata{f},
			DeletedFiles: []manifest.DeletedFile{{Level: job.Level, FileNum: job.Inputs[0].FileNum}},
		}, nil
	}

	var readers []*sstable.Reader
	defer func() {
		for _, r := range readers {
			r.Unref()
			r.Close()
		}
	}()

	var srcs []iterator.Iterator
	for _, f := range append(append([]*manifest.FileMetadata{}, job.Inputs...), job.Outputs...) {
		r, err := sstable.Open(sstable.FileName(p.opts.Dir, f.FileNum), f.FileNum, p.opts.Cmp, p.opts.Cache)
		if err != nil {
			return manifest.VersionEdit{}, errors.Wrapf(err, "compaction: opening input %d", f.FileNum)
		}
		r.Ref()
		readers = append(readers, r)
		srcs = append(srcs, r.NewIter())
	}

	merged := mergeiter.New(p.opts.Cmp, oldestLiveSeq, srcs...)

	var newFiles []manifest.FileMetadata
	var w *sstable.Writer
	var curFileNum uint64
	succeeded := false
	defer func() {
		if succeeded {
			return
		}
		if w != nil {
			_ = os.Remove(sstable.FileName(p.opts.Dir, curFileNum))
		}
		for _, f := range newFiles {
			_ = os.Remove(sstable.FileName(p.opts.Dir, f.FileNum))
		}
	}()

	closeCurrent := func() error {
		if w == nil {
			return nil
		}
		if err := w.Finish(); err != nil {
			return err
		}
		newFiles = append(newFiles, manifest.FileMetadata{
			FileNum:    curFileNum,
			Level:      job.Level + 1,
			Smallest:   w.Smallest(),
			Largest:    w.Largest(),
			Size:       w.FileSize(),
			NumEntries: w.NumEntries(),
		})
		w = nil
		return nil
	}

	openNext := func() error {
		curFileNum = allocFileNum()
		var err error
		w, err = sstable.NewWriter(sstable.FileName(p.opts.Dir, curFileNum), p.opts.Cmp, sstable.WriterOptions{
			Compression:     p.opts.Compression,
			BlockSize:       p.opts.BlockSize,
			RestartInterval: p.opts.RestartInterval,
		})
		return err
	}

	valid := merged.First()
	for valid {
		select {
		case <-ctx.Done():
			return manifest.VersionEdit{}, ctx.Err()
		default:
		}

		key := merged.Key()
		if isBottomLevel && key.Kind() == base.InternalKeyKindDelete && key.SeqNum() <= oldestLiveSeq {
			valid = merged.Next()
			continue
		}

		if w == nil {
			if err := openNext(); err != nil {
				return manifest.VersionEdit{}, err
			}
		}
		w.Add(key, merged.Value())

		if w.FileSize() >= p.opts.TargetFileSize {
			if err := closeCurrent(); err != nil {
				return manifest.VersionEdit{}, err
			}
		}
		valid = merged.Next()
	}
	if err := closeCurrent(); err != nil {
		return manifest.VersionEdit{}, err
	}

	var deleted []manifest.DeletedFile
	for _, f := range job.Inputs {
		deleted = append(deleted, manifest.DeletedFile{Level: job.Level, FileNum: f.FileNum})
	}
	for _, f := range job.Outputs {
		deleted = append(deleted, manifest.DeletedFile{Level: job.Level + 1, FileNum: f.FileNum})
	}

	var nextCompactPointer base.InternalKey
	if len(job.Inputs) > 0 {
		nextCompactPointer = job.Inputs[len(job.Inputs)-1].Largest
	}

	succeeded = true
	return manifest.VersionEdit{
		NewFiles:        newFiles,
		DeletedFiles:    deleted,
		CompactPointers: map[int]base.InternalKey{job.Level: nextCompactPointer},
	}, nil
}

// RemoveObsoleteFile unlinks a compacted-away sstable file from disk. It is
// called only after the manifest commit that drops the file has taken
// effect and no reader still holds a reference to it.
func RemoveObsoleteFile(dir string, fileNum uint64) error {
	err := os.Remove(sstable.FileName(dir, fileNum))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
