package compaction

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"boulder/internal/base"
	"boulder/internal/manifest"
)

// CommitFunc durably applies a completed job's VersionEdit, returning any
// error from doing so. It is supplied by the engine so the scheduler never
// touches the manifest mutex directly.
type CommitFunc func(edit manifest.VersionEdit) error

// Logger is the minimal logging surface the scheduler needs; satisfied by
// the ambient logger used across the rest of the engine.
type Logger interface {
	Infof(format string, args ...any)
}

// Scheduler runs compaction jobs on a bounded worker pool, gating
// concurrency so that at most one compaction per level pair runs at a time
// and L0->L1 jobs never overlap each other.
type Scheduler struct {
	picker *Picker
	commit CommitFunc
	log    Logger

	sem *semaphore.Weighted

	mu           sync.Mutex
	compactPtrs  map[int]base.InternalKey
	levelBusy    map[int]bool
	l0Busy       bool

	backoff time.Duration
}

// NewScheduler constructs a Scheduler. threads bounds the number of
// concurrently running compaction jobs.
func NewScheduler(picker *Picker, commit CommitFunc, log Logger, threads int) *Scheduler {
	if threads <= 0 {
		threads = 2
	}
	return &Scheduler{
		picker:      picker,
		commit:      commit,
		log:         log,
		sem:         semaphore.NewWeighted(int64(threads)),
		compactPtrs: make(map[int]base.InternalKey),
		levelBusy:   make(map[int]bool),
		backoff:     100 * time.Millisecond,
	}
}

// tryClaim marks level (and, for an L0 job, L0 specifically) busy, refusing
// if a conflicting job is already in flight. Ln->Ln+1 for n>=1 can run
// concurrently with L0->L1 provided their own level pairs are free.
func (s *Scheduler) tryClaim(level int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level == 0 {
		if s.l0Busy {
			return false
		}
		s.l0Busy = true
		return true
	}
	if s.levelBusy[level] {
		return false
	}
	s.levelBusy[level] = true
	return true
}

func (s *Scheduler) release(level int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level == 0 {
		s.l0Busy = false
		return
	}
	s.levelBusy[level] = false
}

func (s *Scheduler) compactPointer(level int) base.InternalKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compactPtrs[level]
}

func (s *Scheduler) setCompactPointer(level int, key base.InternalKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compactPtrs[level] = key
}

// MaybeSchedule inspects v and, if a level's score warrants it and its
// level pair is free, runs one compaction job asynchronously. It returns
// immediately whether or not a job was started.
func (s *Scheduler) MaybeSchedule(ctx context.Context, v *manifest.Version, allocFileNum func() uint64, oldestLiveSeq base.SeqNum) {
	level, score, ok := s.picker.PickLevel(v)
	if !ok {
		return
	}
	if !s.tryClaim(level) {
		return
	}

	job := s.picker.ComposeJob(v, level, s.compactPointer(level))
	if job == nil {
		s.release(level)
		return
	}

	if !s.sem.TryAcquire(1) {
		s.release(level)
		return
	}

	if s.log != nil {
		s.log.Infof("compaction: scheduling L%d->L%d score=%.2f inputs=%d outputs=%d",
			level, level+1, score, len(job.Inputs), len(job.Outputs))
	}

	go func() {
		defer s.sem.Release(1)
		defer s.release(level)
		s.runWithRetry(ctx, job, allocFileNum, oldestLiveSeq, level == manifest.NumLevels-2)
	}()
}

func (s *Scheduler) runWithRetry(ctx context.Context, job *Job, allocFileNum func() uint64, oldestLiveSeq base.SeqNum, isBottomLevel bool) {
	const maxAttempts = 3
	delay := s.backoff
	for attempt := 0; attempt < maxAttempts; attempt++ {
		edit, err := s.picker.Execute(ctx, job, allocFileNum, oldestLiveSeq, isBottomLevel)
		if err == nil {
			if commitErr := s.commit(edit); commitErr != nil {
				if s.log != nil {
					s.log.Infof("compaction: commit failed, retrying: %v", commitErr)
				}
			} else {
				if ptr, ok := edit.CompactPointers[job.Level]; ok {
					s.setCompactPointer(job.Level, ptr)
				}
				return
			}
		} else if s.log != nil {
			s.log.Infof("compaction: job failed, retrying: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
}
