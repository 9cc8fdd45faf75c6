package engine

import (
	"sync"

	"github.com/cockroachdb/errors"

	"boulder/internal/cache"
	"boulder/internal/compare"
	"boulder/internal/sstable"
)

// tableCache keeps at most one open sstable.Reader per live file, so a
// Get/Scan does not reopen and re-parse a table's footer/index/filter on
// every lookup. It composes with sstable.Reader's own Ref/Unref latch: the
// cache holds one permanent reference for as long as the file is live, and
// hands out a borrowed reference per lookup so a concurrent evict (from a
// compaction dropping the file) never closes a reader still in use.
type tableCache struct {
	dir   string
	cmp   compare.Compare
	block *cache.Cache

	mu      sync.Mutex
	readers map[uint64]*sstable.Reader
}

func newTableCache(dir string, cmp compare.Compare, blockCache *cache.Cache) *tableCache {
	return &tableCache{
		dir:     dir,
		cmp:     cmp,
		block:   blockCache,
		readers: make(map[uint64]*sstable.Reader),
	}
}

// get returns a Ref'd reader for fileNum, opening it if not already cached.
// The caller must Unref the returned reader when done with it.
func (tc *tableCache) get(fileNum uint64) (*sstable.Reader, error) {
	tc.mu.Lock()
	if r, ok := tc.readers[fileNum]; ok {
		r.Ref()
		tc.mu.Unlock()
		return r, nil
	}
	tc.mu.Unlock()

	r, err := sstable.Open(sstable.FileName(tc.dir, fileNum), fileNum, tc.cmp, tc.block)
	if err != nil {
		return nil, err
	}

	tc.mu.Lock()
	if existing, ok := tc.readers[fileNum]; ok {
		tc.mu.Unlock()
		r.Close()
		existing.Ref()
		return existing, nil
	}
	r.Ref() // the cache's own standing reference
	r.Ref() // the reference returned to this caller
	tc.readers[fileNum] = r
	tc.mu.Unlock()
	return r, nil
}

// evict drops the cache's standing reference to fileNum's reader, closing
// it once every borrower has also Unref'd. Called once a compaction's
// manifest commit has made a file's removal durable.
func (tc *tableCache) evict(fileNum uint64) {
	tc.mu.Lock()
	r, ok := tc.readers[fileNum]
	if ok {
		delete(tc.readers, fileNum)
	}
	tc.mu.Unlock()
	if !ok {
		return
	}
	if r.Unref() <= 0 {
		r.Close()
	}
}

func (tc *tableCache) closeAll() error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	var err error
	for fileNum, r := range tc.readers {
		err = errors.CombineErrors(err, r.Close())
		delete(tc.readers, fileNum)
	}
	return err
}
