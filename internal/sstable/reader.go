package sstable

import (
	"os"
	"sync/atomic"

	"boulder/internal/base"
	"boulder/internal/block"
	"boulder/internal/cache"
	"boulder/internal/compare"
)

// Reader provides point lookups and ordered iteration over a single
// sstable file. The index and filter blocks are parsed once at Open and
// kept pinned in memory for the Reader's lifetime; data blocks are fetched
// through an optional shared cache.
//
// latch counts in-flight readers, so a compaction that has produced a
// replacement file can safely unlink the old one only once every borrower
// has released it via Unref.
type Reader struct {
	f       *os.File
	fileNum uint64
	cmp     compare.Compare
	cache   *cache.Cache

	index  *block.Reader
	filter []byte // nil if the table carries no filter

	size  int64
	latch atomic.Int32
}

// Open parses path's footer, index block and (if present) filter block.
func Open(path string, fileNum uint64, cmp compare.Compare, c *cache.Cache) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if stat.Size() < int64(footerSize) {
		f.Close()
		return nil, errMalformed("file too small to contain a footer")
	}

	footerBuf := make([]byte, footerSize)
	if _, err := f.ReadAt(footerBuf, stat.Size()-int64(footerSize)); err != nil {
		f.Close()
		return nil, err
	}
	ft, err := decodeFooter(footerBuf)
	if err != nil {
		f.Close()
		return nil, err
	}

	filterHandle, haveFilter, err := readFilterHandle(f, ft.metaIndexHandle, cmp)
	if err != nil {
		f.Close()
		return nil, err
	}

	indexPhysical := make([]byte, ft.indexHandle.Length)
	if _, err := f.ReadAt(indexPhysical, int64(ft.indexHandle.Offset)); err != nil {
		f.Close()
		return nil, err
	}
	indexRaw, err := block.Parse(indexPhysical)
	if err != nil {
		f.Close()
		return nil, err
	}
	indexReader, err := block.NewReader(indexRaw, cmp)
	if err != nil {
		f.Close()
		return nil, err
	}

	var filterBytes []byte
	if haveFilter {
		filterPhysical := make([]byte, filterHandle.Length)
		if _, err := f.ReadAt(filterPhysical, int64(filterHandle.Offset)); err != nil {
			f.Close()
			return nil, err
		}
		filterBytes, err = block.Parse(filterPhysical)
		if err != nil {
			f.Close()
			return nil, err
		}
	}

	return &Reader{
		f:       f,
		fileNum: fileNum,
		cmp:     cmp,
		cache:   c,
		index:   indexReader,
		filter:  filterBytes,
		size:    stat.Size(),
	}, nil
}

// readFilterHandle loads the metaindex block at handle and looks up the
// "filter" entry, returning ok=false if the table carries no filter.
func readFilterHandle(f *os.File, handle block.Handle, cmp compare.Compare) (block.Handle, bool, error) {
	physical := make([]byte, handle.Length)
	if _, err := f.ReadAt(physical, int64(handle.Offset)); err != nil {
		return block.Handle{}, false, err
	}
	raw, err := block.Parse(physical)
	if err != nil {
		return block.Handle{}, false, err
	}
	metaIdx, err := block.NewReader(raw, cmp)
	if err != nil {
		return block.Handle{}, false, err
	}

	it := metaIdx.NewIter()
	if !it.SeekGE(base.MakeSearchKey([]byte("filter"))) {
		return block.Handle{}, false, nil
	}
	if cmp(it.Key().UserKey, []byte("filter")) != 0 {
		return block.Handle{}, false, nil
	}
	fh, _, err := block.DecodeHandle(it.Value())
	if err != nil {
		return block.Handle{}, false, err
	}
	return fh, true, nil
}

func (r *Reader) readDataBlock(handle block.Handle) (*block.Reader, error) {
	if r.cache != nil {
		if raw, ok := r.cache.Get(cache.Key{FileNum: r.fileNum, Offset: handle.Offset}); ok {
			return block.NewReader(raw, r.cmp)
		}
	}

	physical := make([]byte, handle.Length)
	if _, err := r.f.ReadAt(physical, int64(handle.Offset)); err != nil {
		return nil, err
	}
	raw, err := block.Parse(physical)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Insert(cache.Key{FileNum: r.fileNum, Offset: handle.Offset}, raw)
	}
	return block.NewReader(raw, r.cmp)
}

// Get looks up the most recent value for key visible as of seq. ok is false
// if the key is not present in this table (including when the filter rules
// it out without touching a data block).
func (r *Reader) Get(key []byte, seq base.SeqNum) (value []byte, kind base.InternalKeyKind, ok bool, err error) {
	if r.filter != nil && !MayContain(r.filter, key) {
		return nil, 0, false, nil
	}

	searchKey := base.MakeSearchKeyAt(key, seq)

	idxIt := r.index.NewIter()
	if !idxIt.SeekGE(searchKey) {
		return nil, 0, false, nil
	}
	handle, _, err := block.DecodeHandle(idxIt.Value())
	if err != nil {
		return nil, 0, false, err
	}

	dataReader, err := r.readDataBlock(handle)
	if err != nil {
		return nil, 0, false, err
	}
	dataIt := dataReader.NewIter()
	if !dataIt.SeekGE(searchKey) {
		return nil, 0, false, nil
	}
	gotKey := dataIt.Key()
	if r.cmp(gotKey.UserKey, key) != 0 {
		return nil, 0, false, nil
	}
	return dataIt.Value(), gotKey.Kind(), true, nil
}

// NewIter returns an iterator over every entry in the table in order.
func (r *Reader) NewIter() *Iterator {
	return &Iterator{r: r, idxIt: r.index.NewIter()}
}

// Size returns the file size in bytes.
func (r *Reader) Size() int64 { return r.size }

// Ref marks the table as borrowed by one more reader.
func (r *Reader) Ref() { r.latch.Add(1) }

// Unref releases a borrow, returning the number of borrowers remaining.
// Once it reaches zero and the table has been superseded by a compaction,
// the engine may unlink its file.
func (r *Reader) Unref() int32 { return r.latch.Add(-1) }

// Close closes the underlying file. The caller must ensure no borrower
// holds a reference.
func (r *Reader) Close() error {
	return r.f.Close()
}

type malformedError string

func (e malformedError) Error() string { return string(e) }

func errMalformed(msg string) error { return malformedError("sstable: " + msg) }
