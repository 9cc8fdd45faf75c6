// Package sstable implements the on-disk sorted-string table format: an
// ordered sequence of data blocks, a bloom filter over every key in the
// table, an index block mapping key ranges to data block locations, and a
// fixed-size footer.
//
// A Reader carries its file number and a Ref/Unref borrow count (plus
// Close) so a superseded file can be unlinked
// only once every borrower has released it, built as a real block-based
// writer and reader on top of internal/block, internal/codec and
// internal/cache.
package sstable

import (
	"os"

	"boulder/internal/base"
	"boulder/internal/block"
	"boulder/internal/codec"
	"boulder/internal/compare"
	"boulder/internal/storage"
)

// Writer builds a single sstable file from internal keys presented in
// increasing order.
type Writer struct {
	f    *storage.Writer
	cmp  compare.Compare
	c    codec.Codec
	data *block.Builder
	idx  *block.Builder
	flt  *FilterBuilder

	targetBlockSize int
	offset          uint64

	numEntries int
	smallest   base.InternalKey
	largest    base.InternalKey

	pendingHandle   block.Handle
	pendingLastKey  base.InternalKey
	havePendingBlk  bool
}

// WriterOptions configures a Writer.
type WriterOptions struct {
	Compression     codec.Codec
	BlockSize       int
	RestartInterval int
}

// NewWriter creates a new sstable at path.
func NewWriter(path string, cmp compare.Compare, opts WriterOptions) (*Writer, error) {
	f, err := storage.NewWriter(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return nil, err
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = 4096
	}
	if opts.RestartInterval <= 0 {
		opts.RestartInterval = 16
	}
	return &Writer{
		f:               f,
		cmp:             cmp,
		c:               opts.Compression,
		data:            block.NewBuilder(opts.RestartInterval),
		idx:             block.NewBuilder(opts.RestartInterval),
		flt:             NewFilterBuilder(),
		targetBlockSize: opts.BlockSize,
	}, nil
}

// Add appends the next entry. Keys must be presented in strictly increasing
// internal-key order.
func (w *Writer) Add(key base.InternalKey, value []byte) error {
	if w.data.Empty() && w.havePendingBlk {
		if err := w.finishIndexEntry(key.UserKey); err != nil {
			return err
		}
	}

	w.flt.Add(key.UserKey)
	if w.numEntries == 0 {
		w.smallest = key
	}
	w.largest = key
	w.numEntries++

	w.data.Add(key, value)

	if w.data.EstimatedSize() >= w.targetBlockSize {
		return w.flushDataBlock()
	}
	return nil
}

// finishIndexEntry emits the index entry for the most recently flushed data
// block now that the first key of the following block (nextUserKey) is
// known, using the shortest separator between the two.
func (w *Writer) finishIndexEntry(nextUserKey []byte) error {
	sep := base.Separator(w.cmp, nil, w.pendingLastKey.UserKey, nextUserKey)
	sepKey := base.InternalKey{UserKey: sep, Trailer: w.pendingLastKey.Trailer}
	w.idx.Add(sepKey, w.pendingHandle.AppendTo(nil))
	w.havePendingBlk = false
	return nil
}

func (w *Writer) flushDataBlock() error {
	if w.data.Empty() {
		return nil
	}
	raw := w.data.Finish()
	physical, err := block.Seal(w.c, raw)
	if err != nil {
		return err
	}
	if _, err := w.f.Write(physical); err != nil {
		return err
	}
	w.pendingHandle = block.Handle{Offset: w.offset, Length: uint64(len(physical))}
	w.pendingLastKey = w.largest
	w.havePendingBlk = true
	w.offset += uint64(len(physical))
	w.data.Reset()
	return nil
}

// Empty reports whether any entries have been added.
func (w *Writer) Empty() bool {
	return w.numEntries == 0
}

// Finish flushes any remaining data, the filter block, the index block and
// the footer, then closes the file.
func (w *Writer) Finish() error {
	if err := w.flushDataBlock(); err != nil {
		return err
	}
	if w.havePendingBlk {
		w.idx.Add(w.pendingLastKey, w.pendingHandle.AppendTo(nil))
		w.havePendingBlk = false
	}

	var filterHandle block.Handle
	haveFilter := !w.flt.Empty()
	if haveFilter {
		filterBytes := w.flt.Finish()
		physical, err := block.Seal(codec.None, filterBytes)
		if err != nil {
			return err
		}
		if _, err := w.f.Write(physical); err != nil {
			return err
		}
		filterHandle = block.Handle{Offset: w.offset, Length: uint64(len(physical))}
		w.offset += uint64(len(physical))
	}

	// The metaindex block maps "filter" to the filter block's handle; it is
	// written even when the table has no filter, so the layout (and the
	// footer's pair of handles) never depends on whether one was built.
	metaIdx := block.NewBuilder(1)
	if haveFilter {
		metaIdx.Add(base.MakeInternalKey([]byte("filter"), 0, base.InternalKeyKindSet), filterHandle.AppendTo(nil))
	}
	metaIdxRaw := metaIdx.Finish()
	metaIdxPhysical, err := block.Seal(codec.None, metaIdxRaw)
	if err != nil {
		return err
	}
	if _, err := w.f.Write(metaIdxPhysical); err != nil {
		return err
	}
	metaIndexHandle := block.Handle{Offset: w.offset, Length: uint64(len(metaIdxPhysical))}
	w.offset += uint64(len(metaIdxPhysical))

	indexRaw := w.idx.Finish()
	indexPhysical, err := block.Seal(w.c, indexRaw)
	if err != nil {
		return err
	}
	if _, err := w.f.Write(indexPhysical); err != nil {
		return err
	}
	indexHandle := block.Handle{Offset: w.offset, Length: uint64(len(indexPhysical))}
	w.offset += uint64(len(indexPhysical))

	ft := footer{metaIndexHandle: metaIndexHandle, indexHandle: indexHandle}
	if _, err := w.f.Write(ft.encode()); err != nil {
		return err
	}
	w.offset += uint64(footerSize)

	return w.f.Close()
}

// Smallest and Largest return the range of internal keys written so far.
// They are only meaningful after at least one Add call.
func (w *Writer) Smallest() base.InternalKey { return w.smallest }
func (w *Writer) Largest() base.InternalKey  { return w.largest }

// NumEntries returns the number of entries added.
func (w *Writer) NumEntries() int { return w.numEntries }

// FileSize returns the number of bytes written so far.
func (w *Writer) FileSize() uint64 { return w.offset }
