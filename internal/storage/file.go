// Package storage wraps the direct-I/O file writer used underneath the WAL.
//
// Direct I/O (O_DIRECT) requires page-aligned buffers and block-sized
// writes. Appends are buffered until a full block accumulates; a Sync call
// rewrites the still-open tail block in place (padded with zeros) so
// durability can be requested before a block is full, without losing track
// of the logical (unpadded) byte stream on the next append.
//
// Not every filesystem supports O_DIRECT (notably tmpfs, used by some test
// sandboxes); NewWriter falls back to a plain buffered file in that case.
package storage

import (
	"os"

	"github.com/ncw/directio"
)

// Writer is an append-only, block-padded direct-I/O file writer.
type Writer struct {
	file      *os.File
	blockSize int
	direct    bool
	pending   []byte
	closedOff int64
}

// NewWriter opens name for append-only writing, attempting O_DIRECT first.
func NewWriter(name string, flag int) (*Writer, error) {
	if f, err := directio.OpenFile(name, flag, 0644); err == nil {
		return &Writer{file: f, blockSize: directio.BlockSize, direct: true}, nil
	}

	f, err := os.OpenFile(name, flag, 0644)
	if err != nil {
		return nil, err
	}
	return &Writer{file: f, blockSize: 1, direct: false}, nil
}

// Write buffers p and flushes any now-complete blocks to disk. It never
// partially writes a logical byte out of order: bytes are only ever
// written as part of a full block (direct mode) or immediately (fallback
// mode).
func (w *Writer) Write(p []byte) (int, error) {
	if !w.direct {
		return w.file.Write(p)
	}

	n := len(p)
	w.pending = append(w.pending, p...)
	for len(w.pending) >= w.blockSize {
		block := directio.AlignedBlock(w.blockSize)
		copy(block, w.pending[:w.blockSize])
		if _, err := w.file.WriteAt(block, w.closedOff); err != nil {
			return 0, err
		}
		w.closedOff += int64(w.blockSize)
		w.pending = append([]byte(nil), w.pending[w.blockSize:]...)
	}
	return n, nil
}

// Sync makes all data written so far durable. In direct mode this rewrites
// the still-open tail block (zero-padded) at its existing offset without
// advancing past it, so a subsequent Write continues the logical stream
// from the same point. The file is then truncated back to the logical
// (unpadded) byte length, since the zero-padding written to satisfy
// O_DIRECT's block-size requirement is not part of the logical stream and
// must not be visible to a reader that trusts the file's size (WAL replay,
// an sstable footer located via EOF).
func (w *Writer) Sync() error {
	if w.direct && len(w.pending) > 0 {
		block := directio.AlignedBlock(w.blockSize)
		copy(block, w.pending)
		if _, err := w.file.WriteAt(block, w.closedOff); err != nil {
			return err
		}
		if err := w.file.Truncate(w.closedOff + int64(len(w.pending))); err != nil {
			return err
		}
	}
	return w.file.Sync()
}

// Close flushes any pending tail block and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.Sync(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}
