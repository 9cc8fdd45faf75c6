package sstable

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"boulder/internal/block"
)

// magic identifies a file as one of this engine's sstables, written as the
// final 8 bytes so a reader can validate the format before trusting
// anything else it parses.
const magic = "BLDRSST1"

// handleSlotSize is the maximum varint encoding of a block.Handle (two
// uvarints, each up to binary.MaxVarintLen64 bytes). The footer reserves
// exactly this many bytes per handle and zero-pads the remainder, so the
// footer as a whole stays fixed size (seekable from EOF without decoding
// anything else first) even though each handle inside it is varint-encoded.
const handleSlotSize = 2 * binary.MaxVarintLen64

// footerSize is fixed (not varint-encoded) so a reader can always find it
// by seeking footerSize bytes from the end of the file, before it has
// decoded anything else.
const footerSize = handleSlotSize + handleSlotSize + len(magic)

// footer records the metaindex block handle and the index block handle.
// The filter block's handle is not stored here; it lives in the metaindex
// block under the key "filter", reserving the footer's remaining layout for
// future metaindex entries without changing its fixed size.
type footer struct {
	metaIndexHandle block.Handle
	indexHandle     block.Handle
}

func (f footer) encode() []byte {
	dst := make([]byte, 0, footerSize)
	dst = appendHandleSlot(dst, f.metaIndexHandle)
	dst = appendHandleSlot(dst, f.indexHandle)
	dst = append(dst, magic...)
	return dst
}

func appendHandleSlot(dst []byte, h block.Handle) []byte {
	start := len(dst)
	dst = h.AppendTo(dst)
	written := len(dst) - start
	for i := written; i < handleSlotSize; i++ {
		dst = append(dst, 0)
	}
	return dst
}

func decodeFooter(buf []byte) (footer, error) {
	if len(buf) != footerSize {
		return footer{}, errors.New("sstable: malformed footer length")
	}
	if string(buf[2*handleSlotSize:]) != magic {
		return footer{}, errors.New("sstable: bad magic, not a recognized sstable")
	}

	metaIndexHandle, _, err := block.DecodeHandle(buf[0:handleSlotSize])
	if err != nil {
		return footer{}, errors.Wrap(err, "sstable: decoding metaindex handle")
	}
	indexHandle, _, err := block.DecodeHandle(buf[handleSlotSize : 2*handleSlotSize])
	if err != nil {
		return footer{}, errors.Wrap(err, "sstable: decoding index handle")
	}

	return footer{metaIndexHandle: metaIndexHandle, indexHandle: indexHandle}, nil
}
