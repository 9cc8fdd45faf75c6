package manifest

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/cockroachdb/errors"
)

// ErrIncomplete mirrors internal/record's distinction between a clean EOF
// and a truncated trailing record left by a crash mid-append.
var ErrIncomplete = errors.New("manifest: incomplete trailing record")

// ErrCorruption marks a complete record whose CRC does not match.
var ErrCorruption = errors.New("manifest: checksum mismatch")

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const recordHeaderSize = 4 + 4

func appendRecord(dst, payload []byte) []byte {
	var header [recordHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], crc32.Checksum(payload, castagnoli))
	dst = append(dst, header[:]...)
	return append(dst, payload...)
}

func readRecord(r io.Reader) ([]byte, error) {
	var header [recordHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errors.Mark(errors.Wrap(err, "manifest: short header read"), ErrIncomplete)
	}
	length := binary.LittleEndian.Uint32(header[0:4])
	wantCRC := binary.LittleEndian.Uint32(header[4:8])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "manifest: short payload read"), ErrIncomplete)
	}
	if gotCRC := crc32.Checksum(payload, castagnoli); gotCRC != wantCRC {
		return nil, errors.Mark(errors.Newf("manifest: crc mismatch: got %x want %x", gotCRC, wantCRC), ErrCorruption)
	}
	return payload, nil
}
