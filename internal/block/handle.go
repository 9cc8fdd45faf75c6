package block

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// Handle locates a block within an sstable file: its offset and length on
// disk. Length covers the whole physical block, including the trailing
// codec byte and CRC32C.
type Handle struct {
	Offset uint64
	Length uint64
}

// AppendTo appends the varint encoding of h to dst.
func (h Handle) AppendTo(dst []byte) []byte {
	var buf [2 * binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], h.Offset)
	n += binary.PutUvarint(buf[n:], h.Length)
	return append(dst, buf[:n]...)
}

// DecodeHandle reads a varint-encoded handle from src, returning the number
// of bytes consumed.
func DecodeHandle(src []byte) (Handle, int, error) {
	offset, n1 := binary.Uvarint(src)
	if n1 <= 0 {
		return Handle{}, 0, errors.New("block: invalid handle offset")
	}
	length, n2 := binary.Uvarint(src[n1:])
	if n2 <= 0 {
		return Handle{}, 0, errors.New("block: invalid handle length")
	}
	return Handle{Offset: offset, Length: length}, n1 + n2, nil
}
