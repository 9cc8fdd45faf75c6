package block

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/cockroachdb/errors"

	"boulder/internal/base"
	"boulder/internal/codec"
	"boulder/internal/compare"
)

// ErrChecksumMismatch is returned by Parse when a physical block's stored
// CRC32C does not match its compressed payload.
var ErrChecksumMismatch = errors.New("block: checksum mismatch")

// Parse verifies and decompresses the physical bytes of a block as written
// by Seal, returning its uncompressed contents.
func Parse(physical []byte) ([]byte, error) {
	if len(physical) < 5 {
		return nil, errors.New("block: truncated block")
	}
	n := len(physical) - 5
	payload := physical[:n]
	c := codec.Codec(physical[n])
	wantCRC := binary.LittleEndian.Uint32(physical[n+1:])

	if gotCRC := crc32.Checksum(payload, castagnoli); gotCRC != wantCRC {
		return nil, errors.Wrapf(ErrChecksumMismatch, "got %x want %x", gotCRC, wantCRC)
	}
	return codec.Decode(c, payload)
}

// Reader provides random and sequential access over a single block's
// uncompressed contents.
type Reader struct {
	data     []byte // entries only, restart array and count trimmed off
	restarts []uint32
	cmp      compare.Compare
}

// NewReader parses raw (the uncompressed output of Parse) into a Reader.
func NewReader(raw []byte, cmp compare.Compare) (*Reader, error) {
	if len(raw) < 4 {
		return nil, errors.New("block: truncated block (missing restart count)")
	}
	numRestarts := int(binary.LittleEndian.Uint32(raw[len(raw)-4:]))
	restartsStart := len(raw) - 4 - 4*numRestarts
	if restartsStart < 0 {
		return nil, errors.New("block: truncated block (restart array)")
	}
	restarts := make([]uint32, numRestarts)
	for i := range restarts {
		restarts[i] = binary.LittleEndian.Uint32(raw[restartsStart+4*i:])
	}
	return &Reader{data: raw[:restartsStart], restarts: restarts, cmp: cmp}, nil
}

// decodeAt decodes the entry beginning at offset, given the preceding
// entry's full encoded key (nil if offset is a restart point).
func (r *Reader) decodeAt(offset int, prevFull []byte) (full, value []byte, next int, err error) {
	if offset >= len(r.data) {
		return nil, nil, 0, errors.New("block: offset out of range")
	}
	shared, n1 := binary.Uvarint(r.data[offset:])
	if n1 <= 0 {
		return nil, nil, 0, errors.New("block: invalid entry (shared)")
	}
	nonSharedLen, n2 := binary.Uvarint(r.data[offset+n1:])
	if n2 <= 0 {
		return nil, nil, 0, errors.New("block: invalid entry (non-shared length)")
	}
	valLen, n3 := binary.Uvarint(r.data[offset+n1+n2:])
	if n3 <= 0 {
		return nil, nil, 0, errors.New("block: invalid entry (value length)")
	}
	start := offset + n1 + n2 + n3
	if uint64(start)+nonSharedLen+valLen > uint64(len(r.data)) {
		return nil, nil, 0, errors.New("block: entry overruns block")
	}
	nonShared := r.data[start : start+int(nonSharedLen)]
	val := r.data[start+int(nonSharedLen) : start+int(nonSharedLen)+int(valLen)]

	if shared > uint64(len(prevFull)) {
		return nil, nil, 0, errors.New("block: shared prefix exceeds previous key")
	}
	full = make([]byte, 0, int(shared)+len(nonShared))
	full = append(full, prevFull[:shared]...)
	full = append(full, nonShared...)

	return full, val, start + int(nonSharedLen) + int(valLen), nil
}

// Iterator walks a block's entries in order.
type Iterator struct {
	r        *Reader
	offset   int
	prevFull []byte
	curFull  []byte
	curValue []byte
	valid    bool
}

// NewIter returns an iterator positioned before the first entry.
func (r *Reader) NewIter() *Iterator {
	return &Iterator{r: r}
}

func (it *Iterator) step(offset int, prevFull []byte) bool {
	if offset >= len(it.r.data) {
		it.valid = false
		return false
	}
	full, value, next, err := it.r.decodeAt(offset, prevFull)
	if err != nil {
		it.valid = false
		return false
	}
	it.curFull = full
	it.curValue = value
	it.offset = next
	it.prevFull = full
	it.valid = true
	return true
}

// First positions the iterator at the block's first entry.
func (it *Iterator) First() bool {
	return it.step(0, nil)
}

// Next advances to the following entry.
func (it *Iterator) Next() bool {
	if !it.valid {
		return false
	}
	return it.step(it.offset, it.prevFull)
}

// Valid reports whether the iterator is positioned on an entry.
func (it *Iterator) Valid() bool { return it.valid }

// Key returns the current entry's internal key.
func (it *Iterator) Key() base.InternalKey {
	return decodeFull(it.curFull)
}

// Value returns the current entry's value.
func (it *Iterator) Value() []byte {
	return it.curValue
}

// SeekGE positions the iterator at the first entry whose internal key is
// greater than or equal to key, returning false if no such entry exists.
func (it *Iterator) SeekGE(key base.InternalKey) bool {
	searchFull := encodedKey(key)
	r := it.r

	lo, hi := 0, len(r.restarts)
	for lo < hi {
		mid := (lo + hi) / 2
		full, _, _, err := r.decodeAt(int(r.restarts[mid]), nil)
		if err != nil {
			it.valid = false
			return false
		}
		if compareEncodedKey(r.cmp, full, searchFull) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	index := lo - 1
	if index < 0 {
		index = 0
	}

	offset := 0
	if len(r.restarts) > 0 {
		offset = int(r.restarts[index])
	}

	if !it.step(offset, nil) {
		return false
	}
	for compareEncodedKey(r.cmp, it.curFull, searchFull) < 0 {
		if !it.Next() {
			return false
		}
	}
	return true
}
