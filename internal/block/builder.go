// Package block implements the sstable data/index block format: a sequence
// of prefix-compressed internal-key/value entries with periodic restart
// points for binary search, sealed behind a pluggable compression codec and
// a CRC32C checksum.
//
// There is no block format in the original repo to adapt — pkg/sstable
// modeled an sstable as "copy a reader's bytes to a new file" rather than
// building one from entries, so it never needed a block layer at all. This
// is grounded on the block layout referenced by cockroachdb/pebble (pulled
// in transitively by the cockroachdb-cockroach example) and on LevelDB's
// widely used restart-point scheme.
package block

import (
	"encoding/binary"
	"hash/crc32"

	"boulder/internal/base"
	"boulder/internal/codec"
	"boulder/internal/compare"
)

// trailerSize is the fixed width of an internal key's trailer (sequence
// number + kind) as encoded within a block entry.
const trailerSize = 8

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Builder accumulates entries for a single block, periodically emitting a
// restart point (a full, uncompressed key) so a reader can binary search
// without decoding from the very first entry.
type Builder struct {
	restartInterval int

	buf      []byte
	restarts []uint32
	counter  int
	prevKey  []byte // userKey ++ 8-byte trailer, of the last entry added

	entryCount int
}

// NewBuilder returns a Builder that emits a restart point every
// restartInterval entries (minimum 1).
func NewBuilder(restartInterval int) *Builder {
	if restartInterval < 1 {
		restartInterval = 1
	}
	return &Builder{restartInterval: restartInterval}
}

// Reset discards any accumulated entries, allowing the Builder to be reused
// for the next block.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.restarts = b.restarts[:0]
	b.counter = 0
	b.prevKey = b.prevKey[:0]
	b.entryCount = 0
}

// Empty reports whether any entries have been added since the last Reset.
func (b *Builder) Empty() bool {
	return b.entryCount == 0
}

// EstimatedSize returns the approximate size, in bytes, the block would
// occupy (uncompressed) if Finish were called now. Callers use this against
// a target block size to decide when a block is full.
func (b *Builder) EstimatedSize() int {
	return len(b.buf) + 4*len(b.restarts) + 4
}

func encodedKey(key base.InternalKey) []byte {
	out := make([]byte, len(key.UserKey)+trailerSize)
	copy(out, key.UserKey)
	binary.LittleEndian.PutUint64(out[len(key.UserKey):], uint64(key.Trailer))
	return out
}

func sharedPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// Add appends a single internal-key/value entry. Keys must be added in
// increasing internal-key order; Add does not itself verify this.
func (b *Builder) Add(key base.InternalKey, value []byte) {
	full := encodedKey(key)

	shared := 0
	restart := b.counter%b.restartInterval == 0
	if !restart {
		shared = sharedPrefixLen(b.prevKey, full)
	} else {
		b.restarts = append(b.restarts, uint32(len(b.buf)))
	}
	nonShared := full[shared:]

	var varintBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(varintBuf[:], uint64(shared))
	b.buf = append(b.buf, varintBuf[:n]...)
	n = binary.PutUvarint(varintBuf[:], uint64(len(nonShared)))
	b.buf = append(b.buf, varintBuf[:n]...)
	n = binary.PutUvarint(varintBuf[:], uint64(len(value)))
	b.buf = append(b.buf, varintBuf[:n]...)

	b.buf = append(b.buf, nonShared...)
	b.buf = append(b.buf, value...)

	b.prevKey = append(b.prevKey[:0], full...)
	b.counter++
	b.entryCount++
}

// Finish serializes the accumulated entries plus the restart-point array
// into the block's uncompressed representation.
func (b *Builder) Finish() []byte {
	out := make([]byte, 0, b.EstimatedSize())
	out = append(out, b.buf...)
	for _, r := range b.restarts {
		var rb [4]byte
		binary.LittleEndian.PutUint32(rb[:], r)
		out = append(out, rb[:]...)
	}
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(b.restarts)))
	out = append(out, countBuf[:]...)
	return out
}

// Seal compresses the finished block contents with c and appends a 1-byte
// codec tag and a 4-byte CRC32C checksum over the compressed payload,
// producing the physical bytes written to an sstable file.
func Seal(c codec.Codec, raw []byte) ([]byte, error) {
	payload, err := codec.Encode(c, nil, raw)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(payload)+5)
	out = append(out, payload...)
	out = append(out, byte(c))
	crc := crc32.Checksum(payload, castagnoli)
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc)
	out = append(out, crcBuf[:]...)
	return out, nil
}

// compareEncodedKey orders two encoded (userKey++trailer) blobs the way
// base.Compare orders InternalKeys, by decoding both into InternalKeys
// first.
func compareEncodedKey(cmp compare.Compare, a, b []byte) int {
	ak, bk := decodeFull(a), decodeFull(b)
	return base.Compare(cmp, ak, bk)
}

func decodeFull(full []byte) base.InternalKey {
	n := len(full) - trailerSize
	trailer := base.InternalKeyTrailer(binary.LittleEndian.Uint64(full[n:]))
	return base.InternalKey{UserKey: full[:n], Trailer: trailer}
}
