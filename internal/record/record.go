// Package record implements WAL record framing: a length-prefixed,
// CRC32C-guarded encoding of a single sequenced key/value write.
//
//	length(u32 LE) | crc32c(u32 LE) | seq(u64 LE) | kind(u8) | klen(varint) | key | vlen(varint) | value
//
// CRC32C (the Castagnoli polynomial) is computed over everything after the
// crc field itself, i.e. seq through value. There is no third-party CRC32C
// implementation in the example pool; hash/crc32's Castagnoli table is the
// canonical stdlib tool for exactly this (pebble, vendored transitively via
// cockroachdb-cockroach, does the same).
package record

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/cockroachdb/errors"

	"boulder/internal/base"
)

// ErrCorruption is returned when a complete record's CRC does not match its
// payload — damage to bytes the writer believed it had fully written, as
// opposed to an in-flight write interrupted mid-append.
var ErrCorruption = errors.New("record: checksum mismatch")

// ErrIncomplete is returned when the stream ends before a full record could
// be read: the tolerable shape of a crash that happened mid-append.
var ErrIncomplete = errors.New("record: incomplete trailing record")

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const headerSize = 4 + 4 // length + crc

// Encode appends the framed encoding of a single write to dst and returns
// the extended slice.
func Encode(dst []byte, seq base.SeqNum, kind base.InternalKeyKind, key, value []byte) []byte {
	payload := make([]byte, 0, 8+1+binary.MaxVarintLen64+len(key)+binary.MaxVarintLen64+len(value))
	var buf8 [8]byte
	binary.LittleEndian.PutUint64(buf8[:], uint64(seq))
	payload = append(payload, buf8[:]...)
	payload = append(payload, byte(kind))

	var varintBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(varintBuf[:], uint64(len(key)))
	payload = append(payload, varintBuf[:n]...)
	payload = append(payload, key...)

	n = binary.PutUvarint(varintBuf[:], uint64(len(value)))
	payload = append(payload, varintBuf[:n]...)
	payload = append(payload, value...)

	crc := crc32.Checksum(payload, castagnoli)

	var header [headerSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], crc)

	dst = append(dst, header[:]...)
	dst = append(dst, payload...)
	return dst
}

// Record is a single decoded WAL entry.
type Record struct {
	Seq   base.SeqNum
	Kind  base.InternalKeyKind
	Key   []byte
	Value []byte
}

// Read decodes a single record from r. It returns io.EOF if r is exhausted
// exactly at a record boundary (the clean end of a WAL), and an error
// marked with ErrIncomplete if r is exhausted in the middle of a record —
// the signal callers use to detect and tolerate a truncated tail left by a
// crash mid-write.
func Read(r io.Reader) (Record, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, errors.Mark(errors.Wrap(err, "record: short header read"), ErrIncomplete)
	}
	length := binary.LittleEndian.Uint32(header[0:4])
	wantCRC := binary.LittleEndian.Uint32(header[4:8])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Record{}, errors.Mark(errors.Wrap(err, "record: short payload read"), ErrIncomplete)
	}

	if gotCRC := crc32.Checksum(payload, castagnoli); gotCRC != wantCRC {
		return Record{}, errors.Mark(errors.Newf("record: crc mismatch: got %x want %x", gotCRC, wantCRC), ErrCorruption)
	}

	if len(payload) < 9 {
		return Record{}, errors.Mark(errors.New("record: payload too short"), ErrCorruption)
	}
	seq := base.SeqNum(binary.LittleEndian.Uint64(payload[0:8]))
	kind := base.InternalKeyKind(payload[8])
	rest := payload[9:]

	klen, n := binary.Uvarint(rest)
	if n <= 0 || uint64(n)+klen > uint64(len(rest)) {
		return Record{}, errors.Mark(errors.New("record: invalid key length"), ErrCorruption)
	}
	rest = rest[n:]
	key := rest[:klen]
	rest = rest[klen:]

	vlen, n := binary.Uvarint(rest)
	if n <= 0 || uint64(n)+vlen > uint64(len(rest)) {
		return Record{}, errors.Mark(errors.New("record: invalid value length"), ErrCorruption)
	}
	rest = rest[n:]
	value := rest[:vlen]

	return Record{Seq: seq, Kind: kind, Key: key, Value: value}, nil
}
