// Package codec implements pluggable sstable block compression: none, lz4,
// or snappy. The original repo's storage/compression package was a
// comment-only stub; this is a real implementation against the two codecs
// carried by the wider example pool's go.mod files.
package codec

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies a block compression algorithm. The zero value is None.
type Codec uint8

const (
	None Codec = iota
	Snappy
	LZ4
)

// String implements fmt.Stringer, used in log lines and error messages.
func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	case LZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// ParseCodec maps a compression name ("", "none", "snappy" or "lz4") to a
// Codec.
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "", "none":
		return None, nil
	case "snappy":
		return Snappy, nil
	case "lz4":
		return LZ4, nil
	default:
		return None, errors.Newf("codec: unknown compression %q", s)
	}
}

// storedFlag and compressedFlag tag the byte immediately following the
// uncompressed-length varint, so Decode knows whether the LZ4 path stored
// the payload raw (declined by the compressor as incompressible) or as a
// real LZ4 block. Snappy's format is self-describing and doesn't need this.
const (
	compressedFlag byte = 0
	storedFlag     byte = 1
)

// Encode compresses src with c and appends a varint-prefixed uncompressed
// length plus the compressed payload to dst. The uncompressed length lets
// Decode size its output buffer without the caller threading it through
// separately.
func Encode(c Codec, dst, src []byte) ([]byte, error) {
	dst = appendUvarint(dst, uint64(len(src)))

	switch c {
	case None:
		return append(dst, src...), nil

	case Snappy:
		return append(dst, snappy.Encode(nil, src)...), nil

	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(src)))
		var compressor lz4.Compressor
		n, err := compressor.CompressBlock(src, buf)
		if err != nil {
			return nil, errors.Wrap(err, "codec: lz4 compress")
		}
		if n == 0 {
			// lz4 declines to emit a block for incompressible (or empty)
			// input; store it raw instead of losing the data.
			dst = append(dst, storedFlag)
			return append(dst, src...), nil
		}
		dst = append(dst, compressedFlag)
		return append(dst, buf[:n]...), nil

	default:
		return nil, errors.Newf("codec: unknown codec %d", c)
	}
}

func appendUvarint(dst []byte, n uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	nn := binary.PutUvarint(buf[:], n)
	return append(dst, buf[:nn]...)
}

// Decode reverses Encode: src is the varint-prefixed compressed payload
// produced by Encode for codec c.
func Decode(c Codec, src []byte) ([]byte, error) {
	uncompressedLen, n := binary.Uvarint(src)
	if n <= 0 {
		return nil, errors.New("codec: invalid length prefix")
	}
	payload := src[n:]

	switch c {
	case None:
		if uint64(len(payload)) != uncompressedLen {
			return nil, errors.New("codec: length mismatch for uncompressed block")
		}
		return payload, nil

	case Snappy:
		out := make([]byte, uncompressedLen)
		decoded, err := snappy.Decode(out, payload)
		if err != nil {
			return nil, errors.Wrap(err, "codec: snappy decompress")
		}
		return decoded, nil

	case LZ4:
		if len(payload) == 0 {
			return nil, errors.New("codec: truncated lz4 payload")
		}
		flag, payload := payload[0], payload[1:]
		if flag == storedFlag {
			if uint64(len(payload)) != uncompressedLen {
				return nil, errors.New("codec: length mismatch for stored lz4 block")
			}
			return payload, nil
		}
		out := make([]byte, uncompressedLen)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, errors.Wrap(err, "codec: lz4 decompress")
		}
		return out[:n], nil

	default:
		return nil, errors.Newf("codec: unknown codec %d", c)
	}
}
