package manifest

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"

	"boulder/internal/base"
)

// VersionEdit describes a single transition from one Version to the next:
// files added and removed, and (optionally) an updated file-number/sequence
// allocator high-water mark.
type VersionEdit struct {
	NextFileNum uint64
	LastSeqNum  base.SeqNum
	NewFiles    []FileMetadata
	DeletedFiles []DeletedFile
	// CompactPointers records, per level, the key a future compaction of
	// that level should resume after, so repeated compactions cycle
	// through a level's key space round-robin rather than always starting
	// at the beginning.
	CompactPointers map[int]base.InternalKey
}

// DeletedFile identifies a file removed from a level by this edit.
type DeletedFile struct {
	Level   int
	FileNum uint64
}

const (
	tagNextFileNum    = 1
	tagLastSeqNum     = 2
	tagNewFile        = 3
	tagDeletedFile    = 4
	tagCompactPointer = 5
)

func appendUvarint(dst []byte, v uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return append(dst, buf[:n]...)
}

func appendBytes(dst, b []byte) []byte {
	dst = appendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

func readUvarint(src []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(src)
	if n <= 0 {
		return 0, nil, errors.New("manifest: invalid varint")
	}
	return v, src[n:], nil
}

func readBytes(src []byte) ([]byte, []byte, error) {
	n, rest, err := readUvarint(src)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < n {
		return nil, nil, errors.New("manifest: truncated byte field")
	}
	return rest[:n], rest[n:], nil
}

func readInternalKey(src []byte) (base.InternalKey, []byte, error) {
	userKey, rest, err := readBytes(src)
	if err != nil {
		return base.InternalKey{}, nil, err
	}
	trailer, rest, err := readUvarint(rest)
	if err != nil {
		return base.InternalKey{}, nil, err
	}
	return base.InternalKey{UserKey: userKey, Trailer: base.InternalKeyTrailer(trailer)}, rest, nil
}

func appendInternalKey(dst []byte, k base.InternalKey) []byte {
	dst = appendBytes(dst, k.UserKey)
	return appendUvarint(dst, uint64(k.Trailer))
}

// Encode serializes e into a tagged binary record.
func (e VersionEdit) Encode() []byte {
	var buf []byte
	if e.NextFileNum != 0 {
		buf = append(buf, tagNextFileNum)
		buf = appendUvarint(buf, e.NextFileNum)
	}
	if e.LastSeqNum != 0 {
		buf = append(buf, tagLastSeqNum)
		buf = appendUvarint(buf, uint64(e.LastSeqNum))
	}
	for _, f := range e.NewFiles {
		buf = append(buf, tagNewFile)
		buf = appendUvarint(buf, uint64(f.Level))
		buf = appendUvarint(buf, f.FileNum)
		buf = appendInternalKey(buf, f.Smallest)
		buf = appendInternalKey(buf, f.Largest)
		buf = appendUvarint(buf, f.Size)
		buf = appendUvarint(buf, uint64(f.NumEntries))
	}
	for _, d := range e.DeletedFiles {
		buf = append(buf, tagDeletedFile)
		buf = appendUvarint(buf, uint64(d.Level))
		buf = appendUvarint(buf, d.FileNum)
	}
	for level, key := range e.CompactPointers {
		buf = append(buf, tagCompactPointer)
		buf = appendUvarint(buf, uint64(level))
		buf = appendInternalKey(buf, key)
	}
	return buf
}

// DecodeVersionEdit parses the output of Encode.
func DecodeVersionEdit(buf []byte) (VersionEdit, error) {
	var e VersionEdit
	for len(buf) > 0 {
		tag := buf[0]
		buf = buf[1:]
		var err error
		switch tag {
		case tagNextFileNum:
			var v uint64
			v, buf, err = readUvarint(buf)
			e.NextFileNum = v
		case tagLastSeqNum:
			var v uint64
			v, buf, err = readUvarint(buf)
			e.LastSeqNum = base.SeqNum(v)
		case tagNewFile:
			var f FileMetadata
			var level, fileNum, size, numEntries uint64
			level, buf, err = readUvarint(buf)
			if err != nil {
				break
			}
			fileNum, buf, err = readUvarint(buf)
			if err != nil {
				break
			}
			f.Level = int(level)
			f.FileNum = fileNum
			f.Smallest, buf, err = readInternalKey(buf)
			if err != nil {
				break
			}
			f.Largest, buf, err = readInternalKey(buf)
			if err != nil {
				break
			}
			size, buf, err = readUvarint(buf)
			if err != nil {
				break
			}
			numEntries, buf, err = readUvarint(buf)
			f.Size = size
			f.NumEntries = int(numEntries)
			e.NewFiles = append(e.NewFiles, f)
		case tagDeletedFile:
			var d DeletedFile
			var level, fileNum uint64
			level, buf, err = readUvarint(buf)
			if err != nil {
				break
			}
			fileNum, buf, err = readUvarint(buf)
			d.Level = int(level)
			d.FileNum = fileNum
			e.DeletedFiles = append(e.DeletedFiles, d)
		case tagCompactPointer:
			var level uint64
			level, buf, err = readUvarint(buf)
			if err != nil {
				break
			}
			var key base.InternalKey
			key, buf, err = readInternalKey(buf)
			if err != nil {
				break
			}
			if e.CompactPointers == nil {
				e.CompactPointers = make(map[int]base.InternalKey)
			}
			e.CompactPointers[int(level)] = key
		default:
			return VersionEdit{}, errors.Newf("manifest: unknown version edit tag %d", tag)
		}
		if err != nil {
			return VersionEdit{}, err
		}
	}
	return e, nil
}
