package wal

import (
	"bufio"
	"io"
	"os"

	"github.com/cockroachdb/errors"

	"boulder/internal/base"
	"boulder/internal/record"
)

// Replay reads every well-formed record from the WAL file at path in order
// and invokes fn for each. Replay stops at the first sign of a truncated or
// corrupt tail rather than failing the whole recovery: a process can crash
// mid-append, leaving a partially written final record, and that is not
// itself evidence that any previously fsynced record is damaged. It returns
// the highest sequence number observed, or base.SeqNumZero if the file was
// empty.
//
// A non-tail corruption (detected in the middle of the file, i.e. before a
// subsequent well-formed record) is still surfaced as an error: that
// indicates damage to data the engine believed durable, not an in-flight
// write that never completed.
func Replay(path string, fn func(base.InternalKV) error) (base.SeqNum, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base.SeqNumZero, nil
		}
		return base.SeqNumZero, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var lastSeq base.SeqNum
	for {
		rec, err := record.Read(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lastSeq, nil
			}
			if errors.Is(err, record.ErrIncomplete) {
				// Tolerate a truncated tail: treat it as the logical end of
				// the log rather than failing recovery outright.
				return lastSeq, nil
			}
			if errors.Is(err, record.ErrCorruption) {
				if _, perr := r.Peek(1); errors.Is(perr, io.EOF) {
					// A bad final record is a torn tail, not lost data.
					return lastSeq, nil
				}
				return lastSeq, errors.Wrap(err, "wal: replay: corrupt record")
			}
			return lastSeq, errors.Wrap(err, "wal: replay")
		}

		kind := rec.Kind
		kv := base.InternalKV{
			K: base.MakeInternalKey(rec.Key, rec.Seq, kind),
			V: rec.Value,
		}
		if err := fn(kv); err != nil {
			return lastSeq, err
		}
		if rec.Seq > lastSeq {
			lastSeq = rec.Seq
		}
	}
}
