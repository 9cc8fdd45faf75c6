// Package boulder implements an embedded, ordered key-value store backed by
// a log-structured merge tree: an in-memory memtable fronting a
// write-ahead log, periodically flushed to immutable, sorted-string table
// files on disk and kept compacted across levels in the background.
//
// This package is a thin façade over internal/engine: Get returns a caller-
// owned copy of the value rather than a cache-pinned slice plus a closer to
// release it, since the underlying store has no zero-copy read path that
// would make that ceremony worth the API surface.
package boulder

import "boulder/internal/engine"

// DB is an open key-value store. The zero value is not usable; construct
// one with Open.
type DB struct {
	e *engine.Engine
}

// Open opens (creating if necessary) the database rooted at directory.
// Only one process may have a directory open at a time; a second Open
// against the same directory returns ErrLockFailed.
func Open(directory string, opts ...Option) (*DB, error) {
	var eopts engine.Options
	for _, opt := range opts {
		opt(&eopts)
	}
	if eopts.Logger == nil {
		eopts.Logger = newDefaultLogger()
	}

	e, err := engine.Open(directory, eopts)
	if err != nil {
		return nil, err
	}
	return &DB{e: e}, nil
}

// Get returns the value for key. It returns ErrNotFound if the database has
// no live value for key. The returned slice is the caller's own copy and
// may be retained or modified freely.
func (db *DB) Get(key []byte) ([]byte, error) {
	v, err := db.e.Get(key)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v...), nil
}

// Set sets the value for key, overwriting any previous value, inserting
// the pair if key did not exist before.
func (db *DB) Set(key, value []byte) error {
	return db.e.Put(key, value)
}

// Delete deletes the value for key. It is a blind delete: no error is
// returned if key did not exist.
func (db *DB) Delete(key []byte) error {
	return db.e.Delete(key)
}

// Scan returns an Iterator over every live key in [lower, upper). A nil
// lower bound starts at the first key; a nil upper bound has no end.
func (db *DB) Scan(lower, upper []byte) (*Iterator, error) {
	it, err := db.e.Scan(lower, upper)
	if err != nil {
		return nil, err
	}
	return &Iterator{it: it}, nil
}

// Close flushes no further writes, drains in-flight background work, and
// releases the database directory.
func (db *DB) Close() error {
	return db.e.Close()
}

// LevelStats summarizes one level's file count and total size, as reported
// by Stats.
type LevelStats = engine.LevelStats

// Stats returns a per-level summary of the database's current file layout.
func (db *DB) Stats() []LevelStats {
	return db.e.Stats()
}

// Iterator walks an ordered range of a database's keys as of the moment
// Scan was called.
type Iterator struct {
	it *engine.Iterator
}

// Valid reports whether the iterator is positioned on an entry.
func (it *Iterator) Valid() bool { return it.it.Valid() }

// Next advances to the next key in range, returning false once exhausted.
func (it *Iterator) Next() bool { return it.it.Next() }

// Key returns the current entry's key.
func (it *Iterator) Key() []byte { return it.it.Key() }

// Value returns the current entry's value.
func (it *Iterator) Value() []byte { return it.it.Value() }

// Close releases the iterator's pinned memtable and sstable references.
func (it *Iterator) Close() error { return it.it.Close() }
