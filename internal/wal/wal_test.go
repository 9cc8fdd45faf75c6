package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"boulder/internal/base"
)

func kv(key string, seq base.SeqNum, kind base.InternalKeyKind, value string) base.InternalKV {
	return base.InternalKV{
		K: base.MakeInternalKey([]byte(key), seq, kind),
		V: []byte(value),
	}
}

func TestWriterReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := FileName(dir, 1)

	w, err := Create(path, SyncPerWrite)
	require.NoError(t, err)

	entries := []base.InternalKV{
		kv("a", 1, base.InternalKeyKindSet, "1"),
		kv("b", 2, base.InternalKeyKindSet, "2"),
		kv("a", 3, base.InternalKeyKindDelete, ""),
	}
	for _, e := range entries {
		require.NoError(t, w.Write(e))
	}
	require.NoError(t, w.Close())

	var got []base.InternalKV
	lastSeq, err := Replay(path, func(kv base.InternalKV) error {
		got = append(got, kv)
		return nil
	})
	require.NoError(t, err)
	require.EqualValues(t, 3, lastSeq)
	require.Len(t, got, 3)
	require.Equal(t, "a", string(got[0].K.UserKey))
	require.Equal(t, base.InternalKeyKindDelete, got[2].K.Kind())
}

func TestReplayMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	seq, err := Replay(filepath.Join(dir, "000001.wal"), func(base.InternalKV) error { return nil })
	require.NoError(t, err)
	require.EqualValues(t, 0, seq)
}

func TestReplayTruncatedTailIsTolerated(t *testing.T) {
	dir := t.TempDir()
	path := FileName(dir, 2)

	w, err := Create(path, SyncPerBatch)
	require.NoError(t, err)
	require.NoError(t, w.WriteBatch([]base.InternalKV{
		kv("x", 1, base.InternalKeyKindSet, "1"),
		kv("y", 2, base.InternalKeyKindSet, "2"),
	}))
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-1))

	var count int
	_, err = Replay(path, func(base.InternalKV) error {
		count++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
