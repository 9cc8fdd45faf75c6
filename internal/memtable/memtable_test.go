package memtable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"boulder/internal/base"
	"boulder/internal/compare"
	"boulder/internal/wal"
)

func set(key, value string, seq base.SeqNum) base.InternalKV {
	return base.InternalKV{
		K: base.MakeInternalKey([]byte(key), seq, base.InternalKeyKindSet),
		V: []byte(value),
	}
}

func TestMemTableAddAndGet(t *testing.T) {
	dir := t.TempDir()
	m, err := New(1, 1<<20, 1, dir, wal.SyncNever, compare.Default)
	require.NoError(t, err)

	require.NoError(t, m.Add(set("a", "1", 1)))
	require.NoError(t, m.Add(set("b", "2", 2)))
	require.NoError(t, m.Add(set("a", "3", 3)))

	v, kind, ok := m.Get([]byte("a"), 10)
	require.True(t, ok)
	require.Equal(t, base.InternalKeyKindSet, kind)
	require.Equal(t, "3", string(v))

	_, _, ok = m.Get([]byte("missing"), 10)
	require.False(t, ok)
}

func TestMemTableInvalidSeqNum(t *testing.T) {
	dir := t.TempDir()
	m, err := New(1, 1<<20, 5, dir, wal.SyncNever, compare.Default)
	require.NoError(t, err)

	err = m.Add(set("a", "1", 1))
	require.ErrorIs(t, err, ErrInvalidSeqNum)
}

func TestMemTableFullRotation(t *testing.T) {
	dir := t.TempDir()
	m, err := New(1, 64, 1, dir, wal.SyncNever, compare.Default)
	require.NoError(t, err)

	var lastErr error
	for i := 0; i < 1000; i++ {
		lastErr = m.Add(set("key", "value", base.SeqNum(i+1)))
		if lastErr != nil {
			break
		}
	}
	require.ErrorIs(t, lastErr, ErrMemtableFull)
	require.True(t, m.ReadOnly())
}

func TestMemTableRefCounting(t *testing.T) {
	dir := t.TempDir()
	m, err := New(1, 1<<20, 1, dir, wal.SyncNever, compare.Default)
	require.NoError(t, err)

	m.Ref()
	require.True(t, m.MarkReadOnly())
	m.WaitForWriters()
	require.EqualValues(t, 1, m.Unref())
	require.EqualValues(t, 0, m.Unref())
}
