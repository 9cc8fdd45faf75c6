package sstable

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"boulder/internal/base"
	"boulder/internal/cache"
	"boulder/internal/codec"
	"boulder/internal/compare"
)

func writeTable(t *testing.T, path string, n int, c codec.Codec) (base.InternalKey, base.InternalKey) {
	t.Helper()
	w, err := NewWriter(path, compare.Default, WriterOptions{Compression: c, BlockSize: 256, RestartInterval: 4})
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		key := base.MakeInternalKey([]byte(fmt.Sprintf("key-%05d", i)), base.SeqNum(i+1), base.InternalKeyKindSet)
		require.NoError(t, w.Add(key, []byte(fmt.Sprintf("value-%d", i))))
	}
	require.NoError(t, w.Finish())
	return w.Smallest(), w.Largest()
}

func TestWriterReaderGet(t *testing.T) {
	for _, c := range []codec.Codec{codec.None, codec.Snappy, codec.LZ4} {
		t.Run(c.String(), func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "000001.sst")
			writeTable(t, path, 300, c)

			r, err := Open(path, 1, compare.Default, nil)
			require.NoError(t, err)
			defer r.Close()

			v, kind, ok, err := r.Get([]byte("key-00150"), base.SeqNumMax)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, base.InternalKeyKindSet, kind)
			require.Equal(t, "value-150", string(v))

			_, _, ok, err = r.Get([]byte("missing-key"), base.SeqNumMax)
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestWriterReaderIterator(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "000002.sst")
	writeTable(t, path, 250, codec.Snappy)

	r, err := Open(path, 2, compare.Default, nil)
	require.NoError(t, err)
	defer r.Close()

	it := r.NewIter()
	require.True(t, it.First())
	count := 0
	for {
		count++
		if !it.Next() {
			break
		}
	}
	require.Equal(t, 250, count)
}

func TestWriterReaderWithCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "000003.sst")
	writeTable(t, path, 200, codec.None)

	c, err := cache.New(1 << 20)
	require.NoError(t, err)
	defer c.Close()

	r, err := Open(path, 3, compare.Default, c)
	require.NoError(t, err)
	defer r.Close()

	for i := 0; i < 5; i++ {
		v, _, ok, err := r.Get([]byte("key-00010"), base.SeqNumMax)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "value-10", string(v))
	}
}

func TestWriterReaderFilterRulesOutMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "000004.sst")
	writeTable(t, path, 1000, codec.None)

	r, err := Open(path, 4, compare.Default, nil)
	require.NoError(t, err)
	defer r.Close()
	require.NotNil(t, r.filter)

	_, _, ok, err := r.Get([]byte("definitely-absent"), base.SeqNumMax)
	require.NoError(t, err)
	require.False(t, ok)
}
