package boulder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"boulder/internal/codec"
)

func TestOpenSetGetDeleteClose(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, WithCompression(codec.None), WithMemtableSizeLimit(1<<20))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Set([]byte("x"), []byte("1")))
	v, err := db.Get([]byte("x"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	require.NoError(t, db.Delete([]byte("x")))
	_, err = db.Get([]byte("x"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenTwiceFails(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, WithCompression(codec.None))
	require.NoError(t, err)
	defer db.Close()

	_, err = Open(dir, WithCompression(codec.None))
	require.ErrorIs(t, err, ErrLockFailed)
}

func TestScanReturnsOrderedRange(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, WithCompression(codec.None))
	require.NoError(t, err)
	defer db.Close()

	for _, k := range []string{"b", "d", "a", "c"} {
		require.NoError(t, db.Set([]byte(k), []byte(k)))
	}

	it, err := db.Scan([]byte("b"), []byte("d"))
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for it.Valid() {
		got = append(got, string(it.Key()))
		it.Next()
	}
	require.Equal(t, []string{"b", "c"}, got)
}
