package batch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"boulder/internal/base"
)

func TestBatchSetAndDelete(t *testing.T) {
	b := New()
	require.True(t, b.Empty())

	b.Set([]byte("a"), 1, []byte("va"))
	b.Delete([]byte("b"), 2)

	require.Equal(t, 2, b.Len())
	entries := b.Entries()
	require.Equal(t, base.InternalKeyKindSet, entries[0].Kind())
	require.Equal(t, "va", string(entries[0].V))
	require.Equal(t, base.InternalKeyKindDelete, entries[1].Kind())
	require.Empty(t, entries[1].V)
}

func TestBatchSetCopiesValue(t *testing.T) {
	b := New()
	v := []byte("hello")
	b.Set([]byte("k"), 1, v)
	v[0] = 'H'
	require.Equal(t, "hello", string(b.Entries()[0].V))
}
