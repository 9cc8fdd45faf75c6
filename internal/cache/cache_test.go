package cache

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheGetInsert(t *testing.T) {
	c, err := New(1 << 16)
	require.NoError(t, err)
	defer c.Close()

	k := Key{FileNum: 1, Offset: 0}
	_, ok := c.Get(k)
	require.False(t, ok)

	c.Insert(k, []byte("hello"))
	v, ok := c.Get(k)
	require.True(t, ok)
	require.Equal(t, "hello", string(v))
}

func TestCacheEvictsColdEntriesUnderPressure(t *testing.T) {
	c, err := New(1024)
	require.NoError(t, err)
	defer c.Close()

	value := bytes.Repeat([]byte("x"), 100)
	for i := uint64(0); i < 20; i++ {
		c.Insert(Key{FileNum: 1, Offset: i}, value)
		// Keep entry 0 warm so it survives eviction.
		c.Get(Key{FileNum: 1, Offset: 0})
	}

	_, ok := c.Get(Key{FileNum: 1, Offset: 0})
	require.True(t, ok, "frequently accessed entry should survive eviction")

	total := 0
	for i := uint64(0); i < 20; i++ {
		if _, ok := c.Get(Key{FileNum: 1, Offset: i}); ok {
			total++
		}
	}
	require.Less(t, total, 20, "some entries should have been evicted")
}

func TestCacheOversizedValueNotCached(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)
	defer c.Close()

	k := Key{FileNum: 1, Offset: 0}
	c.Insert(k, bytes.Repeat([]byte("x"), 100))
	_, ok := c.Get(k)
	require.False(t, ok)
}
