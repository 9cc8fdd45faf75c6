package skiplist

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"boulder/internal/arena"
	"boulder/internal/base"
	"boulder/internal/compare"
)

func TestSkiplistAddAndSeek(t *testing.T) {
	s := New(arena.New(64<<10), compare.Default)

	for i := 0; i < 100; i++ {
		key := base.MakeInternalKey([]byte(fmt.Sprintf("key-%03d", i)), base.SeqNum(i+1), base.InternalKeyKindSet)
		require.NoError(t, s.Add(key, []byte(fmt.Sprintf("value-%d", i))))
	}

	it := s.NewIter()
	require.True(t, it.First())
	count := 0
	var prev []byte
	for it.Valid() {
		if prev != nil {
			require.Less(t, string(prev), string(it.Key().UserKey))
		}
		prev = append([]byte(nil), it.Key().UserKey...)
		count++
		if !it.Next() {
			break
		}
	}
	require.Equal(t, 100, count)

	target := base.MakeSearchKey([]byte("key-050"))
	require.True(t, it.SeekGE(target))
	require.Equal(t, "key-050", string(it.Key().UserKey))
}

func TestSkiplistNewerSeqNumSortsFirst(t *testing.T) {
	s := New(arena.New(4<<10), compare.Default)

	require.NoError(t, s.Add(base.MakeInternalKey([]byte("k"), 1, base.InternalKeyKindSet), []byte("v1")))
	require.NoError(t, s.Add(base.MakeInternalKey([]byte("k"), 2, base.InternalKeyKindSet), []byte("v2")))

	it := s.NewIter()
	require.True(t, it.SeekGE(base.MakeSearchKey([]byte("k"))))
	require.Equal(t, base.SeqNum(2), it.Key().SeqNum())
	require.Equal(t, "v2", string(it.Value()))

	require.True(t, it.Next())
	require.Equal(t, base.SeqNum(1), it.Key().SeqNum())
}

func TestSkiplistDuplicateInternalKeyRejected(t *testing.T) {
	s := New(arena.New(4<<10), compare.Default)
	key := base.MakeInternalKey([]byte("k"), 5, base.InternalKeyKindSet)
	require.NoError(t, s.Add(key, []byte("v1")))
	require.ErrorIs(t, s.Add(key, []byte("v2")), ErrRecordExists)
}

func TestSkiplistArenaFull(t *testing.T) {
	s := New(arena.New(64), compare.Default)
	var err error
	for i := 0; i < 1000 && err == nil; i++ {
		err = s.Add(base.MakeInternalKey([]byte(fmt.Sprintf("key-%d", i)), base.SeqNum(i+1), base.InternalKeyKindSet), make([]byte, 32))
	}
	require.ErrorIs(t, err, ErrArenaFull)
}
