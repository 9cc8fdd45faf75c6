package block

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"boulder/internal/base"
	"boulder/internal/codec"
	"boulder/internal/compare"
)

func buildBlock(t *testing.T, restartInterval int, n int) (*Builder, []base.InternalKey) {
	t.Helper()
	b := NewBuilder(restartInterval)
	keys := make([]base.InternalKey, 0, n)
	for i := 0; i < n; i++ {
		key := base.MakeInternalKey([]byte(fmt.Sprintf("key-%05d", i)), base.SeqNum(i+1), base.InternalKeyKindSet)
		keys = append(keys, key)
		b.Add(key, []byte(fmt.Sprintf("value-%d", i)))
	}
	return b, keys
}

func TestBlockRoundTripAndSeek(t *testing.T) {
	for _, c := range []codec.Codec{codec.None, codec.Snappy, codec.LZ4} {
		t.Run(c.String(), func(t *testing.T) {
			b, keys := buildBlock(t, 4, 50)
			raw := b.Finish()

			physical, err := Seal(c, raw)
			require.NoError(t, err)

			decoded, err := Parse(physical)
			require.NoError(t, err)

			r, err := NewReader(decoded, compare.Default)
			require.NoError(t, err)

			it := r.NewIter()
			require.True(t, it.First())
			for i, want := range keys {
				require.Equal(t, string(want.UserKey), string(it.Key().UserKey), "entry %d", i)
				require.Equal(t, fmt.Sprintf("value-%d", i), string(it.Value()))
				if i < len(keys)-1 {
					require.True(t, it.Next())
				}
			}
			require.False(t, it.Next())

			mid := keys[25]
			it2 := r.NewIter()
			require.True(t, it2.SeekGE(mid))
			require.Equal(t, string(mid.UserKey), string(it2.Key().UserKey))
		})
	}
}

func TestBlockSealChecksumMismatch(t *testing.T) {
	b, _ := buildBlock(t, 2, 5)
	raw := b.Finish()
	physical, err := Seal(codec.None, raw)
	require.NoError(t, err)

	corrupt := append([]byte(nil), physical...)
	corrupt[0] ^= 0xff

	_, err = Parse(corrupt)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestBlockEstimatedSizeGrows(t *testing.T) {
	b := NewBuilder(16)
	require.True(t, b.Empty())
	require.Equal(t, 4, b.EstimatedSize())
	b.Add(base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindSet), []byte("1"))
	require.False(t, b.Empty())
	require.Greater(t, b.EstimatedSize(), 4)
}
