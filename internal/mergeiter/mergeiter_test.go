package mergeiter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"boulder/internal/base"
	"boulder/internal/compare"
)

// sliceIter is a minimal in-memory iterator.Iterator backed by a
// pre-sorted slice, used to exercise MergeIterator without a real
// memtable or sstable.
type sliceIter struct {
	entries []base.InternalKV
	pos     int
}

func newSliceIter(entries ...base.InternalKV) *sliceIter {
	return &sliceIter{entries: entries, pos: -1}
}

func (s *sliceIter) First() bool {
	if len(s.entries) == 0 {
		s.pos = -1
		return false
	}
	s.pos = 0
	return true
}

func (s *sliceIter) Next() bool {
	if s.pos < 0 {
		return false
	}
	s.pos++
	if s.pos >= len(s.entries) {
		s.pos = -1
		return false
	}
	return true
}

func (s *sliceIter) SeekGE(key base.InternalKey) bool {
	for i, e := range s.entries {
		if base.Compare(compare.Default, e.K, key) >= 0 {
			s.pos = i
			return true
		}
	}
	s.pos = -1
	return false
}

func (s *sliceIter) Valid() bool            { return s.pos >= 0 }
func (s *sliceIter) Key() base.InternalKey  { return s.entries[s.pos].K }
func (s *sliceIter) Value() []byte          { return s.entries[s.pos].V }

func kv(key string, seq base.SeqNum, kind base.InternalKeyKind, value string) base.InternalKV {
	return base.InternalKV{K: base.MakeInternalKey([]byte(key), seq, kind), V: []byte(value)}
}

func TestMergeIteratorDedupesNewestWins(t *testing.T) {
	memtable := newSliceIter(
		kv("a", 5, base.InternalKeyKindSet, "a-new"),
		kv("c", 6, base.InternalKeyKindSet, "c-new"),
	)
	sst1 := newSliceIter(
		kv("a", 1, base.InternalKeyKindSet, "a-old"),
		kv("b", 2, base.InternalKeyKindSet, "b-only"),
	)
	sst2 := newSliceIter(
		kv("c", 3, base.InternalKeyKindSet, "c-old"),
	)

	m := New(compare.Default, base.SeqNumMax, memtable, sst1, sst2)
	require.True(t, m.First())

	var got []string
	for m.Valid() {
		got = append(got, string(m.Key().UserKey)+"="+string(m.Value()))
		if !m.Next() {
			break
		}
	}
	require.Equal(t, []string{"a=a-new", "b=b-only", "c=c-new"}, got)
}

func TestMergeIteratorHonorsReadSeq(t *testing.T) {
	src := newSliceIter(
		kv("a", 10, base.InternalKeyKindSet, "future"),
		kv("a", 2, base.InternalKeyKindSet, "visible"),
	)

	m := New(compare.Default, 5, src)
	require.True(t, m.First())
	require.Equal(t, "visible", string(m.Value()))
	require.False(t, m.Next())
}

func TestMergeIteratorExposesTombstones(t *testing.T) {
	src := newSliceIter(kv("a", 1, base.InternalKeyKindDelete, ""))
	m := New(compare.Default, base.SeqNumMax, src)
	require.True(t, m.First())
	require.Equal(t, base.InternalKeyKindDelete, m.Key().Kind())
}

func TestMergeIteratorSeekGE(t *testing.T) {
	src1 := newSliceIter(kv("a", 1, base.InternalKeyKindSet, "1"), kv("c", 2, base.InternalKeyKindSet, "3"))
	src2 := newSliceIter(kv("b", 3, base.InternalKeyKindSet, "2"))

	m := New(compare.Default, base.SeqNumMax, src1, src2)
	require.True(t, m.SeekGE(base.MakeSearchKey([]byte("b"))))
	require.Equal(t, "b", string(m.Key().UserKey))
}
