package compaction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"boulder/internal/base"
	"boulder/internal/codec"
	"boulder/internal/compare"
	"boulder/internal/manifest"
	"boulder/internal/sstable"
)

func writeTestTable(t *testing.T, dir string, fileNum uint64, entries ...base.InternalKV) *manifest.FileMetadata {
	t.Helper()
	w, err := sstable.NewWriter(sstable.FileName(dir, fileNum), compare.Default, sstable.WriterOptions{Compression: codec.None})
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, w.Add(e.K, e.V))
	}
	require.NoError(t, w.Finish())
	return &manifest.FileMetadata{
		FileNum:    fileNum,
		Smallest:   entries[0].K,
		Largest:    entries[len(entries)-1].K,
		Size:       w.FileSize(),
		NumEntries: len(entries),
	}
}

func TestPickLevelScoresL0ByFileCount(t *testing.T) {
	p := NewPicker(Options{Cmp: compare.Default, L0CompactionTrigger: 2})

	ed := manifest.VersionEdit{NewFiles: []manifest.FileMetadata{
		{FileNum: 1, Level: 0, Size: 10},
		{FileNum: 2, Level: 0, Size: 10},
	}}
	dir := t.TempDir()
	m, err := manifest.Create(dir)
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, m.Apply(ed))

	cur := m.Current()
	defer cur.Unref()

	level, score, ok := p.PickLevel(cur)
	require.True(t, ok)
	require.Equal(t, 0, level)
	require.GreaterOrEqual(t, score, 1.0)
}

func TestComposeJobL0IncludesAllL0Files(t *testing.T) {
	p := NewPicker(Options{Cmp: compare.Default, L0CompactionTrigger: 1})

	dir := t.TempDir()
	m, err := manifest.Create(dir)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Apply(manifest.VersionEdit{NewFiles: []manifest.FileMetadata{
		{FileNum: 1, Level: 0,
			Smallest: base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindSet),
			Largest:  base.MakeInternalKey([]byte("m"), 1, base.InternalKeyKindSet)},
		{FileNum: 2, Level: 0,
			Smallest: base.MakeInternalKey([]byte("n"), 2, base.InternalKeyKindSet),
			Largest:  base.MakeInternalKey([]byte("z"), 2, base.InternalKeyKindSet)},
	}}))

	cur := m.Current()
	defer cur.Unref()

	job := p.ComposeJob(cur, 0, base.InternalKey{})
	require.NotNil(t, job)
	require.Len(t, job.Inputs, 2)
}

func TestExecuteMergesAndWritesOutput(t *testing.T) {
	dir := t.TempDir()
	p := NewPicker(Options{Cmp: compare.Default, Compression: codec.None, Dir: dir, TargetFileSize: 1 << 30})

	meta1 := writeTestTable(t, dir, 10,
		base.InternalKV{K: base.MakeInternalKey([]byte("a"), 1, base.InternalKeyKindSet), V: []byte("a1")},
		base.InternalKV{K: base.MakeInternalKey([]byte("b"), 2, base.InternalKeyKindSet), V: []byte("b1")},
	)
	meta1.Level = 0

	job := &Job{Level: 0, Inputs: []*manifest.FileMetadata{meta1}}

	var nextFileNum uint64 = 100
	alloc := func() uint64 {
		nextFileNum++
		return nextFileNum
	}

	edit, err := p.Execute(context.Background(), job, alloc, base.SeqNumMax, false)
	require.NoError(t, err)
	require.Len(t, edit.NewFiles, 1)
	require.Equal(t, 1, edit.NewFiles[0].Level)
	require.Equal(t, 2, edit.NewFiles[0].NumEntries)
	require.Len(t, edit.DeletedFiles, 1)
	require.Equal(t, uint64(10), edit.DeletedFiles[0].FileNum)
}
