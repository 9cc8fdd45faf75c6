package sstable

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterNoFalseNegatives(t *testing.T) {
	b := NewFilterBuilder()
	keys := make([][]byte, 0, 500)
	for i := 0; i < 500; i++ {
		k := []byte(fmt.Sprintf("key-%05d", i))
		keys = append(keys, k)
		b.Add(k)
	}
	filter := b.Finish()
	require.NotEmpty(t, filter)

	for _, k := range keys {
		require.True(t, MayContain(filter, k))
	}
}

func TestFilterRejectsMostAbsentKeys(t *testing.T) {
	b := NewFilterBuilder()
	for i := 0; i < 1000; i++ {
		b.Add([]byte(fmt.Sprintf("present-%05d", i)))
	}
	filter := b.Finish()

	falsePositives := 0
	for i := 0; i < 1000; i++ {
		if MayContain(filter, []byte(fmt.Sprintf("absent-%05d", i))) {
			falsePositives++
		}
	}
	require.Less(t, falsePositives, 100, "false positive rate should be well under 10%%")
}

func TestFilterEmptyIsPermissive(t *testing.T) {
	b := NewFilterBuilder()
	require.True(t, b.Empty())
	require.Nil(t, b.Finish())
	require.True(t, MayContain(nil, []byte("anything")))
}
