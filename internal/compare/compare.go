// Package compare defines the user-key comparator type threaded through the
// memtable, block, sstable and merging-iterator layers.
package compare

import "bytes"

// Compare is a three-way comparison over user keys: negative if a < b, zero
// if a == b, positive if a > b. The engine does not currently expose
// pluggable comparators to callers, but every internal component is written
// against this type rather than bytes.Compare directly so that could change
// without touching call sites.
type Compare func(a, b []byte) int

// Default orders user keys lexicographically by byte value.
func Default(a, b []byte) int {
	return bytes.Compare(a, b)
}
