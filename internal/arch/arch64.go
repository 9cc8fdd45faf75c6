// Package arch aliases the atomic integer types used by the arena and
// skiplist so that the width of an arena offset can be changed in one place.
package arch

import "sync/atomic"

// AtomicUint is the atomic integer type used for arena offsets and skiplist
// tower links.
type AtomicUint = atomic.Uint64

// UintToArchSize converts a uint offset to the width stored in an AtomicUint.
func UintToArchSize(n uint) uint64 {
	return uint64(n)
}
