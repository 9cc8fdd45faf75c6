package cache

import (
	"fmt"
	"syscall"
)

// newAnonRegion allocates a page-aligned, anonymous mmap'd buffer of at
// least size bytes to back a Cache's entries. This is manually managed
// memory the Go runtime's garbage collector never sees; it must be released
// with freeAnonRegion.
//
// mmap rounds size up to a multiple of the system page size, so the
// returned slice's length can exceed size. A Cache still uses the size it
// asked for as its byte budget; the rounding-up slack is never used.
func newAnonRegion(size int) ([]byte, error) {
	if size < 1 {
		return nil, fmt.Errorf("cache: invalid region size; must be greater than 0: %d", size)
	}

	// fd is -1 because MAP_ANON means there is no backing file.
	data, err := syscall.Mmap(-1, 0, size,
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_ANON|syscall.MAP_PRIVATE,
	)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func freeAnonRegion(data []byte) error {
	return syscall.Munmap(data)
}
