package sstable

import (
	"fmt"
	"path/filepath"
)

// FileName returns the conventional path for the sstable with the given
// file number, mirroring wal.FileName's <num>.<ext> convention.
func FileName(dir string, fileNum uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%06d.sst", fileNum))
}
