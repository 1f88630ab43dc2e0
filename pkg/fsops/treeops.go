package fsops

import (
	"os"
	"path/filepath"
)

// RemoveTree deletes path recursively. Idempotent: an already-absent path is
// not an error.
func RemoveTree(path string) error {
	return os.RemoveAll(path)
}

// DiskUsage sums the sizes of regular files under root. Used only for status
// reporting, so unreadable entries simply don't count. An absent root is zero.
func DiskUsage(root string) (uint64, error) {
	var total uint64

	err := filepath.Walk(root, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil
		}

		if fi.Mode().IsRegular() {
			total += uint64(fi.Size())
		}

		return nil
	})

	return total, err
}
