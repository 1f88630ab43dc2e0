// Filesystem primitive layer: hardlink-based tree duplication with copy
// fallback, overlay mount lifecycle, junctions and capability probing.
package fsops

import (
	"io"
	"log"
	"os"
	"path"
	"path/filepath"

	"github.com/djherbis/times"
	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/sliceutil"
)

type DuplicateStats struct {
	Hardlinked  int
	Copied      int // byte-copy fallbacks only, symlinks counted separately
	Symlinked   int
	Skipped     int
	Failed      int
	FailedPaths []string
}

// DuplicateTree replicates source into dest. Regular files are hardlinked
// where the filesystem allows it, with a per-file byte copy fallback
// (cross-device, special files, permission refusal). One file's failure never
// aborts the whole run - it is counted and recorded. Directories whose name
// matches a skip pattern are omitted entirely. Symlinks are replicated as
// symlinks, never followed.
//
// Errors only if source is unreadable or dest cannot be created at all.
func DuplicateTree(source string, dest string, skip []string, logger *log.Logger) (*DuplicateStats, error) {
	logl := logex.Levels(logex.NonNil(logger))

	if _, err := os.Lstat(source); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, err
	}

	stats := &DuplicateStats{FailedPaths: []string{}}

	fail := func(p string, err error) {
		logl.Error.Printf("duplicate %s: %v", p, err)
		stats.Failed++
		stats.FailedPaths = append(stats.FailedPaths, p)
	}

	walkErr := filepath.Walk(source, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			if p == source {
				return err
			}

			// unreadable entry: count it, keep going
			fail(p, err)
			if fi != nil && fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(source, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		destPath := filepath.Join(dest, rel)

		switch {
		case fi.IsDir():
			if matchesAny(skip, fi.Name()) {
				stats.Skipped++
				return filepath.SkipDir
			}

			if err := os.MkdirAll(destPath, fi.Mode().Perm()); err != nil {
				fail(p, err)
				return filepath.SkipDir
			}
		case fi.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err == nil {
				err = os.Symlink(target, destPath)
			}
			if err != nil {
				fail(p, err)
				return nil
			}

			stats.Symlinked++
		case fi.Mode().IsRegular():
			if err := os.Link(p, destPath); err == nil {
				stats.Hardlinked++
				return nil
			}

			// hardlink refused for this file only => byte copy
			if err := copyFile(p, destPath, fi); err != nil {
				fail(p, err)
				return nil
			}

			stats.Copied++
		default:
			// sockets, devices etc. have no place in a snapshot
			stats.Skipped++
		}

		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return stats, nil
}

func copyFile(source string, dest string, fi os.FileInfo) error {
	from, err := os.Open(source)
	if err != nil {
		return err
	}
	defer from.Close()

	to, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(to, from); err != nil {
		to.Close()
		return err
	}

	if err := to.Close(); err != nil {
		return err
	}

	// hardlinks share timestamps for free - the copy fallback has to carry
	// them over explicitly
	if ts, err := times.Stat(source); err == nil {
		_ = os.Chtimes(dest, ts.AccessTime(), ts.ModTime())
	}

	return nil
}

func matchesAny(patterns []string, name string) bool {
	if sliceutil.ContainsString(patterns, name) {
		return true
	}

	for _, pattern := range patterns {
		if matched, err := path.Match(pattern, name); err == nil && matched {
			return true
		}
	}

	return false
}
