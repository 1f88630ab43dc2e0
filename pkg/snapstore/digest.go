package snapstore

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	sha256 "github.com/minio/sha256-simd"
	"github.com/samber/lo"
)

// TreeDigest hashes the relative paths and contents of every file under root.
// filepath.Walk iterates in lexical order, which makes the digest reproducible
// across platforms with differing directory-listing order. Unreadable entries
// are skipped (mirrors the per-file tolerance of snapshot creation). An absent
// root digests as an empty tree.
func TreeDigest(root string) (string, error) {
	hash := sha256.New()

	err := filepath.Walk(root, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			if p == root && os.IsNotExist(err) {
				return nil
			}

			return nil // unreadable entry: not part of the digest
		}

		if fi.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		hash.Write([]byte(filepath.ToSlash(rel)))
		hash.Write([]byte{0})

		if fi.Mode()&os.ModeSymlink != 0 {
			if target, err := os.Readlink(p); err == nil {
				hash.Write([]byte(target))
			}
			return nil
		}

		if !fi.Mode().IsRegular() {
			return nil
		}

		file, err := os.Open(p)
		if err != nil {
			return nil
		}
		defer file.Close()

		_, err = io.Copy(hash, file)
		return err
	})
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

const snapshotIDLength = 16

// the id is derived from what was captured. creation time is mixed in so two
// captures of unchanged content still get distinct, globally unique ids.
func deriveSnapshotID(domainHashes map[string]string, createdAt time.Time) string {
	hash := sha256.New()

	domainIDs := lo.Keys(domainHashes)
	sort.Strings(domainIDs)

	for _, domainID := range domainIDs {
		fmt.Fprintf(hash, "%s=%s\n", domainID, domainHashes[domainID])
	}

	fmt.Fprintf(hash, "@%d\n", createdAt.UnixNano())

	return hex.EncodeToString(hash.Sum(nil))[:snapshotIDLength]
}
