// Snapshot store: creates, lists, verifies, restores and removes snapshots of
// domain trees, built on the filesystem primitive layer.
package snapstore

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/frostlock/frostlock/pkg/frosttypes"
	"github.com/frostlock/frostlock/pkg/fsops"
	"github.com/function61/gokit/atomicfilewrite"
	"github.com/function61/gokit/cryptorandombytes"
	"github.com/function61/gokit/fileexists"
	"github.com/function61/gokit/jsonfile"
	"github.com/function61/gokit/logex"
)

const registryFilename = "snapshots.json"

// version-control metadata is the collaborator's business, not snapshot content
var DefaultSkipPatterns = []string{".git"}

type Store struct {
	baseDir      string
	snapshotsDir string
	snapshots    []frosttypes.Snapshot
	logger       *log.Logger
	logl         *logex.Leveled
}

func New(baseDir string, logger *log.Logger) (*Store, error) {
	s := &Store{
		baseDir:      baseDir,
		snapshotsDir: filepath.Join(baseDir, "snapshots"),
		snapshots:    []frosttypes.Snapshot{},
		logger:       logger,
		logl:         logex.Levels(logex.NonNil(logger)),
	}

	if err := os.MkdirAll(s.snapshotsDir, 0755); err != nil {
		return nil, err
	}

	exists, err := fileexists.Exists(s.registryPath())
	if err != nil {
		return nil, err
	}

	if exists {
		if err := jsonfile.Read(s.registryPath(), &s.snapshots, true); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Create captures the given frozen domains into fresh snapshot storage.
// Content is staged under a scratch directory and renamed into place only
// once fully populated, so an interrupted run never registers a snapshot.
// Partial per-file fallback inside a domain is tolerated; a domain failing
// entirely is not.
func (s *Store) Create(name string, description string, frozenDomains []frosttypes.Domain) (*frosttypes.Snapshot, error) {
	for _, existing := range s.snapshots {
		if existing.Name == name {
			return nil, fmt.Errorf("%w: snapshot name already in use: %s", frosttypes.ErrConflict, name)
		}
	}

	createdAt := time.Now().UTC()

	stagingDir := filepath.Join(s.snapshotsDir, "stage-"+cryptorandombytes.Hex(4))
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, err
	}

	registered := false

	defer func() {
		if !registered {
			if err := fsops.RemoveTree(stagingDir); err != nil {
				s.logl.Error.Printf("staging cleanup %s: %v", stagingDir, err)
			}
		}
	}()

	domainHashes := map[string]string{}

	for _, domain := range frozenDomains {
		destDir := filepath.Join(stagingDir, domain.ID)

		stats, err := fsops.DuplicateTree(domain.Path, destDir, DefaultSkipPatterns, s.logger)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: domain %s: %w", name, domain.ID, err)
		}

		s.logl.Debug.Printf(
			"domain %s: %d hardlinked, %d copied, %d symlinked, %d skipped, %d failed",
			domain.ID,
			stats.Hardlinked,
			stats.Copied,
			stats.Symlinked,
			stats.Skipped,
			stats.Failed)

		digest, err := TreeDigest(destDir)
		if err != nil {
			return nil, err
		}

		domainHashes[domain.ID] = digest
	}

	id := deriveSnapshotID(domainHashes, createdAt)
	storageDir := filepath.Join(s.snapshotsDir, id)

	// the rename is the commit point
	if err := os.Rename(stagingDir, storageDir); err != nil {
		return nil, err
	}
	registered = true

	snapshot := frosttypes.Snapshot{
		ID:           id,
		Name:         name,
		Description:  description,
		CreatedAt:    createdAt,
		DomainHashes: domainHashes,
		StoragePath:  storageDir,
	}

	s.snapshots = append(s.snapshots, snapshot)

	if err := s.saveRegistry(); err != nil {
		return nil, err
	}

	return &snapshot, nil
}

// List returns all snapshots ordered by creation time, ascending. Read-only.
func (s *Store) List() []frosttypes.Snapshot {
	result := make([]frosttypes.Snapshot, len(s.snapshots))
	copy(result, s.snapshots)

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result
}

// Resolve looks up by id first, then by name.
func (s *Store) Resolve(identifier string) (*frosttypes.Snapshot, error) {
	for i, snapshot := range s.snapshots {
		if snapshot.ID == identifier {
			return &s.snapshots[i], nil
		}
	}

	for i, snapshot := range s.snapshots {
		if snapshot.Name == identifier {
			return &s.snapshots[i], nil
		}
	}

	return nil, fmt.Errorf("%w: snapshot: %s", frosttypes.ErrNotFound, identifier)
}

// Remove drops the snapshot's record and deletes its captured content. The
// only way a snapshot ever goes away.
func (s *Store) Remove(identifier string) error {
	snapshot, err := s.Resolve(identifier)
	if err != nil {
		return err
	}

	if err := fsops.RemoveTree(snapshot.StoragePath); err != nil {
		return err
	}

	kept := []frosttypes.Snapshot{}
	for _, other := range s.snapshots {
		if other.ID != snapshot.ID {
			kept = append(kept, other)
		}
	}
	s.snapshots = kept

	return s.saveRegistry()
}

// Verify recomputes each captured domain's digest from stored content and
// compares against the recorded hashes. Detects corruption before a restore
// is trusted.
func (s *Store) Verify(snapshot *frosttypes.Snapshot) error {
	for _, domainID := range sortedDomainIDs(snapshot) {
		digest, err := TreeDigest(filepath.Join(snapshot.StoragePath, domainID))
		if err != nil {
			return err
		}

		if digest != snapshot.DomainHashes[domainID] {
			return fmt.Errorf(
				"%w: snapshot %s domain %s digest mismatch",
				frosttypes.ErrIntegrity,
				snapshot.ID,
				domainID)
		}
	}

	return nil
}

func (s *Store) saveRegistry() error {
	return atomicfilewrite.Write(s.registryPath(), func(writer io.Writer) error {
		return jsonfile.Marshal(writer, s.snapshots)
	})
}

func (s *Store) registryPath() string {
	return filepath.Join(s.baseDir, registryFilename)
}
