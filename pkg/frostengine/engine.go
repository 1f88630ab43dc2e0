// State orchestrator: owns the domain registry, the freeze/thaw state machine
// and drives snapshot/restore transitions. The only component that mutates
// live domain directories based on policy.
package frostengine

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/frostlock/frostlock/pkg/frosttypes"
	"github.com/frostlock/frostlock/pkg/fsops"
	"github.com/frostlock/frostlock/pkg/gitversioning"
	"github.com/frostlock/frostlock/pkg/snapstore"
	"github.com/function61/gokit/atomicfilewrite"
	"github.com/function61/gokit/fileexists"
	"github.com/function61/gokit/jsonfile"
	"github.com/function61/gokit/logex"
)

const (
	stateFilename          = "state.json"
	overlayRecordsFilename = "overlays.json"
)

type Engine struct {
	baseDir   string
	Domains   *DomainRegistry
	Snapshots *snapstore.Store
	Overlays  *fsops.OverlayManager
	Caps      fsops.Capabilities
	state     *frosttypes.EngineState
	logger    *log.Logger
	logl      *logex.Leveled
}

func New(baseDir string, logger *log.Logger) *Engine {
	return &Engine{
		baseDir: baseDir,
		Domains: NewDomainRegistry(baseDir),
		logger:  logger,
		logl:    logex.Levels(logex.NonNil(logger)),
	}
}

func (e *Engine) Initialized() (bool, error) {
	return fileexists.Exists(filepath.Join(e.baseDir, domainRegistryFilename))
}

// Init sets up the base root, the stock domains, version control for tracked
// domains and the initial (frozen) state. Fails if already initialized.
func (e *Engine) Init() error {
	initialized, err := e.Initialized()
	if err != nil {
		return err
	}

	if initialized {
		return fmt.Errorf("%w: already initialized at %s", frosttypes.ErrConflict, e.baseDir)
	}

	if err := os.MkdirAll(e.baseDir, 0755); err != nil {
		return err
	}

	for _, domain := range defaultDomains(e.baseDir) {
		if err := e.Domains.Define(domain); err != nil {
			return err
		}

		if err := e.Domains.EnsureExists(domain); err != nil {
			return err
		}
	}

	if err := e.Domains.Save(); err != nil {
		return err
	}

	// collaborator setup is best-effort: a host without git still freezes fine
	for _, domain := range e.Domains.Tracked() {
		if err := gitversioning.NewRepository(domain.Path, e.logger).Init(); err != nil {
			e.logl.Error.Printf("version control init for %s: %v (continuing)", domain.ID, err)
		}
	}

	e.state = frosttypes.NewEngineState()
	if err := e.saveState(); err != nil {
		return err
	}

	return e.open()
}

// Load opens an initialized base root: registries and state are read fully,
// capabilities probed once.
func (e *Engine) Load() error {
	initialized, err := e.Initialized()
	if err != nil {
		return err
	}

	if !initialized {
		return fmt.Errorf(
			"%w: %s not initialized (run 'frostlock init' first)",
			frosttypes.ErrNotFound,
			e.baseDir)
	}

	if err := e.Domains.Load(); err != nil {
		return err
	}

	e.state = frosttypes.NewEngineState()

	statePath := filepath.Join(e.baseDir, stateFilename)

	stateExists, err := fileexists.Exists(statePath)
	if err != nil {
		return err
	}

	if stateExists {
		if err := jsonfile.Read(statePath, e.state, true); err != nil {
			return err
		}
	}

	return e.open()
}

func (e *Engine) open() error {
	e.Caps = fsops.Probe(e.baseDir)

	snapshots, err := snapstore.New(e.baseDir, e.logger)
	if err != nil {
		return err
	}
	e.Snapshots = snapshots

	overlays, err := fsops.NewOverlayManager(
		filepath.Join(e.baseDir, overlayRecordsFilename),
		e.Caps,
		e.logger)
	if err != nil {
		return err
	}
	e.Overlays = overlays

	return nil
}

// CreateSnapshot captures all frozen domains. Tracked domains additionally get
// a version-control commit afterwards; collaborator failure is surfaced as a
// warning only, the snapshot itself stands.
func (e *Engine) CreateSnapshot(name string, description string) (*frosttypes.Snapshot, error) {
	frozen := e.Domains.Frozen()
	if len(frozen) == 0 {
		return nil, errors.New("no frozen domains to snapshot")
	}

	snapshot, err := e.Snapshots.Create(name, description, frozen)
	if err != nil {
		return nil, err
	}

	for _, domain := range e.Domains.Tracked() {
		repo := gitversioning.NewRepository(domain.Path, e.logger)
		if _, err := repo.Commit("snapshot: " + name); err != nil {
			e.logl.Error.Printf(
				"version control commit for %s: %v (snapshot unaffected)",
				domain.ID,
				err)
		}
	}

	return snapshot, nil
}

// Restore moves the frozen domains to the snapshot's captured content,
// regardless of the current frozen/thawed state. Persistent and volatile
// domains are never touched. Integrity is verified before any mutation.
func (e *Engine) Restore(identifier string) ([]snapstore.DomainRestoreResult, error) {
	snapshot, err := e.Snapshots.Resolve(identifier)
	if err != nil {
		return nil, err
	}

	if err := e.Snapshots.Verify(snapshot); err != nil {
		return nil, err
	}

	results := e.Snapshots.Restore(snapshot, e.Domains.Frozen(), e.Overlays)

	// capture omits version control metadata and the relink path wipes the
	// live tree, so a restored tracked domain has lost its repository and
	// needs it re-created (Init is idempotent for domains left untouched)
	for _, domain := range e.Domains.Tracked() {
		repo := gitversioning.NewRepository(domain.Path, e.logger)

		if err := repo.Init(); err != nil {
			e.logl.Error.Printf("version control init for %s: %v (restore unaffected)", domain.ID, err)
			continue
		}

		if status, err := repo.GetStatus(); err != nil {
			e.logl.Error.Printf("version control status for %s: %v (restore unaffected)", domain.ID, err)
		} else if !status.Clean {
			e.logl.Info.Printf("domain %s has uncommitted changes after restore", domain.ID)
		}
	}

	return results, nil
}

// RestoreDefault is the unattended boot entry point. Fails with ErrNoDefault -
// and performs zero filesystem mutation - when no default is configured.
func (e *Engine) RestoreDefault() ([]snapstore.DomainRestoreResult, error) {
	if e.state.DefaultSnapshotID == "" {
		return nil, frosttypes.ErrNoDefault
	}

	return e.Restore(e.state.DefaultSnapshotID)
}

func (e *Engine) SetDefault(identifier string) (*frosttypes.Snapshot, error) {
	snapshot, err := e.Snapshots.Resolve(identifier)
	if err != nil {
		return nil, err
	}

	e.state.DefaultSnapshotID = snapshot.ID

	return snapshot, e.saveState()
}

// DefaultSnapshot resolves the weak default reference. Nil when unset or when
// the referenced snapshot no longer exists.
func (e *Engine) DefaultSnapshot() *frosttypes.Snapshot {
	if e.state.DefaultSnapshotID == "" {
		return nil
	}

	snapshot, err := e.Snapshots.Resolve(e.state.DefaultSnapshotID)
	if err != nil {
		return nil
	}

	return snapshot
}

// Thaw suspends freeze enforcement: changes to frozen domains are expected to
// persist until the next freeze or restore. Policy flag only - no filesystem
// effect (restore is the only enforcement mechanism).
func (e *Engine) Thaw() error {
	e.state.Frozen = false

	return e.saveState()
}

// Freeze re-arms the expectation that a restore will discard changes.
func (e *Engine) Freeze() error {
	e.state.Frozen = true

	return e.saveState()
}

func (e *Engine) Frozen() bool {
	return e.state.Frozen
}

// CommitConfig commits pending changes in tracked domains (the "optional
// commit" policy). Reports whether anything was actually committed.
func (e *Engine) CommitConfig(message string) (bool, error) {
	tracked := e.Domains.Tracked()
	if len(tracked) == 0 {
		return false, errors.New("no tracked domains")
	}

	committedAny := false

	for _, domain := range tracked {
		committed, err := gitversioning.NewRepository(domain.Path, e.logger).Commit(message)
		if err != nil {
			return committedAny, err
		}

		committedAny = committedAny || committed
	}

	return committedAny, nil
}

// MountOverlay arms instantaneous freezing for one frozen domain: the
// snapshot's captured tree becomes the read-only lower layer under the
// domain's live path.
func (e *Engine) MountOverlay(domainID string, snapshotIdentifier string) error {
	domain, err := e.Domains.Resolve(domainID)
	if err != nil {
		return err
	}

	if !domain.Frozen() {
		return fmt.Errorf(
			"%w: domain %s is not frozen, overlay makes no sense",
			frosttypes.ErrConflict,
			domainID)
	}

	snapshot, err := e.Snapshots.Resolve(snapshotIdentifier)
	if err != nil {
		return err
	}

	if _, captured := snapshot.DomainHashes[domainID]; !captured {
		return fmt.Errorf(
			"%w: snapshot %s does not capture domain %s",
			frosttypes.ErrNotFound,
			snapshot.ID,
			domainID)
	}

	scratchDir := filepath.Join(e.baseDir, "overlays", domainID)

	return e.Overlays.Mount(frosttypes.OverlayMount{
		DomainID:   domainID,
		LowerDir:   filepath.Join(snapshot.StoragePath, domainID),
		UpperDir:   filepath.Join(scratchDir, "upper"),
		WorkDir:    filepath.Join(scratchDir, "work"),
		MountPoint: domain.Path,
	})
}

func (e *Engine) UnmountOverlay(domainID string, clean bool) error {
	domain, err := e.Domains.Resolve(domainID)
	if err != nil {
		return err
	}

	return e.Overlays.Unmount(domain.Path, clean)
}

func (e *Engine) saveState() error {
	return atomicfilewrite.Write(filepath.Join(e.baseDir, stateFilename), func(writer io.Writer) error {
		return jsonfile.Marshal(writer, e.state)
	})
}
