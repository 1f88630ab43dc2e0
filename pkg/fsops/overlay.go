package fsops

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/frostlock/frostlock/pkg/frosttypes"
	"github.com/function61/gokit/atomicfilewrite"
	"github.com/function61/gokit/fileexists"
	"github.com/function61/gokit/jsonfile"
	"github.com/function61/gokit/logex"
)

// OverlayManager owns the active overlay mount records. At most one record
// per domain. Records are persisted so that remount idempotence and boot-time
// restore work across processes.
type OverlayManager struct {
	recordsPath string
	caps        Capabilities
	records     []frosttypes.OverlayMount
	logl        *logex.Leveled
}

func NewOverlayManager(recordsPath string, caps Capabilities, logger *log.Logger) (*OverlayManager, error) {
	m := &OverlayManager{
		recordsPath: recordsPath,
		caps:        caps,
		records:     []frosttypes.OverlayMount{},
		logl:        logex.Levels(logex.NonNil(logger)),
	}

	exists, err := fileexists.Exists(recordsPath)
	if err != nil {
		return nil, err
	}

	if exists {
		if err := jsonfile.Read(recordsPath, &m.records, true); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *OverlayManager) ActiveForDomain(domainID string) *frosttypes.OverlayMount {
	for i, record := range m.records {
		if record.DomainID == domainID {
			return &m.records[i]
		}
	}

	return nil
}

func (m *OverlayManager) recordForMountPoint(mountPoint string) *frosttypes.OverlayMount {
	for i, record := range m.records {
		if record.MountPoint == mountPoint {
			return &m.records[i]
		}
	}

	return nil
}

// Mount layers mount.LowerDir read-only beneath a writable scratch layer at
// mount.MountPoint. Re-mounting the same lower/upper pair is a no-op;
// a mismatched re-mount attempt is a conflict. Upper/work dirs are created
// if absent.
func (m *OverlayManager) Mount(mount frosttypes.OverlayMount) error {
	if !m.caps.OverlaySupported {
		return fmt.Errorf(
			"%w: overlay mount requested on %s",
			frosttypes.ErrUnsupported,
			m.caps.Platform)
	}

	if existing := m.recordForMountPoint(mount.MountPoint); existing != nil {
		if existing.LowerDir == mount.LowerDir && existing.UpperDir == mount.UpperDir {
			return nil // already mounted exactly as requested
		}

		return fmt.Errorf(
			"%w: %s already mounted with different layers",
			frosttypes.ErrConflict,
			mount.MountPoint)
	}

	if existing := m.ActiveForDomain(mount.DomainID); existing != nil {
		return fmt.Errorf(
			"%w: domain %s already has an active overlay at %s",
			frosttypes.ErrConflict,
			mount.DomainID,
			existing.MountPoint)
	}

	for _, dir := range []string{mount.UpperDir, mount.WorkDir, mount.MountPoint} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	if err := overlayMount(mount.LowerDir, mount.UpperDir, mount.WorkDir, mount.MountPoint); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf(
				"%w: overlay mount at %s: %v",
				frosttypes.ErrPermission,
				mount.MountPoint,
				err)
		}

		return fmt.Errorf("%w: overlay at %s: %v", frosttypes.ErrMount, mount.MountPoint, err)
	}

	m.logl.Info.Printf("mounted overlay at %s (lower %s)", mount.MountPoint, mount.LowerDir)

	m.records = append(m.records, mount)

	return m.saveRecords()
}

// Unmount tears down the overlay at mountPoint and drops its record. No-op if
// nothing is mounted there. clean additionally purges the upper/work scratch
// content (used by restore to discard changes).
func (m *OverlayManager) Unmount(mountPoint string, clean bool) error {
	record := m.recordForMountPoint(mountPoint)
	if record == nil {
		return nil
	}

	mounted, err := overlayMountedAt(mountPoint)
	if err != nil {
		return err
	}

	if mounted { // record can be stale after a reboot - kernel is authoritative
		if err := overlayUnmount(mountPoint); err != nil {
			if errors.Is(err, os.ErrPermission) {
				return fmt.Errorf(
					"%w: overlay unmount at %s: %v",
					frosttypes.ErrPermission,
					mountPoint,
					err)
			}

			return fmt.Errorf("%w: unmount at %s: %v", frosttypes.ErrMount, mountPoint, err)
		}

		m.logl.Info.Printf("unmounted overlay at %s", mountPoint)
	}

	if clean {
		if err := RemoveTree(record.UpperDir); err != nil {
			return err
		}
		if err := RemoveTree(record.WorkDir); err != nil {
			return err
		}
	}

	m.dropRecord(mountPoint)

	return m.saveRecords()
}

func (m *OverlayManager) dropRecord(mountPoint string) {
	kept := []frosttypes.OverlayMount{}
	for _, record := range m.records {
		if record.MountPoint != mountPoint {
			kept = append(kept, record)
		}
	}
	m.records = kept
}

func (m *OverlayManager) saveRecords() error {
	return atomicfilewrite.Write(m.recordsPath, func(writer io.Writer) error {
		return jsonfile.Marshal(writer, m.records)
	})
}
