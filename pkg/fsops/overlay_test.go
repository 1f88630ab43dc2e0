package fsops

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/frostlock/frostlock/pkg/frosttypes"
	"github.com/function61/gokit/assert"
	"github.com/function61/gokit/jsonfile"
)

func testMount(base string) frosttypes.OverlayMount {
	return frosttypes.OverlayMount{
		DomainID:   "sys",
		LowerDir:   filepath.Join(base, "lower"),
		UpperDir:   filepath.Join(base, "upper"),
		WorkDir:    filepath.Join(base, "work"),
		MountPoint: filepath.Join(base, "live"),
	}
}

func TestMountUnsupportedLeavesTreeUntouched(t *testing.T) {
	base := t.TempDir()

	m, err := NewOverlayManager(
		filepath.Join(base, "overlays.json"),
		Capabilities{Platform: "plan9"},
		nil)
	assert.Ok(t, err)

	err = m.Mount(testMount(base))
	assert.Assert(t, errors.Is(err, frosttypes.ErrUnsupported))

	// zero filesystem mutation
	_, err = os.Lstat(filepath.Join(base, "upper"))
	assert.Assert(t, os.IsNotExist(err))
	assert.Assert(t, m.ActiveForDomain("sys") == nil)
}

func TestMountIdempotenceAndConflicts(t *testing.T) {
	base := t.TempDir()
	recordsPath := filepath.Join(base, "overlays.json")

	existing := testMount(base)
	assert.Ok(t, jsonfile.Write(recordsPath, []frosttypes.OverlayMount{existing}))

	m, err := NewOverlayManager(
		recordsPath,
		Capabilities{Platform: "linux", OverlaySupported: true},
		nil)
	assert.Ok(t, err)

	active := m.ActiveForDomain("sys")
	assert.Assert(t, active != nil)
	assert.EqualString(t, active.MountPoint, existing.MountPoint)

	// same lower/upper pair: success without remounting
	assert.Ok(t, m.Mount(existing))

	// mismatched re-mount attempt
	mismatched := existing
	mismatched.LowerDir = filepath.Join(base, "other-lower")
	assert.Assert(t, errors.Is(m.Mount(mismatched), frosttypes.ErrConflict))

	// second mount for the same domain elsewhere: at most one per domain
	second := existing
	second.MountPoint = filepath.Join(base, "live2")
	second.UpperDir = filepath.Join(base, "upper2")
	assert.Assert(t, errors.Is(m.Mount(second), frosttypes.ErrConflict))
}

func TestUnmountNoopWhenNotMounted(t *testing.T) {
	base := t.TempDir()

	m, err := NewOverlayManager(
		filepath.Join(base, "overlays.json"),
		Capabilities{Platform: "linux", OverlaySupported: true},
		nil)
	assert.Ok(t, err)

	assert.Ok(t, m.Unmount(filepath.Join(base, "never-mounted"), false))
}

func TestUnmountCleansStaleRecord(t *testing.T) {
	base := t.TempDir()
	recordsPath := filepath.Join(base, "overlays.json")

	record := testMount(base)
	assert.Ok(t, os.MkdirAll(record.UpperDir, 0755))
	assert.Ok(t, os.MkdirAll(record.WorkDir, 0755))
	assert.Ok(t, os.WriteFile(filepath.Join(record.UpperDir, "scratch.txt"), []byte("x"), 0644))
	assert.Ok(t, jsonfile.Write(recordsPath, []frosttypes.OverlayMount{record}))

	m, err := NewOverlayManager(
		recordsPath,
		Capabilities{Platform: "linux", OverlaySupported: true},
		nil)
	assert.Ok(t, err)

	// the kernel has nothing mounted there (e.g. record survived a reboot),
	// so this must drop the record and purge scratch without a mount syscall
	assert.Ok(t, m.Unmount(record.MountPoint, true))

	assert.Assert(t, m.ActiveForDomain("sys") == nil)

	_, err = os.Lstat(record.UpperDir)
	assert.Assert(t, os.IsNotExist(err))

	// dropped record was persisted
	reloaded, err := NewOverlayManager(
		recordsPath,
		Capabilities{Platform: "linux", OverlaySupported: true},
		nil)
	assert.Ok(t, err)
	assert.Assert(t, reloaded.ActiveForDomain("sys") == nil)
}

func TestJunction(t *testing.T) {
	base := t.TempDir()

	source := filepath.Join(base, "source")
	target := filepath.Join(base, "target")

	assert.Ok(t, os.MkdirAll(source, 0755))
	assert.Ok(t, os.WriteFile(filepath.Join(source, "content.txt"), []byte("kept"), 0644))

	assert.Ok(t, CreateJunction(source, target))

	content, err := os.ReadFile(filepath.Join(target, "content.txt"))
	assert.Ok(t, err)
	assert.EqualString(t, string(content), "kept")

	// creating over an existing target is a conflict
	assert.Assert(t, errors.Is(CreateJunction(source, target), frosttypes.ErrConflict))

	// removal drops the redirection only, never the pointed-to content
	assert.Ok(t, RemoveJunction(target))
	assert.Ok(t, RemoveJunction(target)) // idempotent

	content, err = os.ReadFile(filepath.Join(source, "content.txt"))
	assert.Ok(t, err)
	assert.EqualString(t, string(content), "kept")

	// refuses to remove a real directory
	assert.Assert(t, errors.Is(RemoveJunction(source), frosttypes.ErrConflict))
}
