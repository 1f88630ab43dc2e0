package frostengine

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/frostlock/frostlock/pkg/frosttypes"
	"github.com/function61/gokit/assert"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	engine := New(t.TempDir(), nil)
	assert.Ok(t, engine.Init())

	return engine
}

func TestInitCreatesStockDomains(t *testing.T) {
	engine := newTestEngine(t)

	domains := engine.Domains.All()
	assert.Assert(t, len(domains) == 4)

	for _, id := range []string{"sys", "cfg", "user", "cache"} {
		domain, err := engine.Domains.Resolve(id)
		assert.Ok(t, err)

		fi, err := os.Stat(domain.Path)
		assert.Ok(t, err)
		assert.Assert(t, fi.IsDir())
	}

	frozen := engine.Domains.Frozen()
	assert.Assert(t, len(frozen) == 2)

	// fresh engine starts frozen
	assert.Assert(t, engine.Frozen())

	// double init refused
	assert.Assert(t, errors.Is(engine.Init(), frosttypes.ErrConflict))
}

func TestLoadUninitialized(t *testing.T) {
	engine := New(t.TempDir(), nil)

	assert.Assert(t, errors.Is(engine.Load(), frosttypes.ErrNotFound))
}

func TestThawFreezePersists(t *testing.T) {
	engine := newTestEngine(t)

	assert.Ok(t, engine.Thaw())
	assert.Assert(t, !engine.Frozen())

	// state survives a process restart
	reloaded := New(engine.baseDir, nil)
	assert.Ok(t, reloaded.Load())
	assert.Assert(t, !reloaded.Frozen())

	assert.Ok(t, reloaded.Freeze())

	again := New(engine.baseDir, nil)
	assert.Ok(t, again.Load())
	assert.Assert(t, again.Frozen())
}

func TestRestoreDefaultWithoutDefault(t *testing.T) {
	engine := newTestEngine(t)

	sys, err := engine.Domains.Resolve("sys")
	assert.Ok(t, err)
	assert.Ok(t, os.WriteFile(filepath.Join(sys.Path, "a.txt"), []byte("live"), 0644))

	_, err = engine.RestoreDefault()
	assert.Assert(t, errors.Is(err, frosttypes.ErrNoDefault))

	// zero filesystem mutation happened
	content, err := os.ReadFile(filepath.Join(sys.Path, "a.txt"))
	assert.Ok(t, err)
	assert.EqualString(t, string(content), "live")
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	engine := newTestEngine(t)

	sys, err := engine.Domains.Resolve("sys")
	assert.Ok(t, err)
	user, err := engine.Domains.Resolve("user")
	assert.Ok(t, err)

	assert.Ok(t, os.WriteFile(filepath.Join(sys.Path, "a.txt"), []byte("1"), 0644))
	assert.Ok(t, os.WriteFile(filepath.Join(user.Path, "keep.txt"), []byte("mine"), 0644))

	snapshot, err := engine.CreateSnapshot("base", "known good")
	assert.Ok(t, err)

	_, err = engine.SetDefault("base")
	assert.Ok(t, err)
	assert.EqualString(t, engine.DefaultSnapshot().ID, snapshot.ID)

	// drift the frozen domain, then restore the default. a.txt is replaced
	// instead of truncated in place because its inode is shared with the
	// captured copy (hardlink capture)
	assert.Ok(t, os.Remove(filepath.Join(sys.Path, "a.txt")))
	assert.Ok(t, os.WriteFile(filepath.Join(sys.Path, "a.txt"), []byte("X"), 0644))
	assert.Ok(t, os.WriteFile(filepath.Join(sys.Path, "stray.txt"), []byte("junk"), 0644))

	results, err := engine.RestoreDefault()
	assert.Ok(t, err)
	assert.Assert(t, len(results) == 2) // sys + cfg

	for _, result := range results {
		assert.Ok(t, result.Err)
	}

	content, err := os.ReadFile(filepath.Join(sys.Path, "a.txt"))
	assert.Ok(t, err)
	assert.EqualString(t, string(content), "1")

	_, err = os.Lstat(filepath.Join(sys.Path, "stray.txt"))
	assert.Assert(t, os.IsNotExist(err))

	// persistent domain never touched by restore
	kept, err := os.ReadFile(filepath.Join(user.Path, "keep.txt"))
	assert.Ok(t, err)
	assert.EqualString(t, string(kept), "mine")
}

func TestRestoreReinitializesTrackedDomains(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not in PATH")
	}

	engine := newTestEngine(t)

	cfg, err := engine.Domains.Resolve("cfg")
	assert.Ok(t, err)
	assert.Ok(t, os.WriteFile(filepath.Join(cfg.Path, "app.conf"), []byte("key=value\n"), 0644))

	_, err = engine.CreateSnapshot("base", "")
	assert.Ok(t, err)

	_, err = engine.Restore("base")
	assert.Ok(t, err)

	// the relink wiped cfg including its repository; restore must have
	// brought a working one back
	fi, err := os.Stat(filepath.Join(cfg.Path, ".git"))
	assert.Ok(t, err)
	assert.Assert(t, fi.IsDir())

	content, err := os.ReadFile(filepath.Join(cfg.Path, "app.conf"))
	assert.Ok(t, err)
	assert.EqualString(t, string(content), "key=value\n")

	// and the optional-commit policy still works after the restore
	assert.Ok(t, os.Remove(filepath.Join(cfg.Path, "app.conf")))
	assert.Ok(t, os.WriteFile(filepath.Join(cfg.Path, "app.conf"), []byte("key=other\n"), 0644))

	committed, err := engine.CommitConfig("tweak config")
	assert.Ok(t, err)
	assert.Assert(t, committed)
}

func TestCreateSnapshotDuplicateName(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.CreateSnapshot("base", "")
	assert.Ok(t, err)

	_, err = engine.CreateSnapshot("base", "")
	assert.Assert(t, errors.Is(err, frosttypes.ErrConflict))
}

func TestRestoreUnknownSnapshot(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.Restore("never-created")
	assert.Assert(t, errors.Is(err, frosttypes.ErrNotFound))
}

func TestSetDefaultUnknownSnapshot(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.SetDefault("never-created")
	assert.Assert(t, errors.Is(err, frosttypes.ErrNotFound))
	assert.Assert(t, engine.DefaultSnapshot() == nil)
}

func TestMountOverlayOnNonFrozenDomain(t *testing.T) {
	engine := newTestEngine(t)

	err := engine.MountOverlay("user", "whatever")
	assert.Assert(t, errors.Is(err, frosttypes.ErrConflict))
}

func TestStatus(t *testing.T) {
	engine := newTestEngine(t)

	sys, err := engine.Domains.Resolve("sys")
	assert.Ok(t, err)
	assert.Ok(t, os.WriteFile(filepath.Join(sys.Path, "a.txt"), []byte("12345"), 0644))

	_, err = engine.CreateSnapshot("base", "")
	assert.Ok(t, err)

	status := engine.Status()

	assert.EqualString(t, status.BasePath, engine.baseDir)
	assert.Assert(t, status.Frozen)
	assert.Assert(t, len(status.Domains) == 4)
	assert.Assert(t, status.SnapshotCount == 1)
	assert.Assert(t, status.Default == nil)
	assert.EqualString(t, status.Latest.Name, "base")

	for _, domain := range status.Domains {
		assert.Assert(t, domain.Exists)
		assert.Assert(t, !domain.OverlayActive)

		if domain.ID == "sys" {
			assert.Assert(t, domain.DiskUsage == 5)
		}
	}

	// cfg is tracked, so it has a version control entry (initialized or not,
	// depending on whether the host has git)
	_, hasEntry := status.VersionControl["cfg"]
	assert.Assert(t, hasEntry)
}
