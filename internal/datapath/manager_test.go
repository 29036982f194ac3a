package datapath

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/allycraft/allycraft/internal/fault"
	"github.com/allycraft/allycraft/internal/registry"
	"github.com/allycraft/allycraft/internal/version"
)

type memSettings struct {
	custom string
	calls  int
	err    error
}

func (s *memSettings) SetCustomDataPath(p string) error {
	if s.err != nil {
		return s.err
	}
	s.custom = p
	s.calls++
	return nil
}

func newTestManager(t *testing.T) (*Manager, *registry.Registry, *memSettings) {
	t.Helper()
	base := t.TempDir()
	reg := registry.New(filepath.Join(base, registry.ManifestName), nil)
	settings := &memSettings{}
	m, err := New(Config{BaseDir: base, Registry: reg, Settings: settings})
	require.NoError(t, err)
	return m, reg, settings
}

// installFake registers v with a populated data directory under the current root.
func installFake(t *testing.T, m *Manager, reg *registry.Registry, v string) registry.Record {
	t.Helper()
	ver := version.MustParse(v)
	dataDir := m.DataDirFor(ver)
	require.NoError(t, m.LinkShared(dataDir))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "options.txt"), []byte("gfx=high"), 0o644))

	rec := registry.Record{
		Descriptor:  version.Descriptor{Version: ver, Size: 10},
		InstallPath: m.InstallDir(ver),
		InstalledAt: time.Now().UTC(),
		DataPath:    dataDir,
		Playable:    true,
	}
	require.NoError(t, reg.Upsert(rec))
	require.NoError(t, reg.Save())
	return rec
}

func TestPaths(t *testing.T) {
	m, _, _ := newTestManager(t)
	v := version.MustParse("1.21.0")

	assert.Equal(t, filepath.Join(m.BaseDir(), "versions", "1.21.0"), m.InstallDir(v))
	assert.Equal(t, filepath.Join(m.BaseDir(), "data"), m.DefaultDataPath())
	assert.Equal(t, m.DefaultDataPath(), m.CurrentDataPath())
	assert.Equal(t, filepath.Join(m.BaseDir(), "data", "1.21.0"), m.DataDirFor(v))
	assert.Equal(t, filepath.Join(m.BaseDir(), "data", "shared"), m.SharedPoolDir())
}

func TestNewWithCustomRoot(t *testing.T) {
	base := t.TempDir()
	custom := filepath.Join(t.TempDir(), "sd")
	reg := registry.New(filepath.Join(base, registry.ManifestName), nil)

	m, err := New(Config{BaseDir: base, CustomRoot: custom, Registry: reg})
	require.NoError(t, err)
	assert.Equal(t, custom, m.CurrentDataPath())
	assert.Equal(t, filepath.Join(custom, "1.20.0"), m.DataDirFor(version.MustParse("1.20.0")))
}

func TestLinkShared(t *testing.T) {
	m, _, _ := newTestManager(t)
	dataDir := filepath.Join(m.DefaultDataPath(), "1.21.0")

	require.NoError(t, m.LinkShared(dataDir))

	for _, sub := range SharedSubtrees {
		local := filepath.Join(dataDir, sub)
		target, err := os.Readlink(local)
		require.NoError(t, err, sub)
		assert.Equal(t, filepath.Join(m.SharedPoolDir(), sub), target)

		info, err := os.Stat(local)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLinkSharedReplacesStaleEntries(t *testing.T) {
	m, _, _ := newTestManager(t)
	dataDir := filepath.Join(m.DefaultDataPath(), "1.21.0")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	require.NoError(t, os.Symlink("/nonexistent", filepath.Join(dataDir, ResourcePacks)))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, BehaviorPacks), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dataDir, Worlds), 0o755))

	require.NoError(t, m.LinkShared(dataDir))
	for _, sub := range SharedSubtrees {
		target, err := os.Readlink(filepath.Join(dataDir, sub))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(m.SharedPoolDir(), sub), target)
	}
}

func TestLinkSharedKeepsNonEmptyDirectory(t *testing.T) {
	m, _, _ := newTestManager(t)
	dataDir := filepath.Join(m.DefaultDataPath(), "1.21.0")
	worlds := filepath.Join(dataDir, Worlds)
	require.NoError(t, os.MkdirAll(worlds, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(worlds, "level.dat"), []byte("w"), 0o644))

	err := m.LinkShared(dataDir)
	assert.ErrorIs(t, err, ErrLocalDataPresent)
	_, err = os.Stat(filepath.Join(worlds, "level.dat"))
	assert.NoError(t, err)
}

func TestRemoveVersionDataKeepsPool(t *testing.T) {
	m, _, _ := newTestManager(t)
	dataDir := filepath.Join(m.DefaultDataPath(), "1.21.0")
	require.NoError(t, m.LinkShared(dataDir))
	world := filepath.Join(m.SharedPoolDir(), Worlds, "my-world")
	require.NoError(t, os.MkdirAll(world, 0o755))

	require.NoError(t, m.RemoveVersionData(dataDir))

	_, err := os.Stat(dataDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(world)
	assert.NoError(t, err, "shared pool content must survive")
}

func TestRemoveVersionDataRefusesPool(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.NoError(t, m.EnsureSharedPool())

	assert.Error(t, m.RemoveVersionData(m.SharedPoolDir()))
	assert.Error(t, m.RemoveVersionData(m.DefaultDataPath()))
	assert.Error(t, m.RemoveVersionData(filepath.Join(m.SharedPoolDir(), Worlds)))
	assert.DirExists(t, m.SharedPoolDir())
}

func TestSetCustomDataPathMovesVersions(t *testing.T) {
	m, reg, settings := newTestManager(t)
	installFake(t, m, reg, "1.20.0")
	installFake(t, m, reg, "1.21.0")
	newRoot := filepath.Join(t.TempDir(), "sdcard")

	require.NoError(t, m.SetCustomDataPath(newRoot))

	assert.Equal(t, newRoot, m.CurrentDataPath())
	assert.Equal(t, newRoot, settings.custom)

	reloaded := registry.New(reg.Path(), nil)
	require.NoError(t, reloaded.Load())
	for _, v := range []string{"1.20.0", "1.21.0"} {
		rec, ok := reloaded.Get(version.MustParse(v))
		require.True(t, ok)
		want := filepath.Join(newRoot, v)
		assert.Equal(t, want, rec.DataPath)
		assert.FileExists(t, filepath.Join(want, "options.txt"))
		_, err := os.Stat(filepath.Join(m.DefaultDataPath(), v))
		assert.True(t, os.IsNotExist(err), "old data dir for %s should be gone", v)

		target, err := os.Readlink(filepath.Join(want, Worlds))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(m.SharedPoolDir(), Worlds), target)
	}
}

func TestSetCustomDataPathPartialFailure(t *testing.T) {
	m, reg, settings := newTestManager(t)
	installFake(t, m, reg, "1.20.0")
	installFake(t, m, reg, "1.21.0")
	newRoot := filepath.Join(t.TempDir(), "sdcard")

	// All() is newest first, so 1.21.0 moves and 1.20.0 fails.
	calls := 0
	orig := osRename
	osRename = func(src, dst string) error {
		calls++
		if calls == 2 {
			return errors.New("device removed")
		}
		return orig(src, dst)
	}
	t.Cleanup(func() { osRename = orig })

	err := m.SetCustomDataPath(newRoot)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.PathError))

	assert.Equal(t, m.DefaultDataPath(), m.CurrentDataPath())
	assert.Equal(t, 0, settings.calls)

	reloaded := registry.New(reg.Path(), nil)
	require.NoError(t, reloaded.Load())
	moved, _ := reloaded.Get(version.MustParse("1.21.0"))
	stayed, _ := reloaded.Get(version.MustParse("1.20.0"))
	assert.Equal(t, filepath.Join(newRoot, "1.21.0"), moved.DataPath)
	assert.Equal(t, filepath.Join(m.DefaultDataPath(), "1.20.0"), stayed.DataPath)
	assert.FileExists(t, filepath.Join(stayed.DataPath, "options.txt"))
}

func TestSetCustomDataPathSettingNotPersisted(t *testing.T) {
	m, reg, settings := newTestManager(t)
	installFake(t, m, reg, "1.21.0")
	newRoot := filepath.Join(t.TempDir(), "sdcard")
	settings.err = errors.New("read-only file system")

	err := m.SetCustomDataPath(newRoot)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.PathError))

	// the root in use must match what a restart would load
	assert.Equal(t, m.DefaultDataPath(), m.CurrentDataPath())
	assert.Equal(t, "", m.CustomDataPath())
	assert.Equal(t, "", settings.custom)

	reloaded := registry.New(reg.Path(), nil)
	require.NoError(t, reloaded.Load())
	rec, ok := reloaded.Get(version.MustParse("1.21.0"))
	require.True(t, ok)
	assert.Equal(t, filepath.Join(newRoot, "1.21.0"), rec.DataPath)
}

func TestSetCustomDataPathCrossDevice(t *testing.T) {
	m, reg, _ := newTestManager(t)
	installFake(t, m, reg, "1.21.0")
	newRoot := filepath.Join(t.TempDir(), "sdcard")

	orig := osRename
	osRename = func(src, dst string) error {
		return &os.LinkError{Op: "rename", Old: src, New: dst, Err: unix.EXDEV}
	}
	t.Cleanup(func() { osRename = orig })

	require.NoError(t, m.SetCustomDataPath(newRoot))
	assert.FileExists(t, filepath.Join(newRoot, "1.21.0", "options.txt"))
	_, err := os.Stat(filepath.Join(m.DefaultDataPath(), "1.21.0"))
	assert.True(t, os.IsNotExist(err))
}

func TestSetCustomDataPathUncreatable(t *testing.T) {
	m, _, _ := newTestManager(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := m.SetCustomDataPath(filepath.Join(blocker, "root"))
	assert.True(t, errors.Is(err, fault.PathError))
	assert.True(t, errors.Is(m.SetCustomDataPath(" "), fault.PathError))
}

func TestSetCustomDataPathBackToDefault(t *testing.T) {
	m, reg, settings := newTestManager(t)
	installFake(t, m, reg, "1.21.0")
	require.NoError(t, m.SetCustomDataPath(filepath.Join(t.TempDir(), "sd")))

	require.NoError(t, m.SetCustomDataPath(m.DefaultDataPath()))
	assert.Equal(t, "", m.CustomDataPath())
	assert.Equal(t, "", settings.custom)
	rec, _ := reg.Get(version.MustParse("1.21.0"))
	assert.Equal(t, filepath.Join(m.DefaultDataPath(), "1.21.0"), rec.DataPath)
}

func TestDiskProbe(t *testing.T) {
	dir := t.TempDir()
	free, err := DiskProbe{}.Free(context.Background(), filepath.Join(dir, "not", "yet"))
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))
}

func TestDirSize(t *testing.T) {
	m, _, _ := newTestManager(t)
	dataDir := filepath.Join(m.DefaultDataPath(), "1.21.0")
	require.NoError(t, m.LinkShared(dataDir))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "a"), make([]byte, 100), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(m.SharedPoolDir(), Worlds, "big"), make([]byte, 1000), 0o644))

	size, err := DirSize(dataDir)
	require.NoError(t, err)
	assert.Equal(t, int64(100), size)

	size, err = DirSize(filepath.Join(dataDir, "missing"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}
