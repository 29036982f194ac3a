package validate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allycraft/allycraft/internal/registry"
)

func populate(t *testing.T, dir string, layout Layout) {
	t.Helper()
	exe := layout.ExecutablePath(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(exe), 0o755))
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))
	for _, lib := range layout.Libraries {
		p := filepath.Join(dir, lib)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("ELF"), 0o644))
	}
}

func TestValidateComplete(t *testing.T) {
	dir := t.TempDir()
	populate(t, dir, DefaultLayout)

	v := New(Layout{}, nil)
	assert.True(t, v.Validate(registry.Record{InstallPath: dir}))
	assert.NoError(t, v.Check(dir))
}

func TestValidateMissingEachArtifact(t *testing.T) {
	required := append([]string{DefaultLayout.Executable}, DefaultLayout.Libraries...)

	for _, rel := range required {
		t.Run(rel, func(t *testing.T) {
			dir := t.TempDir()
			populate(t, dir, DefaultLayout)
			require.NoError(t, os.Remove(filepath.Join(dir, rel)))

			v := New(DefaultLayout, nil)
			assert.False(t, v.Validate(registry.Record{InstallPath: dir}))

			var missing *MissingError
			require.True(t, errors.As(v.Check(dir), &missing))
			assert.Equal(t, filepath.Join(dir, rel), missing.Path)
		})
	}
}

func TestValidateExecutePermission(t *testing.T) {
	dir := t.TempDir()
	populate(t, dir, DefaultLayout)
	exe := DefaultLayout.ExecutablePath(dir)

	require.NoError(t, os.Chmod(exe, 0o644))
	assert.False(t, New(DefaultLayout, nil).Validate(registry.Record{InstallPath: dir}))

	// group/other execute alone is not enough
	require.NoError(t, os.Chmod(exe, 0o655))
	assert.False(t, New(DefaultLayout, nil).Validate(registry.Record{InstallPath: dir}))

	require.NoError(t, os.Chmod(exe, 0o700))
	assert.True(t, New(DefaultLayout, nil).Validate(registry.Record{InstallPath: dir}))
}

func TestValidateExecutableIsDirectory(t *testing.T) {
	dir := t.TempDir()
	populate(t, dir, DefaultLayout)
	exe := DefaultLayout.ExecutablePath(dir)
	require.NoError(t, os.Remove(exe))
	require.NoError(t, os.Mkdir(exe, 0o755))

	assert.False(t, New(DefaultLayout, nil).Validate(registry.Record{InstallPath: dir}))
}

func TestValidateIsPure(t *testing.T) {
	dir := t.TempDir()
	populate(t, dir, DefaultLayout)
	v := New(DefaultLayout, nil)

	for i := 0; i < 3; i++ {
		assert.True(t, v.Validate(registry.Record{InstallPath: dir}))
	}
	assert.False(t, v.Validate(registry.Record{}))
	assert.False(t, v.Validate(registry.Record{InstallPath: filepath.Join(dir, "nope")}))
}

func TestCustomLayout(t *testing.T) {
	layout := Layout{Executable: "bin/game", Libraries: []string{"lib/libgame.so"}}
	dir := t.TempDir()
	populate(t, dir, layout)

	assert.True(t, New(layout, nil).Validate(registry.Record{InstallPath: dir}))
	assert.False(t, New(DefaultLayout, nil).Validate(registry.Record{InstallPath: dir}))
}
