package testutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allycraft/allycraft/internal/testutil"
)

func TestSetupTestEnv(t *testing.T) {
	base := testutil.SetupTestEnv(t)

	assert.Equal(t, base, os.Getenv("ALLYCRAFT_BASE_DIR"))
	assert.DirExists(t, base)
	assert.Equal(t, "error", os.Getenv("ALLYCRAFT_LOG_LEVEL"))
}

func TestSetupTestEnvIsolation(t *testing.T) {
	var first, second string
	t.Run("first", func(t *testing.T) {
		first = testutil.SetupTestEnv(t)
	})
	t.Run("second", func(t *testing.T) {
		second = testutil.SetupTestEnv(t)
	})
	assert.NotEqual(t, first, second)
}

func TestGamePackage(t *testing.T) {
	files := testutil.GamePackage("bin/game", []string{"lib/a.so"})
	require.Len(t, files, 2)
	assert.Equal(t, os.FileMode(0o755), files["bin/game"].Mode)

	path := filepath.Join(t.TempDir(), "pkg.zip")
	testutil.WriteFile(t, path, testutil.ZipBytes(t, files))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PK", string(data[:2]))
}
