package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allycraft/allycraft/internal/version"
)

func TestLoadEnv_Defaults(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_DATA_HOME", xdg)
	// envconfig also falls back to the unprefixed names
	for _, k := range []string{"BASE_DIR", "CATALOG_URL", "PACKAGE_URL", "KEYRING", "LOG_LEVEL", "LOG_DEV", "MIN_VERSION", "INCLUDE_BETA"} {
		unsetenv(t, EnvPrefix+"_"+k)
		unsetenv(t, k)
	}

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(xdg, "allycraft"), env.BaseDir)
	assert.Equal(t, "info", env.LogLevel)
	assert.False(t, env.LogDev)
	assert.False(t, env.IncludeBeta)
	assert.Equal(t, version.MustParse("1.16.0"), env.Minimum())
	assert.Equal(t, filepath.Join(xdg, "allycraft", SettingsFileName), env.SettingsPath())
}

func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestLoadEnv_Overrides(t *testing.T) {
	base := t.TempDir()
	t.Setenv("ALLYCRAFT_BASE_DIR", base)
	t.Setenv("ALLYCRAFT_CATALOG_URL", "https://example.invalid/versions.json")
	t.Setenv("ALLYCRAFT_PACKAGE_URL", "https://example.invalid/{version}.zip")
	t.Setenv("ALLYCRAFT_KEYRING", filepath.Join(base, "keys.asc"))
	t.Setenv("ALLYCRAFT_LOG_LEVEL", "debug")
	t.Setenv("ALLYCRAFT_LOG_DEV", "true")
	t.Setenv("ALLYCRAFT_MIN_VERSION", "1.20.0")
	t.Setenv("ALLYCRAFT_INCLUDE_BETA", "true")

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, base, env.BaseDir)
	assert.Equal(t, "https://example.invalid/versions.json", env.CatalogURL)
	assert.Equal(t, "https://example.invalid/{version}.zip", env.PackageURL)
	assert.Equal(t, filepath.Join(base, "keys.asc"), env.Keyring)
	assert.Equal(t, "debug", env.LogLevel)
	assert.True(t, env.LogDev)
	assert.True(t, env.IncludeBeta)
	assert.Equal(t, version.MustParse("1.20.0"), env.Minimum())
}

func TestLoadEnv_Invalid(t *testing.T) {
	t.Setenv("ALLYCRAFT_BASE_DIR", t.TempDir())

	t.Run("bad bool", func(t *testing.T) {
		t.Setenv("ALLYCRAFT_LOG_DEV", "sometimes")
		_, err := LoadEnv()
		assert.Error(t, err)
	})

	t.Run("bad min version", func(t *testing.T) {
		t.Setenv("ALLYCRAFT_MIN_VERSION", "not-a-version")
		_, err := LoadEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ALLYCRAFT_MIN_VERSION")
	})
}

func TestExpandPath(t *testing.T) {
	home, err := homedir.Dir()
	require.NoError(t, err)

	got, err := ExpandPath("~/games")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "games"), got)

	got, err = ExpandPath("/run/media/sd")
	require.NoError(t, err)
	assert.Equal(t, "/run/media/sd", got)

	got, err = ExpandPath("rel/dir")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))

	_, err = ExpandPath("  ")
	assert.Error(t, err)
}
