// Package testutil provides helpers for testing allycraft in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SetupTestEnv points every allycraft path at a fresh temp directory and
// returns the base directory.
//
// The cleanup function is automatically handled by t.TempDir(),
// so callers don't need to manually clean up.
func SetupTestEnv(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	base := filepath.Join(tmpDir, "allycraft")

	t.Setenv("ALLYCRAFT_BASE_DIR", base)
	t.Setenv("ALLYCRAFT_CATALOG_URL", "")
	t.Setenv("ALLYCRAFT_PACKAGE_URL", "")
	t.Setenv("ALLYCRAFT_KEYRING", "")
	t.Setenv("ALLYCRAFT_LOG_LEVEL", "error")
	t.Setenv("HOME", filepath.Join(tmpDir, "home"))

	for _, dir := range []string{base, filepath.Join(tmpDir, "home")} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}
	return base
}
