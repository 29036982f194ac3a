// Package validate decides whether an install directory is playable.
package validate

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/allycraft/allycraft/internal/registry"
)

// Layout lists the artifacts a playable install must contain, relative to the
// install directory.
type Layout struct {
	Executable string
	Libraries  []string
}

// DefaultLayout is the x86_64 handheld build layout.
var DefaultLayout = Layout{
	Executable: "mcpelauncher-client",
	Libraries: []string{
		"lib/x86_64/libminecraftpe.so",
		"lib/x86_64/libc++_shared.so",
		"lib/x86_64/libfmod.so",
	},
}

// ExecutablePath returns the launcher executable inside installDir.
func (l Layout) ExecutablePath(installDir string) string {
	return filepath.Join(installDir, l.Executable)
}

// Validator checks install directories against a Layout.
type Validator struct {
	layout Layout
	log    *zap.Logger
}

// New creates a Validator. A zero Layout selects DefaultLayout.
func New(layout Layout, log *zap.Logger) *Validator {
	if layout.Executable == "" {
		layout = DefaultLayout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{layout: layout, log: log}
}

// Layout returns the layout the validator checks.
func (v *Validator) Layout() Layout {
	return v.layout
}

// Validate reports whether rec's install directory holds every required
// artifact and the executable has the owner execute bit. It never fails; any
// problem yields false.
func (v *Validator) Validate(rec registry.Record) bool {
	return v.Check(rec.InstallPath) == nil
}

// Check returns a *MissingError describing the first problem, or nil.
func (v *Validator) Check(installDir string) error {
	if installDir == "" {
		return &MissingError{Path: installDir, Reason: "no install directory"}
	}

	exe := v.layout.ExecutablePath(installDir)
	info, err := os.Stat(exe)
	if err != nil {
		return v.missing(exe, "executable not found")
	}
	if !info.Mode().IsRegular() {
		return v.missing(exe, "executable is not a regular file")
	}
	if info.Mode().Perm()&0o100 == 0 {
		return v.missing(exe, "executable lacks owner execute permission")
	}

	for _, lib := range v.layout.Libraries {
		p := filepath.Join(installDir, lib)
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			return v.missing(p, "library not found")
		}
	}
	return nil
}

func (v *Validator) missing(path, reason string) error {
	v.log.Debug("install not playable", zap.String("path", path), zap.String("reason", reason))
	return &MissingError{Path: path, Reason: reason}
}

// MissingError describes why an install is not playable.
type MissingError struct {
	Path   string
	Reason string
}

func (e *MissingError) Error() string {
	return e.Reason + ": " + e.Path
}
