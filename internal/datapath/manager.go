package datapath

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/allycraft/allycraft/internal/fault"
	"github.com/allycraft/allycraft/internal/registry"
	"github.com/allycraft/allycraft/internal/version"
)

// Shared pool subtrees linked into every version's data directory.
const (
	ResourcePacks = "resource_packs"
	BehaviorPacks = "behavior_packs"
	Worlds        = "worlds"
)

// SharedSubtrees lists the shared pool subtrees in link order.
var SharedSubtrees = []string{ResourcePacks, BehaviorPacks, Worlds}

const (
	versionsDir  = "versions"
	downloadsDir = "downloads"
	dataDir      = "data"
	sharedDir    = "shared"
)

// ErrLocalDataPresent is returned when a version-local path that should become
// a shared link is a non-empty directory.
var ErrLocalDataPresent = errors.New("version-local directory holds data")

// SettingsStore persists the custom data root.
type SettingsStore interface {
	SetCustomDataPath(path string) error
}

// Config configures a Manager.
type Config struct {
	// BaseDir is the launcher's base directory.
	BaseDir string
	// CustomRoot is the custom data root loaded from settings, or "".
	CustomRoot string
	Registry   *registry.Registry
	Probe      SpaceProbe
	Settings   SettingsStore
	Logger     *zap.Logger
}

// Manager resolves install and data paths.
type Manager struct {
	base     string
	registry *registry.Registry
	probe    SpaceProbe
	settings SettingsStore
	log      *zap.Logger

	mu     sync.RWMutex
	custom string
}

// New creates a Manager.
func New(cfg Config) (*Manager, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("BaseDir is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("Registry is required")
	}
	base, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base dir: %w", err)
	}
	if cfg.Probe == nil {
		cfg.Probe = DiskProbe{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	m := &Manager{
		base:     base,
		registry: cfg.Registry,
		probe:    cfg.Probe,
		settings: cfg.Settings,
		log:      cfg.Logger,
	}
	if cfg.CustomRoot != "" {
		custom, err := filepath.Abs(cfg.CustomRoot)
		if err != nil {
			return nil, fmt.Errorf("resolve custom data root: %w", err)
		}
		if custom != m.DefaultDataPath() {
			m.custom = custom
		}
	}
	return m, nil
}

// BaseDir returns the absolute base directory.
func (m *Manager) BaseDir() string {
	return m.base
}

// InstallDir returns the install directory for v.
func (m *Manager) InstallDir(v version.Version) string {
	return filepath.Join(m.base, versionsDir, v.String())
}

// DownloadDir returns the directory holding v's package archive while it is
// being installed.
func (m *Manager) DownloadDir(v version.Version) string {
	return filepath.Join(m.base, downloadsDir, v.String())
}

// DefaultDataPath returns the built-in data root.
func (m *Manager) DefaultDataPath() string {
	return filepath.Join(m.base, dataDir)
}

// CurrentDataPath returns the custom data root if set, else the default.
func (m *Manager) CurrentDataPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.custom != "" {
		return m.custom
	}
	return m.DefaultDataPath()
}

// CustomDataPath returns the custom data root, or "" when unset.
func (m *Manager) CustomDataPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.custom
}

// DataDirFor returns the per-version data directory under the current root.
func (m *Manager) DataDirFor(v version.Version) string {
	return filepath.Join(m.CurrentDataPath(), v.String())
}

// SharedPoolDir returns the shared pool root.
func (m *Manager) SharedPoolDir() string {
	return filepath.Join(m.DefaultDataPath(), sharedDir)
}

// AvailableSpace returns free bytes at path's mount point.
func (m *Manager) AvailableSpace(ctx context.Context, path string) (uint64, error) {
	return m.probe.Free(ctx, path)
}

// EnsureSharedPool creates the shared pool subtrees if missing.
func (m *Manager) EnsureSharedPool() error {
	for _, sub := range SharedSubtrees {
		if err := os.MkdirAll(filepath.Join(m.SharedPoolDir(), sub), 0o755); err != nil {
			return fmt.Errorf("create shared %s: %w", sub, err)
		}
	}
	return nil
}

// LinkShared creates dataDir if needed and points each shared subtree inside
// it at the shared pool. Existing links and files are replaced. Empty
// directories are replaced; a non-empty directory is left alone and
// ErrLocalDataPresent is returned.
func (m *Manager) LinkShared(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := m.EnsureSharedPool(); err != nil {
		return err
	}

	for _, sub := range SharedSubtrees {
		local := filepath.Join(dataDir, sub)
		if err := clearLinkTarget(local); err != nil {
			return err
		}
		if err := os.Symlink(filepath.Join(m.SharedPoolDir(), sub), local); err != nil {
			return fmt.Errorf("link %s: %w", sub, err)
		}
	}
	return nil
}

func clearLinkTarget(local string) error {
	info, err := os.Lstat(local)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inspect %s: %w", local, err)
	}
	if info.IsDir() {
		// os.Remove only succeeds on empty directories
		if err := os.Remove(local); err != nil {
			return fmt.Errorf("%w: %s", ErrLocalDataPresent, local)
		}
		return nil
	}
	if err := os.Remove(local); err != nil {
		return fmt.Errorf("remove existing %s: %w", local, err)
	}
	return nil
}

// RemoveVersionData deletes a per-version data directory. Shared links inside
// it are removed as links; the shared pool itself is never touched.
func (m *Manager) RemoveVersionData(dataDir string) error {
	if dataDir == "" {
		return nil
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dataDir, err)
	}
	if m.overlapsPool(abs) {
		return fmt.Errorf("refusing to remove %s: overlaps shared pool", abs)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("remove data dir %s: %w", abs, err)
	}
	return nil
}

func (m *Manager) overlapsPool(path string) bool {
	pool := m.SharedPoolDir()
	return m.insidePool(path) || strings.HasPrefix(pool, path+string(os.PathSeparator))
}

func (m *Manager) insidePool(path string) bool {
	pool := m.SharedPoolDir()
	return path == pool || strings.HasPrefix(path, pool+string(os.PathSeparator))
}

// SetCustomDataPath switches the data root to path and moves every installed
// version's data directory under it, persisting the updated records.
//
// The move is not transactional across versions. When one move fails, the
// versions already moved stay moved (and are persisted as such), the rest
// stay where they were, and a PathError is returned; the caller must
// reconcile by hand. The new root only takes effect once the setting is
// persisted.
func (m *Manager) SetCustomDataPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fault.Newf(fault.PathError, "datapath.set", "", "empty path")
	}
	root, err := filepath.Abs(path)
	if err != nil {
		return fault.New(fault.PathError, "datapath.set", "", err)
	}
	if m.insidePool(root) {
		return fault.Newf(fault.PathError, "datapath.set", "", "%s is inside the shared pool", root)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fault.New(fault.PathError, "datapath.set", "", err)
	}

	var moveErr error
	moved := 0
	for _, rec := range m.registry.All() {
		dst := filepath.Join(root, rec.Version().String())
		if rec.DataPath == dst {
			continue
		}
		if err := m.relocate(rec.DataPath, dst); err != nil {
			moveErr = fault.New(fault.PathError, "datapath.set", rec.Version().String(), err)
			break
		}
		rec.DataPath = dst
		if err := m.registry.Upsert(rec); err != nil {
			moveErr = fault.New(fault.PathError, "datapath.set", rec.Version().String(), err)
			break
		}
		moved++
		m.log.Info("moved version data",
			zap.String("version", rec.Version().String()),
			zap.String("path", dst))
	}

	if moved > 0 {
		if err := m.registry.Save(); err != nil {
			if moveErr != nil {
				return errors.Join(moveErr, err)
			}
			return err
		}
	}
	if moveErr != nil {
		m.log.Warn("data root migration stopped part way", zap.Int("moved", moved), zap.Error(moveErr))
		return moveErr
	}

	custom := root
	if root == m.DefaultDataPath() {
		custom = ""
	}
	if m.settings != nil {
		if err := m.settings.SetCustomDataPath(custom); err != nil {
			m.log.Warn("data root not persisted; new installs keep the previous root",
				zap.String("path", m.CurrentDataPath()),
				zap.Int("moved", moved),
				zap.Error(err))
			return fault.New(fault.PathError, "datapath.set", "", fmt.Errorf("persist setting: %w", err))
		}
	}
	m.mu.Lock()
	m.custom = custom
	m.mu.Unlock()

	m.log.Info("data root changed", zap.String("path", m.CurrentDataPath()), zap.Int("moved", moved))
	return nil
}

// relocate moves src to dst when src exists and refreshes the shared links at
// dst.
func (m *Manager) relocate(src, dst string) error {
	if src != "" {
		if _, err := os.Lstat(src); err == nil {
			if err := moveDir(src, dst); err != nil {
				return err
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("inspect %s: %w", src, err)
		}
	}
	return m.LinkShared(dst)
}
