// Package game is the launcher core facade. A Manager owns the registry, the
// data path manager, the installer and the process launcher for one base
// directory and exposes the install, uninstall and launch operations.
package game

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/allycraft/allycraft/internal/archive"
	"github.com/allycraft/allycraft/internal/config"
	"github.com/allycraft/allycraft/internal/datapath"
	"github.com/allycraft/allycraft/internal/envprofile"
	"github.com/allycraft/allycraft/internal/fault"
	"github.com/allycraft/allycraft/internal/guard"
	"github.com/allycraft/allycraft/internal/install"
	"github.com/allycraft/allycraft/internal/journal"
	"github.com/allycraft/allycraft/internal/launch"
	"github.com/allycraft/allycraft/internal/platform"
	"github.com/allycraft/allycraft/internal/registry"
	"github.com/allycraft/allycraft/internal/source"
	"github.com/allycraft/allycraft/internal/validate"
	"github.com/allycraft/allycraft/internal/version"
)

// Files and directories under the base directory.
const (
	ManifestFileName = "installed_versions.json"
	journalDir       = "journal"
	locksDir         = "locks"
	logsDir          = "logs"
)

// ErrNotRunning is returned by Stop when the version has no live process.
var ErrNotRunning = errors.New("version is not running")

// Catalog lists installable versions.
type Catalog interface {
	Available(ctx context.Context) ([]version.Descriptor, error)
}

// Options configures a Manager. Only BaseDir is required.
type Options struct {
	BaseDir string
	// Downloader fetches packages. Nil makes Install fail with DownloadFailed.
	Downloader source.Downloader
	Catalog    Catalog
	// Settings persists the data root and launch variables. Nil loads
	// <base>/settings.toml.
	Settings *config.SettingsFile
	Layout   validate.Layout
	Probe    datapath.SpaceProbe
	Platform platform.Detector
	// ProfilePath is the Lua launch profile. Empty means <base>/profile.lua.
	ProfilePath string
	StopGrace   time.Duration
	Clock       install.Clock
	Logger      *zap.Logger
}

// Manager is the entry point for version lifecycle operations.
type Manager struct {
	base      string
	registry  *registry.Registry
	paths     *datapath.Manager
	validator *validate.Validator
	guard     *guard.Guard
	installer *install.Installer
	launcher  *launch.Launcher
	settings  *config.SettingsFile
	catalog   Catalog
	log       *zap.Logger
}

// Open builds a Manager for opts.BaseDir. It loads the registry, starting
// empty when the manifest is corrupt, and rolls back installs interrupted by
// an earlier crash.
func Open(opts Options) (*Manager, error) {
	if opts.BaseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	base, err := filepath.Abs(opts.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base dir: %w", err)
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fault.New(fault.InstallPathError, "open", "", err)
	}

	settings := opts.Settings
	if settings == nil {
		settings, err = config.LoadSettings(filepath.Join(base, config.SettingsFileName))
		if err != nil {
			return nil, err
		}
	}

	reg := registry.New(filepath.Join(base, ManifestFileName), log.Named("registry"))
	if err := reg.Load(); err != nil {
		if !errors.Is(err, fault.RegistryCorrupt) {
			return nil, err
		}
		log.Error("installed versions list is corrupt, starting empty", zap.Error(err))
	}

	paths, err := datapath.New(datapath.Config{
		BaseDir:    base,
		CustomRoot: settings.CustomDataPath(),
		Registry:   reg,
		Probe:      opts.Probe,
		Settings:   settings,
		Logger:     log.Named("datapath"),
	})
	if err != nil {
		return nil, err
	}

	layout := opts.Layout
	if layout.Executable == "" {
		layout = validate.DefaultLayout
	}
	validator := validate.New(layout, log.Named("validate"))
	locks := guard.New(filepath.Join(base, locksDir))

	m := &Manager{
		base:      base,
		registry:  reg,
		paths:     paths,
		validator: validator,
		guard:     locks,
		settings:  settings,
		catalog:   opts.Catalog,
		log:       log,
	}
	m.recover()

	downloader := opts.Downloader
	if downloader == nil {
		downloader = unconfiguredSource{}
	}
	m.installer, err = install.New(install.Config{
		Registry:   reg,
		Paths:      paths,
		Validator:  validator,
		Downloader: downloader,
		Extractor:  archive.NewExtractor(log.Named("archive")),
		Guard:      locks,
		JournalDir: filepath.Join(base, journalDir),
		Clock:      opts.Clock,
		Logger:     log.Named("install"),
	})
	if err != nil {
		return nil, err
	}

	detector := opts.Platform
	if detector == nil {
		detector = platform.NewDetector()
	}
	profilePath := opts.ProfilePath
	if profilePath == "" {
		profilePath = filepath.Join(base, envprofile.FileName)
	}
	m.launcher = launch.New(launch.Config{
		Layout: layout,
		LogDir: filepath.Join(base, logsDir),
		Profile: envprofile.FileProfile{
			Evaluator: envprofile.New(detector, log.Named("profile")),
			Path:      profilePath,
		},
		StopGrace: opts.StopGrace,
		Logger:    log.Named("launch"),
	})
	return m, nil
}

func (m *Manager) recover() {
	rolledBack, err := journal.Recover(filepath.Join(m.base, journalDir), journal.RecoverOptions{
		Installed: func(s string) bool {
			v, err := version.Parse(s)
			return err == nil && m.registry.Has(v)
		},
		RemoveData: m.paths.RemoveVersionData,
		Logger:     m.log.Named("journal"),
	})
	if err != nil {
		m.log.Warn("install recovery incomplete", zap.Error(err))
	}
	if len(rolledBack) > 0 {
		m.log.Info("rolled back interrupted installs", zap.Strings("versions", rolledBack))
	}
}

// BaseDir returns the absolute base directory.
func (m *Manager) BaseDir() string {
	return m.base
}

// Installed returns every registered version, newest first.
func (m *Manager) Installed() []registry.Record {
	return m.registry.All()
}

// Record returns the registry entry for v.
func (m *Manager) Record(v version.Version) (registry.Record, bool) {
	return m.registry.Get(v)
}

// Available lists installable versions from the catalog.
func (m *Manager) Available(ctx context.Context) ([]version.Descriptor, error) {
	if m.catalog == nil {
		return nil, fmt.Errorf("no version catalog configured")
	}
	return m.catalog.Available(ctx)
}

// Install starts installing desc. See install.Installer.Install.
func (m *Manager) Install(ctx context.Context, desc version.Descriptor) (*install.Operation, error) {
	if m.launcher.Running(desc.Version) {
		return nil, fault.Newf(fault.VersionBusy, "install", desc.Version.String(), "version is running")
	}
	return m.installer.Install(ctx, desc)
}

// Uninstall removes v's install and data directories and its registry entry.
// The shared pool is never touched. A version that is being installed,
// launched or is running is refused with VersionBusy.
func (m *Manager) Uninstall(v version.Version) error {
	lease, err := m.acquire("uninstall", v)
	if err != nil {
		return err
	}
	defer lease.Release()

	rec, ok := m.registry.Get(v)
	if !ok {
		return fault.Newf(fault.NotInstalled, "uninstall", v.String(), "no registry entry")
	}
	if m.launcher.Running(v) {
		return fault.Newf(fault.VersionBusy, "uninstall", v.String(), "version is running")
	}

	// The entry goes first so the registry never points at removed files.
	m.registry.Remove(v)
	if err := m.registry.Save(); err != nil {
		if uerr := m.registry.Upsert(rec); uerr != nil {
			m.log.Error("could not restore registry entry", zap.Error(uerr))
		}
		return err
	}

	var errs []error
	if err := os.RemoveAll(rec.InstallPath); err != nil {
		errs = append(errs, fmt.Errorf("remove install dir: %w", err))
	}
	if err := m.paths.RemoveVersionData(rec.DataPath); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		m.log.Warn("uninstall left files behind", zap.String("version", v.String()), zap.Error(err))
		return fault.New(fault.PathError, "uninstall", v.String(), err)
	}

	m.log.Info("version uninstalled", zap.String("version", v.String()))
	return nil
}

// Launch starts v. env carries caller variables such as display settings; it
// overrides the launch variables from settings.
func (m *Manager) Launch(ctx context.Context, v version.Version, env map[string]string) (*launch.Handle, error) {
	rec, ok := m.registry.Get(v)
	if !ok {
		return nil, fault.New(fault.LaunchError, "launch", v.String(), fault.NotInstalled)
	}

	lease, err := m.guard.TryAcquire(v.String())
	if err != nil {
		if errors.Is(err, guard.ErrBusy) {
			return nil, fault.New(fault.VersionBusy, "launch", v.String(), err)
		}
		return nil, fault.New(fault.LaunchError, "launch", v.String(), err)
	}
	defer lease.Release()

	merged := m.settings.LaunchEnv()
	if merged == nil {
		merged = make(map[string]string, len(env))
	}
	for k, val := range env {
		merged[k] = val
	}
	return m.launcher.Launch(ctx, rec, merged)
}

// Running reports whether v has a live process started by this Manager.
func (m *Manager) Running(v version.Version) bool {
	return m.launcher.Running(v)
}

// Stop terminates v's process.
func (m *Manager) Stop(ctx context.Context, v version.Version) error {
	h, ok := m.launcher.Handle(v)
	if !ok {
		return ErrNotRunning
	}
	return h.Stop(ctx)
}

// Events delivers process lifecycle events.
func (m *Manager) Events() <-chan launch.Event {
	return m.launcher.Events()
}

// DataPath returns the current data root.
func (m *Manager) DataPath() string {
	return m.paths.CurrentDataPath()
}

// CustomDataPath returns the custom data root, or "" when the default is used.
func (m *Manager) CustomDataPath() string {
	return m.paths.CustomDataPath()
}

// SetCustomDataPath moves every version's data directory under path and
// persists the new root. It is refused with VersionBusy while any version is
// being installed, uninstalled or is running.
func (m *Manager) SetCustomDataPath(path string) error {
	root, err := config.ExpandPath(path)
	if err != nil {
		return fault.New(fault.PathError, "datapath.set", "", err)
	}

	lease, err := m.guard.TryAcquire(install.DataPathKey)
	if err != nil {
		return fault.New(fault.VersionBusy, "datapath.set", "", err)
	}
	defer lease.Release()

	for _, key := range m.guard.Active() {
		if key != install.DataPathKey {
			return fault.Newf(fault.VersionBusy, "datapath.set", key, "operation in progress")
		}
	}
	for _, rec := range m.registry.All() {
		if m.launcher.Running(rec.Version()) {
			return fault.Newf(fault.VersionBusy, "datapath.set", rec.Version().String(), "version is running")
		}
	}
	return m.paths.SetCustomDataPath(root)
}

// acquire takes v's guard key for op and checks no data root move is running.
func (m *Manager) acquire(op string, v version.Version) (*guard.Lease, error) {
	lease, err := m.guard.TryAcquire(v.String())
	if err != nil {
		if errors.Is(err, guard.ErrBusy) {
			return nil, fault.New(fault.VersionBusy, op, v.String(), err)
		}
		return nil, fault.New(fault.PathError, op, v.String(), err)
	}
	if m.guard.Busy(install.DataPathKey) {
		lease.Release()
		return nil, fault.Newf(fault.VersionBusy, op, v.String(), "data path migration in progress")
	}
	return lease, nil
}

// unconfiguredSource stands in when no package source is set up.
type unconfiguredSource struct{}

func (unconfiguredSource) Download(context.Context, version.Descriptor, string, source.ProgressFunc) error {
	return source.ErrNoURL
}
