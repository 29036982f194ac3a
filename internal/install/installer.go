// Package install runs the install pipeline: space check, download,
// extraction, shared data linking, validation and registration. Every failure
// rolls the partial install back before it is reported.
package install

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/allycraft/allycraft/internal/fault"
	"github.com/allycraft/allycraft/internal/guard"
	"github.com/allycraft/allycraft/internal/journal"
	"github.com/allycraft/allycraft/internal/registry"
	"github.com/allycraft/allycraft/internal/source"
	"github.com/allycraft/allycraft/internal/version"
)

const (
	// DataPathKey is the guard key held while the data root is being moved.
	DataPathKey = "data-path"
	// ProgressInterval is the minimum spacing of download progress events.
	ProgressInterval = 100 * time.Millisecond

	archiveName = "package.archive"
)

// ErrAlreadyInstalled is wrapped by InstallPathError when the version is
// already registered.
var ErrAlreadyInstalled = errors.New("version already installed")

// Registry is the part of the version registry the installer mutates.
type Registry interface {
	Has(v version.Version) bool
	Upsert(rec registry.Record) error
	Remove(v version.Version) bool
	Save() error
}

// Paths resolves and prepares the filesystem layout.
type Paths interface {
	InstallDir(v version.Version) string
	DownloadDir(v version.Version) string
	DataDirFor(v version.Version) string
	CurrentDataPath() string
	AvailableSpace(ctx context.Context, path string) (uint64, error)
	LinkShared(dataDir string) error
	RemoveVersionData(dataDir string) error
}

// Validator decides whether an install directory is playable.
type Validator interface {
	Validate(rec registry.Record) bool
}

// Extractor unpacks a package archive.
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string) error
}

// Locker hands out per-version exclusion.
type Locker interface {
	TryAcquire(key string) (*guard.Lease, error)
	Busy(key string) bool
}

// Config wires an Installer.
type Config struct {
	Registry   Registry
	Paths      Paths
	Validator  Validator
	Downloader source.Downloader
	Extractor  Extractor
	Guard      Locker
	// JournalDir holds in-flight install journals. Empty disables journaling.
	JournalDir string
	// Clock stamps InstalledAt. Defaults to time.Now.
	Clock  Clock
	Logger *zap.Logger
}

// Clock returns the current time.
type Clock func() time.Time

// Installer starts install operations.
type Installer struct {
	reg        Registry
	paths      Paths
	validator  Validator
	downloader source.Downloader
	extractor  Extractor
	guard      Locker
	journalDir string
	clock      Clock
	log        *zap.Logger
}

// New creates an Installer.
func New(cfg Config) (*Installer, error) {
	if cfg.Registry == nil || cfg.Paths == nil || cfg.Validator == nil ||
		cfg.Downloader == nil || cfg.Extractor == nil || cfg.Guard == nil {
		return nil, fmt.Errorf("install: incomplete configuration")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Installer{
		reg:        cfg.Registry,
		paths:      cfg.Paths,
		validator:  cfg.Validator,
		downloader: cfg.Downloader,
		extractor:  cfg.Extractor,
		guard:      cfg.Guard,
		journalDir: cfg.JournalDir,
		clock:      cfg.Clock,
		log:        cfg.Logger,
	}, nil
}

// Install starts installing desc in the background. A second request for a
// version that is mid-pipeline fails immediately with InstallAlreadyInProgress.
// Cancelling ctx, or calling Cancel on the operation, aborts the install.
func (i *Installer) Install(ctx context.Context, desc version.Descriptor) (*Operation, error) {
	if err := desc.Validate(); err != nil {
		return nil, fault.New(fault.InstallPathError, "install", desc.Version.String(), err)
	}
	v := desc.Version

	lease, err := i.guard.TryAcquire(v.String())
	if err != nil {
		if errors.Is(err, guard.ErrBusy) {
			return nil, fault.New(fault.InstallAlreadyInProgress, "install", v.String(), err)
		}
		return nil, fault.New(fault.InstallPathError, "install", v.String(), err)
	}
	if i.guard.Busy(DataPathKey) {
		lease.Release()
		return nil, fault.Newf(fault.VersionBusy, "install", v.String(), "data path migration in progress")
	}

	ctx, cancel := context.WithCancel(ctx)
	entry := journal.New(v.String(), i.paths.InstallDir(v), i.paths.DataDirFor(v), i.paths.DownloadDir(v))
	op := newOperation(entry.ID, v, cancel)

	p := &pipeline{
		Installer: i,
		op:        op,
		desc:      desc,
		entry:     entry,
		log:       i.log.With(zap.String("version", v.String()), zap.String("op_id", entry.ID)),
	}
	go func() {
		rec, err := p.run(ctx)
		cancel()
		// The version is free again before waiters are woken.
		lease.Release()
		op.finish(rec, err)
	}()
	return op, nil
}

// pipeline is the state of one install.
type pipeline struct {
	*Installer
	op    *Operation
	desc  version.Descriptor
	entry *journal.Entry
	log   *zap.Logger

	journaled bool
}

func (p *pipeline) run(ctx context.Context) (registry.Record, error) {
	start := time.Now()
	p.log.Info("install started", zap.Int64("size", p.desc.Size))

	rec, err := p.stages(ctx)
	if err != nil {
		if ctx.Err() != nil && fault.KindOf(err) != fault.Cancelled {
			err = fault.New(fault.Cancelled, "install", p.desc.Version.String(), err)
		}
		p.rollback(err)
		p.log.Warn("install failed",
			zap.Stringer("stage", p.op.Last().Stage),
			zap.Error(err))
		return registry.Record{}, err
	}

	p.log.Info("install complete", zap.Duration("elapsed", time.Since(start)))
	return rec, nil
}

func (p *pipeline) fail(kind fault.Kind, err error) error {
	return fault.New(kind, "install", p.desc.Version.String(), err)
}

// checkpoint turns a cancelled context into a Cancelled error between stages.
func (p *pipeline) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return p.fail(fault.Cancelled, err)
	}
	return nil
}

func (p *pipeline) advance(state journal.State) {
	if !p.journaled {
		return
	}
	p.entry.Advance(state)
	if err := p.entry.Save(p.journalDir); err != nil {
		p.log.Warn("journal update failed", zap.Error(err))
	}
}

func (p *pipeline) stages(ctx context.Context) (registry.Record, error) {
	v := p.desc.Version
	installDir := p.entry.InstallDir
	dataDir := p.entry.DataDir
	downloadDir := p.entry.DownloadDir

	// CheckingSpace
	p.op.report(CheckingSpace, CheckingSpace.Scale(0))
	required := p.desc.RequiredSpace()
	target := p.paths.CurrentDataPath()
	free, err := p.paths.AvailableSpace(ctx, target)
	if err != nil {
		if cerr := p.checkpoint(ctx); cerr != nil {
			return registry.Record{}, cerr
		}
		return registry.Record{}, p.fail(fault.InsufficientStorage, fmt.Errorf("query free space at %s: %w", target, err))
	}
	if free < uint64(required) {
		return registry.Record{}, p.fail(fault.InsufficientStorage,
			fmt.Errorf("need %d bytes at %s, %d available", required, target, free))
	}
	if err := p.checkpoint(ctx); err != nil {
		return registry.Record{}, err
	}

	// Install directory
	if p.reg.Has(v) {
		return registry.Record{}, p.fail(fault.InstallPathError, ErrAlreadyInstalled)
	}
	p.entry.CreatedInstallDir = true
	p.entry.CreatedDataDir = !exists(dataDir)
	if p.journalDir != "" {
		if err := p.entry.Save(p.journalDir); err != nil {
			return registry.Record{}, p.fail(fault.InstallPathError, err)
		}
		p.journaled = true
	}
	if exists(installDir) {
		p.log.Info("removing stale install directory", zap.String("path", installDir))
		if err := os.RemoveAll(installDir); err != nil {
			return registry.Record{}, p.fail(fault.InstallPathError, err)
		}
	}
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return registry.Record{}, p.fail(fault.InstallPathError, err)
	}
	p.op.report(CheckingSpace, CheckingSpace.Scale(1))

	// Downloading
	p.op.report(Downloading, Downloading.Scale(0))
	archivePath := filepath.Join(downloadDir, archiveName)
	if err := p.download(ctx, archivePath); err != nil {
		os.Remove(archivePath)
		if cerr := p.checkpoint(ctx); cerr != nil {
			return registry.Record{}, cerr
		}
		return registry.Record{}, p.fail(fault.DownloadFailed, err)
	}
	p.advance(journal.StateDownloaded)

	// Extracting
	p.op.report(Extracting, Extracting.Scale(0))
	if err := p.extractor.Extract(ctx, archivePath, installDir); err != nil {
		if cerr := p.checkpoint(ctx); cerr != nil {
			return registry.Record{}, cerr
		}
		return registry.Record{}, p.fail(fault.ExtractionFailed, err)
	}
	if err := os.RemoveAll(downloadDir); err != nil {
		p.log.Warn("could not remove package archive", zap.String("path", downloadDir), zap.Error(err))
	}
	p.advance(journal.StateExtracted)
	if err := p.checkpoint(ctx); err != nil {
		return registry.Record{}, err
	}

	// LinkingSharedData
	p.op.report(LinkingSharedData, LinkingSharedData.Scale(0))
	if err := p.paths.LinkShared(dataDir); err != nil {
		return registry.Record{}, p.fail(fault.DataSetupFailed, err)
	}
	p.advance(journal.StateLinked)
	if err := p.checkpoint(ctx); err != nil {
		return registry.Record{}, err
	}

	// Validating
	p.op.report(Validating, Validating.Scale(0))
	rec := registry.Record{
		Descriptor:  p.desc,
		InstallPath: installDir,
		InstalledAt: p.clock().UTC(),
		DataPath:    dataDir,
	}
	if !p.validator.Validate(rec) {
		return registry.Record{}, p.fail(fault.ValidationFailed, fmt.Errorf("required artifacts missing in %s", installDir))
	}
	rec.Playable = true
	if err := p.checkpoint(ctx); err != nil {
		return registry.Record{}, err
	}

	// Registration
	if err := p.reg.Upsert(rec); err != nil {
		return registry.Record{}, p.fail(fault.RegistryIOError, err)
	}
	if err := p.reg.Save(); err != nil {
		p.reg.Remove(v)
		// Another pipeline may have persisted our record in the meantime.
		if rerr := p.reg.Save(); rerr != nil {
			p.log.Warn("could not persist registry after failed save", zap.Error(rerr))
		}
		return registry.Record{}, p.fail(fault.RegistryIOError, err)
	}

	if p.journaled {
		p.entry.Advance(journal.StateCommitted)
		if err := p.entry.Delete(p.journalDir); err != nil {
			p.log.Warn("journal cleanup failed", zap.Error(err))
		}
	}
	return rec, nil
}

func (p *pipeline) download(ctx context.Context, archivePath string) error {
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	limiter := rate.NewLimiter(rate.Every(ProgressInterval), 1)
	declared := float64(p.desc.Size)
	lastWhole := -1.0
	progress := func(received, _ int64) {
		pct := Downloading.Scale(float64(received) / declared)
		whole := math.Floor(pct)
		if whole == lastWhole || !limiter.Allow() {
			return
		}
		lastWhole = whole
		p.op.report(Downloading, pct)
	}

	if err := p.downloader.Download(ctx, p.desc, archivePath, progress); err != nil {
		return err
	}
	p.op.report(Downloading, Downloading.Scale(1))
	return nil
}

// rollback removes everything the pipeline created. It runs after failure
// and must not depend on the cancelled context.
func (p *pipeline) rollback(cause error) {
	if p.entry.CreatedInstallDir {
		if err := os.RemoveAll(p.entry.InstallDir); err != nil {
			p.log.Error("remove install dir", zap.String("path", p.entry.InstallDir), zap.Error(err))
		}
	}
	if p.entry.CreatedDataDir {
		if err := p.paths.RemoveVersionData(p.entry.DataDir); err != nil {
			p.log.Error("remove data dir", zap.String("path", p.entry.DataDir), zap.Error(err))
		}
	}
	if err := os.RemoveAll(p.entry.DownloadDir); err != nil {
		p.log.Error("remove download dir", zap.String("path", p.entry.DownloadDir), zap.Error(err))
	}
	if p.journaled {
		p.entry.Fail(cause)
		if err := p.entry.Delete(p.journalDir); err != nil {
			p.log.Warn("journal cleanup failed", zap.Error(err))
		}
	}
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
