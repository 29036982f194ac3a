package journal

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// pidAlive is swapped in tests.
var pidAlive = func(pid int) bool {
	if pid <= 0 || pid == os.Getpid() {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// RecoverOptions tells Recover what is committed and how to remove data.
type RecoverOptions struct {
	// Installed reports whether version is present in the registry.
	Installed func(version string) bool
	// RemoveData removes a per-version data directory. Required.
	RemoveData func(dir string) error
	Logger     *zap.Logger
}

// Recover rolls back every abandoned install journaled in dir. Entries owned
// by a live process are left alone. It returns the versions rolled back.
func Recover(dir string, opts RecoverOptions) ([]string, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	entries, broken, err := List(dir)
	if err != nil {
		return nil, err
	}
	for _, path := range broken {
		log.Warn("discarding unreadable journal entry", zap.String("path", path))
		os.Remove(path)
	}

	var rolledBack []string
	var errs []error
	for _, e := range entries {
		if pidAlive(e.PID) {
			continue
		}
		committed := e.State == StateCommitted || (opts.Installed != nil && opts.Installed(e.Version))
		if !committed {
			if err := rollback(e, opts); err != nil {
				errs = append(errs, fmt.Errorf("roll back %s: %w", e.Version, err))
				continue
			}
			rolledBack = append(rolledBack, e.Version)
			log.Info("rolled back interrupted install",
				zap.String("version", e.Version),
				zap.String("state", string(e.State)))
		} else if e.DownloadDir != "" {
			os.RemoveAll(e.DownloadDir)
		}
		if err := e.Delete(dir); err != nil {
			errs = append(errs, err)
		}
	}
	return rolledBack, errors.Join(errs...)
}

func rollback(e *Entry, opts RecoverOptions) error {
	var errs []error
	if e.CreatedInstallDir && e.InstallDir != "" {
		if err := os.RemoveAll(e.InstallDir); err != nil {
			errs = append(errs, err)
		}
	}
	if e.CreatedDataDir && e.DataDir != "" && opts.RemoveData != nil {
		if err := opts.RemoveData(e.DataDir); err != nil {
			errs = append(errs, err)
		}
	}
	if e.DownloadDir != "" {
		if err := os.RemoveAll(e.DownloadDir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
