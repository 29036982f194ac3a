package game

import (
	"context"
	"errors"
	"os"

	"github.com/allycraft/allycraft/internal/datapath"
	"github.com/allycraft/allycraft/internal/fault"
	"github.com/allycraft/allycraft/internal/version"
)

// StorageInfo describes disk usage of the launcher.
type StorageInfo struct {
	DataPath string
	// Free is the space available at DataPath.
	Free     uint64
	Versions []VersionUsage
}

// VersionUsage is the on-disk size of one installed version. Shared pool
// content is not included.
type VersionUsage struct {
	Version     version.Version
	InstallPath string
	InstallSize int64
	DataPath    string
	DataSize    int64
}

// Total returns the install and data size combined.
func (u VersionUsage) Total() int64 {
	return u.InstallSize + u.DataSize
}

// StorageInfo reports free space at the data root and per-version usage.
// Missing directories count as empty.
func (m *Manager) StorageInfo(ctx context.Context) (StorageInfo, error) {
	info := StorageInfo{DataPath: m.paths.CurrentDataPath()}
	free, err := m.paths.AvailableSpace(ctx, info.DataPath)
	if err != nil {
		return info, fault.New(fault.PathError, "storage", "", err)
	}
	info.Free = free

	for _, rec := range m.registry.All() {
		if err := ctx.Err(); err != nil {
			return info, err
		}
		usage := VersionUsage{
			Version:     rec.Version(),
			InstallPath: rec.InstallPath,
			DataPath:    rec.DataPath,
		}
		if usage.InstallSize, err = dirSize(rec.InstallPath); err != nil {
			return info, fault.New(fault.PathError, "storage", rec.Version().String(), err)
		}
		if usage.DataSize, err = dirSize(rec.DataPath); err != nil {
			return info, fault.New(fault.PathError, "storage", rec.Version().String(), err)
		}
		info.Versions = append(info.Versions, usage)
	}
	return info, nil
}

func dirSize(path string) (int64, error) {
	if path == "" {
		return 0, nil
	}
	size, err := datapath.DirSize(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	return size, err
}
