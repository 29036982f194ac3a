package datapath

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/disk"
)

// SpaceProbe reports free bytes on the filesystem holding path.
type SpaceProbe interface {
	Free(ctx context.Context, path string) (uint64, error)
}

// DiskProbe implements SpaceProbe with gopsutil.
type DiskProbe struct{}

// Free returns the bytes available to unprivileged users at path's mount point.
// When path does not exist yet the nearest existing ancestor is queried.
func (DiskProbe) Free(ctx context.Context, path string) (uint64, error) {
	target, err := nearestExisting(path)
	if err != nil {
		return 0, err
	}
	usage, err := disk.UsageWithContext(ctx, target)
	if err != nil {
		return 0, fmt.Errorf("query disk usage for %s: %w", target, err)
	}
	return usage.Free, nil
}

func nearestExisting(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	for {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing ancestor for %s", path)
		}
		p = parent
	}
}

// DirSize returns the total size of regular files under path. Symlinks are
// not followed, so shared pool content is not counted.
func DirSize(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	return total, err
}
