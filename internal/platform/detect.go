package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
)

// DefaultDMIDir is where Linux exposes firmware identification.
const DefaultDMIDir = "/sys/class/dmi/id"

// RealDetector implements Detector against the running host.
type RealDetector struct {
	dmiDir string
	getenv func(string) string
}

// NewDetector creates a detector reading DMI data from DefaultDMIDir.
func NewDetector() Detector {
	return &RealDetector{dmiDir: DefaultDMIDir, getenv: os.Getenv}
}

// Detect returns platform information. OS and architecture come from the Go
// runtime; distribution and kernel from gopsutil; the handheld model from DMI.
// Distribution or DMI failures leave those fields empty. Only cancellation
// and an unsupported architecture are errors.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:      runtime.GOOS,
		ArchRaw: runtime.GOARCH,
	}

	arch, err := normalizeArch(runtime.GOARCH)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}
	info.Arch = arch

	if runtime.GOOS != "linux" {
		return info, nil
	}

	distro, family, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
	} else if distro = normalize(distro); distro != "" {
		info.Distro = distro
		info.Family = mapFamily(family, distro)
		info.DistroVersion = normalize(version)
	}

	if kernel, err := host.KernelVersionWithContext(ctx); err == nil {
		info.Kernel = strings.TrimSpace(kernel)
	}

	info.Vendor = d.readDMI("sys_vendor")
	info.Product = d.readDMI("product_name")
	info.Device = classifyDevice(info.Vendor, info.Product)
	info.Gamescope = d.inGamescope()

	return info, nil
}

// readDMI reads one DMI attribute. gopsutil does not expose product
// identification, so the sysfs file is read directly.
func (d *RealDetector) readDMI(name string) string {
	if d.dmiDir == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(d.dmiDir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (d *RealDetector) inGamescope() bool {
	if d.getenv == nil {
		return false
	}
	if d.getenv("GAMESCOPE_WAYLAND_DISPLAY") != "" {
		return true
	}
	return strings.EqualFold(d.getenv("XDG_CURRENT_DESKTOP"), "gamescope")
}
