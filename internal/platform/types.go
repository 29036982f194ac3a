// Package platform detects the host the game runs on: OS, architecture,
// Linux distribution, kernel, handheld model and the gamescope session. The
// result feeds the launch profile as a read-only Lua table.
//
// Distribution and kernel details come from gopsutil. Detection degrades
// gracefully: a host whose distribution or DMI data cannot be read still
// yields OS and architecture.
package platform

import "context"

// Linux distribution family constants.
const (
	FamilyDebian  = "debian"
	FamilyRHEL    = "rhel"
	FamilyFedora  = "fedora"
	FamilySUSE    = "suse"
	FamilyArch    = "arch" // Arch, Manjaro, SteamOS 3, ChimeraOS
	FamilyUnknown = "unknown"
)

// Handheld device models.
const (
	DeviceROGAlly   = "rog-ally"
	DeviceSteamDeck = "steam-deck"
	DeviceLegionGo  = "legion-go"
)

// Info contains platform detection information.
type Info struct {
	OS            string // "linux", "darwin", "windows"
	Arch          string // "amd64", "arm64" (normalized)
	ArchRaw       string // original GOARCH
	Distro        string // distro ID, e.g. "steamos", "bazzite"
	Family        string // canonical family
	DistroVersion string
	Kernel        string
	Vendor        string // DMI system vendor
	Product       string // DMI product name
	Device        string // one of the Device constants, or ""
	Gamescope     bool   // running inside a gamescope session
}

// IsLinux returns true if the platform is Linux.
func (i *Info) IsLinux() bool {
	return i.OS == "linux"
}

// IsAMD64 returns true if the architecture is amd64.
func (i *Info) IsAMD64() bool {
	return i.Arch == "amd64"
}

// IsARM64 returns true if the architecture is arm64.
func (i *Info) IsARM64() bool {
	return i.Arch == "arm64"
}

// IsHandheld reports whether a known handheld model was detected.
func (i *Info) IsHandheld() bool {
	return i.Device != ""
}

// IsROGAlly reports whether the host is an ASUS ROG Ally.
func (i *Info) IsROGAlly() bool {
	return i.Device == DeviceROGAlly
}

// IsSteamDeck reports whether the host is a Valve Steam Deck.
func (i *Info) IsSteamDeck() bool {
	return i.Device == DeviceSteamDeck
}

// IsSteamOS reports whether the distribution is SteamOS.
func (i *Info) IsSteamOS() bool {
	return i.OS == "linux" && i.Distro == "steamos"
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// Static is a Detector returning a fixed Info.
type Static Info

// Detect returns a copy of s.
func (s Static) Detect(context.Context) (*Info, error) {
	info := Info(s)
	return &info, nil
}
