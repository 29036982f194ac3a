package platform

import (
	"fmt"
	"strings"
)

// familyMap maps distribution and family names to canonical families.
var familyMap = map[string]string{
	"debian":    FamilyDebian,
	"ubuntu":    FamilyDebian,
	"pop":       FamilyDebian,
	"rhel":      FamilyRHEL,
	"centos":    FamilyRHEL,
	"rocky":     FamilyRHEL,
	"fedora":    FamilyFedora,
	"bazzite":   FamilyFedora,
	"nobara":    FamilyFedora,
	"suse":      FamilySUSE,
	"opensuse":  FamilySUSE,
	"arch":      FamilyArch,
	"manjaro":   FamilyArch,
	"steamos":   FamilyArch,
	"holo":      FamilyArch,
	"chimeraos": FamilyArch,
}

// normalizeArch converts GOARCH values to normalized architecture names.
func normalizeArch(arch string) (string, error) {
	switch arch {
	case "amd64", "x86_64":
		return "amd64", nil
	case "arm64", "aarch64":
		return "arm64", nil
	default:
		return "", fmt.Errorf("unsupported architecture: %s", arch)
	}
}

// normalize lowercases and trims an identifier.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// mapFamily maps a family string, falling back to the distro ID.
func mapFamily(family, distro string) string {
	if canonical, ok := familyMap[normalize(family)]; ok {
		return canonical
	}
	if canonical, ok := familyMap[normalize(distro)]; ok {
		return canonical
	}
	return FamilyUnknown
}

// classifyDevice recognises handheld models from DMI vendor and product.
func classifyDevice(vendor, product string) string {
	v := normalize(vendor)
	p := normalize(product)
	switch {
	case strings.Contains(v, "asus") && (strings.Contains(p, "rog ally") || strings.HasPrefix(p, "rc71l") || strings.HasPrefix(p, "rc72l")):
		return DeviceROGAlly
	case strings.Contains(v, "valve") && (p == "jupiter" || p == "galileo"):
		return DeviceSteamDeck
	case strings.Contains(v, "lenovo") && (strings.HasPrefix(p, "83e1") || strings.Contains(p, "legion go")):
		return DeviceLegionGo
	}
	return ""
}
