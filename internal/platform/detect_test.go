package platform

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestRealDetector_Detect(t *testing.T) {
	info, err := NewDetector().Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if info.OS != runtime.GOOS {
		t.Errorf("OS = %v, want %v", info.OS, runtime.GOOS)
	}
	if info.Arch != "amd64" && info.Arch != "arm64" {
		t.Errorf("Arch = %v, want amd64 or arm64", info.Arch)
	}
	if info.ArchRaw != runtime.GOARCH {
		t.Errorf("ArchRaw = %v, want %v", info.ArchRaw, runtime.GOARCH)
	}
	if info.Distro != "" && info.Family == "" {
		t.Error("Family should be set whenever Distro is set")
	}
}

func writeDMI(t *testing.T, vendor, product string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sys_vendor"), []byte(vendor+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "product_name"), []byte(product+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestRealDetector_Handheld(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("DMI detection only runs on linux")
	}

	tests := []struct {
		name    string
		vendor  string
		product string
		env     map[string]string
		device  string
		scope   bool
	}{
		{
			name:    "rog ally in gamescope",
			vendor:  "ASUSTeK COMPUTER INC.",
			product: "ROG Ally RC71L_RC71L",
			env:     map[string]string{"XDG_CURRENT_DESKTOP": "gamescope"},
			device:  DeviceROGAlly,
			scope:   true,
		},
		{
			name:    "steam deck oled",
			vendor:  "Valve",
			product: "Galileo",
			env:     map[string]string{"GAMESCOPE_WAYLAND_DISPLAY": "gamescope-0"},
			device:  DeviceSteamDeck,
			scope:   true,
		},
		{
			name:    "desktop",
			vendor:  "Micro-Star International Co., Ltd.",
			product: "MS-7C56",
			env:     map[string]string{"XDG_CURRENT_DESKTOP": "KDE"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &RealDetector{
				dmiDir: writeDMI(t, tt.vendor, tt.product),
				getenv: func(k string) string { return tt.env[k] },
			}
			info, err := d.Detect(context.Background())
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if info.Device != tt.device {
				t.Errorf("Device = %q, want %q", info.Device, tt.device)
			}
			if info.Gamescope != tt.scope {
				t.Errorf("Gamescope = %v, want %v", info.Gamescope, tt.scope)
			}
			if info.Product != tt.product {
				t.Errorf("Product = %q, want %q", info.Product, tt.product)
			}
		})
	}
}

func TestRealDetector_MissingDMI(t *testing.T) {
	d := &RealDetector{dmiDir: filepath.Join(t.TempDir(), "absent")}
	info, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if info.Device != "" || info.Vendor != "" {
		t.Errorf("expected empty DMI fields, got vendor=%q device=%q", info.Vendor, info.Device)
	}
	if info.Gamescope {
		t.Error("Gamescope should be false without getenv")
	}
}

func TestStatic(t *testing.T) {
	s := Static{OS: "linux", Arch: "amd64", Device: DeviceSteamDeck}
	info, err := s.Detect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	info.Device = ""
	again, _ := s.Detect(context.Background())
	if again.Device != DeviceSteamDeck {
		t.Error("Detect must return a copy")
	}
}

func TestInfoPredicates(t *testing.T) {
	ally := &Info{OS: "linux", Arch: "amd64", Distro: "steamos", Device: DeviceROGAlly}
	if !ally.IsLinux() || !ally.IsAMD64() || ally.IsARM64() {
		t.Error("unexpected OS/arch predicates")
	}
	if !ally.IsHandheld() || !ally.IsROGAlly() || ally.IsSteamDeck() {
		t.Error("unexpected device predicates")
	}
	if !ally.IsSteamOS() {
		t.Error("IsSteamOS() = false, want true")
	}

	desktop := &Info{OS: "darwin", Arch: "arm64", Distro: "steamos"}
	if desktop.IsHandheld() || desktop.IsSteamOS() {
		t.Error("non-linux host must not report handheld or SteamOS")
	}
}
