package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/go-homedir"

	"github.com/allycraft/allycraft/internal/version"
)

// EnvPrefix prefixes every environment variable the launcher reads.
const EnvPrefix = "ALLYCRAFT"

// Env holds configuration taken from the process environment.
type Env struct {
	// BaseDir holds versions, data, downloads and the manifest. Empty means
	// DefaultBaseDir.
	BaseDir string `envconfig:"BASE_DIR"`
	// CatalogURL serves the JSON list of installable versions.
	CatalogURL string `envconfig:"CATALOG_URL"`
	// PackageURL is the package URL template with {version} and {code}.
	PackageURL string `envconfig:"PACKAGE_URL"`
	// Keyring enables OpenPGP signature checks of downloaded packages.
	Keyring     string `envconfig:"KEYRING"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogDev      bool   `envconfig:"LOG_DEV" default:"false"`
	MinVersion  string `envconfig:"MIN_VERSION" default:"1.16.0"`
	IncludeBeta bool   `envconfig:"INCLUDE_BETA" default:"false"`
}

// LoadEnv reads ALLYCRAFT_* variables, fills defaults and expands paths.
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	if err := env.normalize(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *Env) normalize() error {
	if e.BaseDir == "" {
		dir, err := DefaultBaseDir()
		if err != nil {
			return err
		}
		e.BaseDir = dir
	}
	base, err := ExpandPath(e.BaseDir)
	if err != nil {
		return fmt.Errorf("%s_BASE_DIR: %w", EnvPrefix, err)
	}
	e.BaseDir = base

	if e.Keyring != "" {
		keyring, err := ExpandPath(e.Keyring)
		if err != nil {
			return fmt.Errorf("%s_KEYRING: %w", EnvPrefix, err)
		}
		e.Keyring = keyring
	}

	if _, err := version.Parse(e.MinVersion); err != nil {
		return fmt.Errorf("%s_MIN_VERSION: %w", EnvPrefix, err)
	}
	return nil
}

// Minimum returns the parsed minimum version.
func (e *Env) Minimum() version.Version {
	v, err := version.Parse(e.MinVersion)
	if err != nil {
		return version.DefaultMinimum
	}
	return v
}

// SettingsPath returns <base>/settings.toml.
func (e *Env) SettingsPath() string {
	return filepath.Join(e.BaseDir, SettingsFileName)
}

// DefaultBaseDir returns $XDG_DATA_HOME/allycraft, falling back to
// ~/.local/share/allycraft.
func DefaultBaseDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" && filepath.IsAbs(xdg) {
		return filepath.Join(xdg, "allycraft"), nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "allycraft"), nil
}

// ExpandPath expands a leading ~ and makes path absolute.
func ExpandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}
	return abs, nil
}
