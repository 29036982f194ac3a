package config

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// SettingsFileName is the settings file inside the base directory.
const SettingsFileName = "settings.toml"

var envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Settings is the content of settings.toml.
type Settings struct {
	// CustomDataPath is the data root chosen by the user, "" for the default.
	CustomDataPath string         `toml:"custom_data_path,omitempty"`
	Launch         LaunchSettings `toml:"launch,omitempty"`
}

// LaunchSettings are applied to every launch.
type LaunchSettings struct {
	// Env is passed to the game before the launch profile is applied.
	Env map[string]string `toml:"env,omitempty"`
}

// Validate checks the settings for values the launcher cannot use.
func (s *Settings) Validate() error {
	if s.CustomDataPath != "" && !filepath.IsAbs(s.CustomDataPath) {
		return fmt.Errorf("custom_data_path must be absolute: %q", s.CustomDataPath)
	}
	for k := range s.Launch.Env {
		if !envKeyPattern.MatchString(k) {
			return fmt.Errorf("launch.env: invalid variable name %q", k)
		}
	}
	return nil
}

// SettingsFile is a settings.toml on disk. All mutations are written back
// immediately with an atomic replace.
type SettingsFile struct {
	path string

	mu       sync.Mutex
	settings Settings
}

// LoadSettings reads path. A missing file yields empty settings; unknown keys
// and invalid values are errors.
func LoadSettings(path string) (*SettingsFile, error) {
	f := &SettingsFile{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	s, err := ParseSettings(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.settings = *s
	return f, nil
}

// ParseSettings decodes and validates settings TOML.
func ParseSettings(data []byte) (*Settings, error) {
	var s Settings
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if s.CustomDataPath != "" {
		expanded, err := ExpandPath(s.CustomDataPath)
		if err != nil {
			return nil, fmt.Errorf("custom_data_path: %w", err)
		}
		s.CustomDataPath = expanded
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Path returns the file location.
func (f *SettingsFile) Path() string {
	return f.path
}

// Settings returns a copy of the current settings.
func (f *SettingsFile) Settings() Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.settings
	s.Launch.Env = maps.Clone(f.settings.Launch.Env)
	return s
}

// CustomDataPath returns the persisted data root, "" for the default.
func (f *SettingsFile) CustomDataPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings.CustomDataPath
}

// LaunchEnv returns a copy of the launch variables.
func (f *SettingsFile) LaunchEnv() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.settings.Launch.Env)
}

// SetCustomDataPath persists the data root. Pass "" to return to the default.
func (f *SettingsFile) SetCustomDataPath(path string) error {
	return f.update(func(s *Settings) error {
		s.CustomDataPath = path
		return nil
	})
}

// SetLaunchEnv adds or replaces a launch variable.
func (f *SettingsFile) SetLaunchEnv(key, value string) error {
	if !envKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid variable name %q", key)
	}
	return f.update(func(s *Settings) error {
		if s.Launch.Env == nil {
			s.Launch.Env = make(map[string]string)
		}
		s.Launch.Env[key] = value
		return nil
	})
}

// UnsetLaunchEnv removes a launch variable.
func (f *SettingsFile) UnsetLaunchEnv(key string) error {
	return f.update(func(s *Settings) error {
		delete(s.Launch.Env, key)
		if len(s.Launch.Env) == 0 {
			s.Launch.Env = nil
		}
		return nil
	})
}

// update applies fn to a copy and commits it only when the write succeeds.
func (f *SettingsFile) update(fn func(*Settings) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := f.settings
	next.Launch.Env = maps.Clone(f.settings.Launch.Env)
	if err := fn(&next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	if err := writeSettings(f.path, &next); err != nil {
		return err
	}
	f.settings = next
	return nil
}

func writeSettings(path string, s *Settings) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.toml")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod settings: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
