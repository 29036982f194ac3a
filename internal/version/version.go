package version

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a semantic version such as "1.21.0". The zero value is invalid.
type Version struct {
	canonical string // "v1.21.0"
}

// Parse parses a version string with or without a leading "v".
// Missing minor or patch components are filled with zero.
func Parse(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Version{}, fmt.Errorf("empty version")
	}
	if !strings.HasPrefix(raw, "v") {
		raw = "v" + raw
	}
	if !semver.IsValid(raw) {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	if semver.Build(raw) != "" {
		return Version{}, fmt.Errorf("build metadata not allowed in version %q", s)
	}
	return Version{canonical: semver.Canonical(raw)}, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version without the "v" prefix.
func (v Version) String() string {
	return strings.TrimPrefix(v.canonical, "v")
}

// IsZero reports whether v is the zero Version.
func (v Version) IsZero() bool {
	return v.canonical == ""
}

// Compare returns -1, 0 or +1.
func (v Version) Compare(o Version) int {
	return semver.Compare(v.canonical, o.canonical)
}

// Less reports whether v orders before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// IsPrerelease reports whether v carries a prerelease suffix ("1.21.0-beta.2").
func (v Version) IsPrerelease() bool {
	return semver.Prerelease(v.canonical) != ""
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Descriptor describes one installable package. It is a value type and is
// never modified after the package source returns it.
type Descriptor struct {
	Version Version `json:"version"`
	Code    string  `json:"version_code"` // opaque to this module
	Name    string  `json:"version_name"` // human readable, e.g. "1.21.0 (Beta)"
	Beta    bool    `json:"beta"`
	Size    int64   `json:"size"` // declared package size in bytes
	SHA256  string  `json:"sha256,omitempty"`
}

// RequiredSpace returns the free space an install of d needs: the archive plus
// its extracted contents.
func (d Descriptor) RequiredSpace() int64 {
	return 2 * d.Size
}

// DisplayName returns Name, falling back to the version string.
func (d Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Version.String()
}

// Validate checks the fields an install depends on.
func (d Descriptor) Validate() error {
	if d.Version.IsZero() {
		return fmt.Errorf("descriptor has no version")
	}
	if d.Size <= 0 {
		return fmt.Errorf("descriptor %s has invalid size %d", d.Version, d.Size)
	}
	return nil
}

// UnmarshalJSON rejects descriptors without a version.
func (d *Descriptor) UnmarshalJSON(b []byte) error {
	type plain Descriptor
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	if p.Version.IsZero() {
		return fmt.Errorf("descriptor missing version")
	}
	*d = Descriptor(p)
	return nil
}
