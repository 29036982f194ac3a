package registry

import (
	"time"

	"github.com/allycraft/allycraft/internal/version"
)

// Record describes one installed version.
type Record struct {
	Descriptor  version.Descriptor
	InstallPath string
	InstalledAt time.Time
	DataPath    string
	// Playable is set by the installer after validation. The registry only
	// ever holds playable records.
	Playable bool
}

// Version is a shorthand for r.Descriptor.Version.
func (r Record) Version() version.Version {
	return r.Descriptor.Version
}

// manifestEntry is the on-disk form of a Record.
type manifestEntry struct {
	Version     string    `json:"version"`
	VersionCode string    `json:"version_code"`
	VersionName string    `json:"version_name,omitempty"`
	Beta        bool      `json:"beta"`
	Size        int64     `json:"size"`
	InstallPath string    `json:"install_path"`
	InstallDate time.Time `json:"install_date"`
	DataPath    string    `json:"data_path"`
}

type manifest struct {
	Schema   int             `json:"schema"`
	Versions []manifestEntry `json:"versions"`
}

const manifestSchema = 1

func toEntry(r Record) manifestEntry {
	return manifestEntry{
		Version:     r.Descriptor.Version.String(),
		VersionCode: r.Descriptor.Code,
		VersionName: r.Descriptor.Name,
		Beta:        r.Descriptor.Beta,
		Size:        r.Descriptor.Size,
		InstallPath: r.InstallPath,
		InstallDate: r.InstalledAt.UTC(),
		DataPath:    r.DataPath,
	}
}

func fromEntry(e manifestEntry) (Record, error) {
	v, err := version.Parse(e.Version)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Descriptor: version.Descriptor{
			Version: v,
			Code:    e.VersionCode,
			Name:    e.VersionName,
			Beta:    e.Beta,
			Size:    e.Size,
		},
		InstallPath: e.InstallPath,
		InstalledAt: e.InstallDate,
		DataPath:    e.DataPath,
		Playable:    true,
	}, nil
}
