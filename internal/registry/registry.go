package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/allycraft/allycraft/internal/fault"
	"github.com/allycraft/allycraft/internal/version"
)

// ManifestName is the manifest file name inside the base directory.
const ManifestName = "installed_versions.json"

// ErrNotPlayable is returned by Upsert for records that failed validation.
var ErrNotPlayable = errors.New("record is not playable")

var osRename = os.Rename

// Registry maps versions to their installation records.
type Registry struct {
	path string
	log  *zap.Logger

	mu      sync.RWMutex
	records map[version.Version]Record

	// saveMu serializes Save so the manifest is written by one goroutine at a
	// time and snapshots reach disk in the order they were taken.
	saveMu sync.Mutex
}

// New creates an empty registry backed by the manifest at path.
func New(path string, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		path:    path,
		log:     log,
		records: make(map[version.Version]Record),
	}
}

// Path returns the manifest path.
func (r *Registry) Path() string {
	return r.path
}

// Load replaces the in-memory registry with the manifest contents.
// A missing or empty manifest yields an empty registry. On RegistryCorrupt
// the registry is left empty.
func (r *Registry) Load() error {
	data, err := os.ReadFile(r.path)
	if err != nil && !os.IsNotExist(err) {
		r.reset(nil)
		return fault.New(fault.RegistryIOError, "registry.load", "", err)
	}

	records, err := decodeManifest(data)
	if err != nil {
		r.reset(nil)
		return fault.New(fault.RegistryCorrupt, "registry.load", "", err)
	}

	r.reset(records)
	r.log.Debug("registry loaded", zap.String("path", r.path), zap.Int("versions", len(records)))
	return nil
}

func decodeManifest(data []byte) (map[version.Version]Record, error) {
	records := make(map[version.Version]Record)
	if len(bytes.TrimSpace(data)) == 0 {
		return records, nil
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Schema > manifestSchema {
		return nil, fmt.Errorf("manifest schema %d is newer than supported %d", m.Schema, manifestSchema)
	}

	for _, e := range m.Versions {
		rec, err := fromEntry(e)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %q: %w", e.Version, err)
		}
		if _, dup := records[rec.Version()]; dup {
			return nil, fmt.Errorf("manifest lists %s twice", rec.Version())
		}
		records[rec.Version()] = rec
	}
	return records, nil
}

func (r *Registry) reset(records map[version.Version]Record) {
	if records == nil {
		records = make(map[version.Version]Record)
	}
	r.mu.Lock()
	r.records = records
	r.mu.Unlock()
}

// Save writes the whole registry to the manifest, replacing the old file.
func (r *Registry) Save() error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	m := manifest{Schema: manifestSchema, Versions: []manifestEntry{}}
	for _, rec := range r.All() {
		m.Versions = append(m.Versions, toEntry(rec))
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fault.New(fault.RegistryIOError, "registry.save", "", fmt.Errorf("marshal manifest: %w", err))
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fault.New(fault.RegistryIOError, "registry.save", "", fmt.Errorf("create manifest directory: %w", err))
	}

	lock, err := acquireFileLock(r.path + ".lock")
	if err != nil {
		return fault.New(fault.RegistryIOError, "registry.save", "", err)
	}
	defer func() { _ = lock.release() }()

	if err := writeFileAtomic(r.path, data); err != nil {
		return fault.New(fault.RegistryIOError, "registry.save", "", err)
	}

	r.log.Debug("registry saved", zap.String("path", r.path), zap.Int("versions", len(m.Versions)))
	return nil
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp manifest: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp manifest: %w", err)
	}
	if err := osRename(tmpName, path); err != nil {
		return fmt.Errorf("rename manifest: %w", err)
	}
	committed = true

	// the rename is only on disk once the directory entry is flushed
	if df, err := os.Open(dir); err == nil {
		syncErr := df.Sync()
		_ = df.Close()
		if syncErr != nil {
			return fmt.Errorf("sync manifest directory: %w", syncErr)
		}
	}
	return nil
}

// Upsert adds or replaces the record for rec's version.
func (r *Registry) Upsert(rec Record) error {
	if !rec.Playable {
		return ErrNotPlayable
	}
	if rec.Version().IsZero() {
		return fmt.Errorf("record has no version")
	}
	r.mu.Lock()
	r.records[rec.Version()] = rec
	r.mu.Unlock()
	return nil
}

// Remove deletes the record for v and reports whether it existed.
func (r *Registry) Remove(v version.Version) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[v]; !ok {
		return false
	}
	delete(r.records, v)
	return true
}

// Get returns the record for v.
func (r *Registry) Get(v version.Version) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[v]
	return rec, ok
}

// Has reports whether v is registered.
func (r *Registry) Has(v version.Version) bool {
	_, ok := r.Get(v)
	return ok
}

// All returns every record, newest version first.
func (r *Registry) All() []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[j].Version().Less(out[i].Version())
	})
	return out
}

// Len returns the number of registered versions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
