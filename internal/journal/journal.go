// Package journal records in-flight installs on disk so that work left behind
// by a crash can be rolled back on the next start.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	schemaVersion = 1
	filePrefix    = "txn-install-"
	fileSuffix    = ".json"
)

// State is the last completed install step.
type State string

const (
	StateStarted    State = "started"
	StateDownloaded State = "downloaded"
	StateExtracted  State = "extracted"
	StateLinked     State = "linked"
	StateCommitted  State = "committed"
)

// Entry is the journal record of one install.
type Entry struct {
	Schema            int       `json:"schema"`
	ID                string    `json:"id"`
	PID               int       `json:"pid"`
	Version           string    `json:"version"`
	InstallDir        string    `json:"install_dir"`
	DataDir           string    `json:"data_dir"`
	DownloadDir       string    `json:"download_dir"`
	CreatedInstallDir bool      `json:"created_install_dir"`
	CreatedDataDir    bool      `json:"created_data_dir"`
	State             State     `json:"state"`
	Timestamp         time.Time `json:"timestamp"`
	LastError         string    `json:"last_error,omitempty"`
}

// New creates a journal entry in the started state.
func New(version, installDir, dataDir, downloadDir string) *Entry {
	return &Entry{
		Schema:      schemaVersion,
		ID:          uuid.New().String(),
		PID:         os.Getpid(),
		Version:     version,
		InstallDir:  installDir,
		DataDir:     dataDir,
		DownloadDir: downloadDir,
		State:       StateStarted,
		Timestamp:   time.Now().UTC(),
	}
}

func (e *Entry) filename() string {
	return filePrefix + e.ID + fileSuffix
}

// Advance records a completed step.
func (e *Entry) Advance(state State) {
	e.State = state
	e.Timestamp = time.Now().UTC()
}

// Fail records err against the entry.
func (e *Entry) Fail(err error) {
	if err != nil {
		e.LastError = err.Error()
	}
}

// Save writes the entry to dir with a write-then-rename.
func (e *Entry) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}

	finalPath := filepath.Join(dir, e.filename())
	tmpPath := finalPath + ".tmp"

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temporary journal file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename journal file: %w", err)
	}

	df, err := os.Open(dir)
	if err == nil {
		syncErr := df.Sync()
		df.Close()
		if syncErr != nil {
			return fmt.Errorf("sync journal directory: %w", syncErr)
		}
	}
	return nil
}

// Delete removes the entry's file from dir.
func (e *Entry) Delete(dir string) error {
	err := os.Remove(filepath.Join(dir, e.filename()))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove journal entry: %w", err)
	}
	return nil
}

// Load reads one entry.
func Load(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read journal file: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal journal file: %w", err)
	}
	if e.ID == "" || e.Version == "" {
		return nil, fmt.Errorf("journal file %s is incomplete", filepath.Base(path))
	}
	return &e, nil
}

// List returns every readable entry in dir, oldest first, and the paths of
// files that could not be parsed.
func List(dir string) ([]*Entry, []string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read journal directory: %w", err)
	}

	var entries []*Entry
	var broken []string
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		path := filepath.Join(dir, name)
		e, err := Load(path)
		if err != nil {
			broken = append(broken, path)
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, broken, nil
}
