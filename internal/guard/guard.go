// Package guard provides keyed mutual exclusion for version operations.
//
// A Guard serializes work per key inside the process and, when given a lock
// directory, across processes through exclusive lock files. Lock files record
// the owner's PID so locks left behind by a crashed process are reclaimed.
package guard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const lockSuffix = ".lock"

// UnownedLockAge is how long a lock file without a PID is treated as held.
// Another process may have created it and not yet written its PID.
var UnownedLockAge = 10 * time.Second

// ErrBusy is returned when the key is already held.
var ErrBusy = errors.New("operation already in progress")

// pidAlive is swapped in tests.
var pidAlive = func(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Guard hands out exclusive leases by key.
type Guard struct {
	dir  string
	mu   sync.Mutex
	held map[string]struct{}
}

// New returns a guard. With an empty dir exclusion is process-local.
func New(dir string) *Guard {
	return &Guard{dir: dir, held: make(map[string]struct{})}
}

// Lease is an acquired key. Release is idempotent.
type Lease struct {
	g    *Guard
	key  string
	path string
	once sync.Once
}

// Key returns the leased key.
func (l *Lease) Key() string { return l.key }

// Release frees the key.
func (l *Lease) Release() error {
	var err error
	l.once.Do(func() {
		if l.path != "" {
			if rerr := os.Remove(l.path); rerr != nil && !os.IsNotExist(rerr) {
				err = fmt.Errorf("remove lock file: %w", rerr)
			}
		}
		l.g.mu.Lock()
		delete(l.g.held, l.key)
		l.g.mu.Unlock()
	})
	return err
}

// TryAcquire takes key without waiting. It returns ErrBusy when the key is
// held by this process or by another live process.
func (g *Guard) TryAcquire(key string) (*Lease, error) {
	if key == "" || strings.ContainsAny(key, `/\`) {
		return nil, fmt.Errorf("invalid guard key %q", key)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[key]; ok {
		return nil, ErrBusy
	}

	lease := &Lease{g: g, key: key}
	if g.dir != "" {
		path, err := g.lockFile(key)
		if err != nil {
			return nil, err
		}
		lease.path = path
	}
	g.held[key] = struct{}{}
	return lease, nil
}

// Busy reports whether key is held here or by another live process.
func (g *Guard) Busy(key string) bool {
	g.mu.Lock()
	_, ok := g.held[key]
	g.mu.Unlock()
	if ok {
		return true
	}
	if g.dir == "" {
		return false
	}
	return liveLock(filepath.Join(g.dir, key+lockSuffix))
}

// Active returns every held key, sorted.
func (g *Guard) Active() []string {
	keys := make(map[string]struct{})
	g.mu.Lock()
	for k := range g.held {
		keys[k] = struct{}{}
	}
	g.mu.Unlock()

	if g.dir != "" {
		entries, _ := os.ReadDir(g.dir)
		for _, e := range entries {
			name := e.Name()
			if !strings.HasSuffix(name, lockSuffix) {
				continue
			}
			if liveLock(filepath.Join(g.dir, name)) {
				keys[strings.TrimSuffix(name, lockSuffix)] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Idle reports whether no key is held.
func (g *Guard) Idle() bool {
	return len(g.Active()) == 0
}

// lockFile creates the lock file for key with O_EXCL, reclaiming it once if
// its owner is gone.
func (g *Guard) lockFile(key string) (string, error) {
	if err := os.MkdirAll(g.dir, 0o700); err != nil {
		return "", fmt.Errorf("create lock directory: %w", err)
	}
	path := filepath.Join(g.dir, key+lockSuffix)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if !os.IsExist(err) {
			return "", fmt.Errorf("create lock file: %w", err)
		}
		if liveLock(path) {
			return "", ErrBusy
		}
		os.Remove(path)
		file, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
		if err != nil {
			return "", ErrBusy
		}
	}

	data := fmt.Sprintf("pid=%d\ntimestamp=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(data); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("write lock data: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close lock file: %w", err)
	}
	return path, nil
}

// liveLock reports whether the lock at path belongs to a running process.
// Locks held by this process are tracked in memory, so a lock naming our own
// PID that is not in the held map is stale. A lock with no PID yet falls back
// to its age.
func liveLock(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	pid := lockPID(string(data))
	if pid == 0 {
		return !isLockStale(path)
	}
	if pid == os.Getpid() {
		return false
	}
	return pidAlive(pid)
}

func isLockStale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return time.Since(info.ModTime()) > UnownedLockAge
}

func lockPID(data string) int {
	for _, line := range strings.Split(data, "\n") {
		if v, ok := strings.CutPrefix(line, "pid="); ok {
			pid, err := strconv.Atoi(strings.TrimSpace(v))
			if err == nil {
				return pid
			}
		}
	}
	return 0
}
