package registry

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ErrLockTimeout is returned when another process holds the manifest lock
// for longer than lockWaitTimeout.
var ErrLockTimeout = errors.New("timed out waiting for manifest lock")

var (
	flockFn         = unix.Flock
	lockWaitTimeout = 10 * time.Second
	lockPollEvery   = 50 * time.Millisecond
)

type fileLock struct {
	file *os.File
}

// acquireFileLock opens or creates path and takes an exclusive advisory lock.
func acquireFileLock(path string) (*fileLock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open manifest lock %s: %w", path, err)
	}

	deadline := time.Now().Add(lockWaitTimeout)
	for {
		err := flockFn(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &fileLock{file: file}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EAGAIN) {
			_ = file.Close()
			return nil, fmt.Errorf("lock manifest %s: %w", path, err)
		}
		if time.Now().After(deadline) {
			_ = file.Close()
			return nil, ErrLockTimeout
		}
		time.Sleep(lockPollEvery)
	}
}

func (l *fileLock) release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := flockFn(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}
