package sys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrLocked is returned when another process already holds a directory lock.
var ErrLocked = errors.New("directory is locked by another process")

// DirLock is an exclusive, advisory lock on a directory. It is held on a lock
// file inside the directory for as long as the owning process keeps it.
type DirLock struct {
	path    string
	release func() error
}

// LockDir acquires the lock file name inside dir without waiting. It fails
// with an error wrapping ErrLocked when the lock is already held, including
// by another DirLock in the same process.
func LockDir(dir, name string) (*DirLock, error) {
	path := filepath.Join(dir, name)
	release, err := acquireOSFileLock(path)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return &DirLock{path: path, release: release}, nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string { return l.path }

// Unlock releases the lock. Calling it more than once is a no-op.
func (l *DirLock) Unlock() error {
	if l == nil || l.release == nil {
		return nil
	}
	release := l.release
	l.release = nil
	return release()
}

// writeOwner records the holder's pid in the lock file, for operators only.
func writeOwner(f *os.File) {
	if err := f.Truncate(0); err != nil {
		return
	}
	_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
}
