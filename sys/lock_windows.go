//go:build windows

package sys

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

func acquireOSFileLock(lockPath string) (func() error, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	h := windows.Handle(f.Fd())
	var ov windows.Overlapped
	err = windows.LockFileEx(h, windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, &ov)
	if err != nil {
		_ = f.Close()
		if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
			return nil, ErrLocked
		}
		return nil, err
	}
	writeOwner(f)

	return func() error {
		unlockErr := windows.UnlockFileEx(h, 0, 1, 0, &ov)
		closeErr := f.Close()
		if unlockErr != nil {
			return unlockErr
		}
		return closeErr
	}, nil
}

// Directories cannot be fsynced on Windows.
func isSyncUnsupported(err error) bool {
	return true
}
