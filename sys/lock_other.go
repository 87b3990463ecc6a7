//go:build !unix && !windows

package sys

import "errors"

var ErrOSFileLockNotSupported = errors.New("OS file locking not supported on this platform")

func acquireOSFileLock(lockPath string) (func() error, error) {
	return nil, ErrOSFileLockNotSupported
}

func isSyncUnsupported(err error) bool {
	return true
}
