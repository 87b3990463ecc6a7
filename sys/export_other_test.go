//go:build !unix && !windows

package sys

func errUnsupportedForTest() error { return ErrOSFileLockNotSupported }
