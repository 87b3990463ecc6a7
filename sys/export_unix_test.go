//go:build unix || windows

package sys

import "errors"

// errUnsupportedForTest never matches on platforms with locking support.
func errUnsupportedForTest() error { return errors.New("unreachable") }
