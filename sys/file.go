// Package sys holds the small amount of OS-specific file handling the lake
// needs: a file handle abstraction that tests can substitute, and the
// directory lock.
package sys

import (
	"io"
	"os"
)

// FileHandle is the subset of *os.File the log store uses.
type FileHandle interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.Seeker

	Stat() (os.FileInfo, error)
	Sync() error
	Truncate(size int64) error
	Name() string
}

var _ FileHandle = (*os.File)(nil)

// OpenFileHandler opens a file the way os.OpenFile does.
type OpenFileHandler func(name string, flag int, perm os.FileMode) (FileHandle, error)

// OpenFile is the opener used for log files. Tests replace it to inject
// failures and must restore it afterwards.
var OpenFile OpenFileHandler = func(name string, flag int, perm os.FileMode) (FileHandle, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// SyncDir fsyncs a directory so that newly created entries survive a crash.
// Platforms that cannot open a directory for syncing report nil.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !isSyncUnsupported(err) {
		return err
	}
	return nil
}
