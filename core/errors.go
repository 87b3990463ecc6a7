package core

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed lake or log store.
var ErrClosed = errors.New("lake is closed")

// IOError reports a file that could not be opened, read, written or synced.
type IOError struct {
	Op   string // e.g., "open", "read", "write", "sync"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// CorruptRecordError reports that no well-formed record could be decoded at
// a location. Truncated is set when the record ran past the end of the file,
// which is what a partially written tail looks like.
type CorruptRecordError struct {
	FileID    uint64
	Offset    int64
	Truncated bool
	Err       error
}

func (e *CorruptRecordError) Error() string {
	kind := "corrupt record"
	if e.Truncated {
		kind = "truncated record"
	}
	return fmt.Sprintf("%s in file %d at offset %d: %v", kind, e.FileID, e.Offset, e.Err)
}

func (e *CorruptRecordError) Unwrap() error { return e.Err }

// UnsupportedTypeError reports a configuration value naming an unknown type.
type UnsupportedTypeError struct {
	Message string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported type value: %s", e.Message)
}

// IsIOFailure checks if an error (or any error in its chain) is an IOError.
func IsIOFailure(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}

// IsCorruptRecord checks if an error (or any error in its chain) is a CorruptRecordError.
func IsCorruptRecord(err error) bool {
	var corrupt *CorruptRecordError
	return errors.As(err, &corrupt)
}

// IsTruncatedTail reports whether err is a CorruptRecordError caused by a
// record cut short at the end of its file.
func IsTruncatedTail(err error) bool {
	var corrupt *CorruptRecordError
	return errors.As(err, &corrupt) && corrupt.Truncated
}

func IsUnsupportedError(err error) bool {
	var unsupportedError *UnsupportedTypeError
	return errors.As(err, &unsupportedError)
}
