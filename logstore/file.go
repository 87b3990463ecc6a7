package logstore

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/sys"
	"github.com/google/uuid"
	"golang.org/x/exp/mmap"
)

// activeFile is the single file appends go to.
type activeFile struct {
	id     uint64
	path   string
	file   sys.FileHandle
	writer *bufio.Writer
	size   int64 // bytes flushed to the file, header included
}

// createActiveFile creates a new log file and writes its header.
func createActiveFile(dir string, id uint64, session uuid.UUID) (*activeFile, error) {
	path := filepath.Join(dir, core.FormatLogFileName(id))
	file, err := sys.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		return nil, &core.IOError{Op: "create", Path: path, Err: err}
	}

	header := core.NewFileHeader(core.LakeMagicNumber, session)
	if err := binary.Write(file, binary.LittleEndian, &header); err != nil {
		file.Close()
		return nil, &core.IOError{Op: "write", Path: path, Err: fmt.Errorf("failed to write file header: %w", err)}
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, &core.IOError{Op: "sync", Path: path, Err: err}
	}
	if err := sys.SyncDir(dir); err != nil {
		file.Close()
		return nil, &core.IOError{Op: "sync", Path: dir, Err: err}
	}

	return &activeFile{
		id:     id,
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
		size:   core.FileHeaderSize,
	}, nil
}

// write appends data and flushes it to the OS.
func (af *activeFile) write(data []byte, fsync bool) error {
	if af.file == nil {
		return core.ErrClosed
	}
	if _, err := af.writer.Write(data); err != nil {
		return &core.IOError{Op: "write", Path: af.path, Err: err}
	}
	if err := af.writer.Flush(); err != nil {
		return &core.IOError{Op: "write", Path: af.path, Err: err}
	}
	if fsync {
		if err := af.file.Sync(); err != nil {
			return &core.IOError{Op: "sync", Path: af.path, Err: err}
		}
	}
	af.size += int64(len(data))
	return nil
}

// rollback drops anything written past offset by a failed append, so the
// next record starts on a clean boundary.
func (af *activeFile) rollback(offset int64) error {
	af.writer.Reset(af.file)
	if err := af.file.Truncate(offset); err != nil {
		return err
	}
	if _, err := af.file.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	af.size = offset
	return nil
}

func (af *activeFile) sync() error {
	if af.file == nil {
		return nil
	}
	if err := af.writer.Flush(); err != nil {
		return &core.IOError{Op: "write", Path: af.path, Err: err}
	}
	if err := af.file.Sync(); err != nil {
		return &core.IOError{Op: "sync", Path: af.path, Err: err}
	}
	return nil
}

func (af *activeFile) close() error {
	if af.file == nil {
		return nil
	}
	err := af.file.Close()
	af.file = nil
	if err != nil {
		return &core.IOError{Op: "close", Path: af.path, Err: err}
	}
	return nil
}

// sealedFile is a read-only log file. It is memory-mapped on first read.
type sealedFile struct {
	id   uint64
	path string

	mu     sync.Mutex
	reader *mmap.ReaderAt
}

func (sf *sealedFile) readerAt() (*mmap.ReaderAt, error) {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if sf.reader != nil {
		return sf.reader, nil
	}
	r, err := mmap.Open(sf.path)
	if err != nil {
		return nil, &core.IOError{Op: "mmap", Path: sf.path, Err: err}
	}
	sf.reader = r
	return r, nil
}

func (sf *sealedFile) close() error {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if sf.reader == nil {
		return nil
	}
	err := sf.reader.Close()
	sf.reader = nil
	if err != nil {
		return &core.IOError{Op: "munmap", Path: sf.path, Err: err}
	}
	return nil
}

// errBadHeader marks a file whose header is present but not a lake header.
var errBadHeader = errors.New("invalid log file header")

// readHeader decodes and verifies the file header at the start of r. It
// returns io.ErrUnexpectedEOF when r is shorter than a header.
func readHeader(r io.Reader) (core.FileHeader, error) {
	var header core.FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		if errors.Is(err, io.EOF) {
			return header, io.ErrUnexpectedEOF
		}
		return header, err
	}
	if header.Magic != core.LakeMagicNumber {
		return header, fmt.Errorf("%w: magic %x, want %x", errBadHeader, header.Magic, core.LakeMagicNumber)
	}
	if header.Version != core.FormatVersion {
		return header, fmt.Errorf("%w: unsupported version %d", errBadHeader, header.Version)
	}
	return header, nil
}
