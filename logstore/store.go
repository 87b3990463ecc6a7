// Package logstore manages the append-only log files of a lake directory.
package logstore

import (
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/sys"
	"github.com/google/uuid"
)

// SyncMode defines when appended records are fsynced.
type SyncMode string

const (
	SyncAlways SyncMode = "always" // fsync before every Append returns
	SyncNone   SyncMode = "none"   // flush to the OS only; fsync on Rotate, Sync and Close
)

// ErrLocked is returned by Open when another process holds the directory.
var ErrLocked = sys.ErrLocked

// Options holds configuration for a Store.
type Options struct {
	Dir         string
	MaxFileSize int64
	SyncMode    SyncMode
	// SessionID is written into the header of every file this Store creates.
	SessionID uuid.UUID
	Logger    *slog.Logger

	BytesWritten   *expvar.Int
	RecordsWritten *expvar.Int

	// OnRotate is called after the active file changes, with the append lock
	// held. It must not call back into the Store.
	OnRotate func(oldID, newID uint64)
}

// Store is a directory of log files with exactly one active file. Appends are
// serialized; reads run concurrently with appends and with each other.
type Store struct {
	dir    string
	opts   Options
	logger *slog.Logger
	lock   *sys.DirLock

	appendMu sync.Mutex
	active   *activeFile

	// filesMu guards the file set. Readers of the active file hold it for
	// reading so rotation cannot close the handle under them.
	filesMu sync.RWMutex
	sealed  map[uint64]*sealedFile

	activeID   atomic.Uint64
	activeSize atomic.Int64
	closed     atomic.Bool
}

// Open creates dir if needed, locks it, discovers existing log files and
// selects the active file. A newest file that holds no records is reused;
// otherwise a new file is created and every existing file is sealed.
func Open(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("logstore: directory is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "LogStore_default")
	} else {
		opts.Logger = opts.Logger.With("component", "LogStore")
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = core.DefaultMaxFileSize
	}
	if opts.SyncMode == "" {
		opts.SyncMode = SyncAlways
	}
	if opts.SessionID == uuid.Nil {
		opts.SessionID = uuid.New()
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, &core.IOError{Op: "mkdir", Path: opts.Dir, Err: err}
	}
	lock, err := sys.LockDir(opts.Dir, core.LockFileName)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dir:    opts.Dir,
		opts:   opts,
		logger: opts.Logger,
		lock:   lock,
		sealed: make(map[uint64]*sealedFile),
	}

	files, err := enumerateDir(opts.Dir, opts.Logger)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	for _, f := range files {
		s.sealed[f.ID] = &sealedFile{id: f.ID, path: f.Path}
	}

	if err := s.openForAppend(files); err != nil {
		s.closeSealed()
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to open log store for appending: %w", err)
	}

	s.logger.Info("Log store opened", "dir", s.dir, "files", len(files), "active_file", s.activeID.Load(), "sync_mode", opts.SyncMode)
	return s, nil
}

// openForAppend reuses the newest file when it holds nothing past the header
// and rotates to a fresh file otherwise.
func (s *Store) openForAppend(files []FileInfo) error {
	if len(files) == 0 {
		return s.rotateLocked()
	}
	last := files[len(files)-1]
	if last.Size > core.FileHeaderSize {
		return s.rotateLocked()
	}

	// Header-only (or shorter) file: rewrite it from scratch.
	if err := os.Remove(last.Path); err != nil {
		return &core.IOError{Op: "remove", Path: last.Path, Err: err}
	}
	delete(s.sealed, last.ID)
	af, err := createActiveFile(s.dir, last.ID, s.opts.SessionID)
	if err != nil {
		return err
	}
	s.setActive(af)
	s.logger.Debug("Reusing empty log file", "file_id", last.ID, "path", af.path)
	return nil
}

// Append writes one encoded record to the active file and returns the
// Location at which it begins. The record is flushed (and fsynced in
// SyncAlways mode) before Append returns. A record that does not fit in the
// remaining space of a non-empty active file goes to a new file.
func (s *Store) Append(data []byte) (core.Location, error) {
	if s.closed.Load() {
		return core.Location{}, core.ErrClosed
	}
	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	if s.active == nil {
		return core.Location{}, core.ErrClosed
	}

	if s.active.size > core.FileHeaderSize && s.active.size+int64(len(data)) > s.opts.MaxFileSize {
		if err := s.rotateLocked(); err != nil {
			return core.Location{}, err
		}
	}

	af := s.active
	offset := af.size
	if err := af.write(data, s.opts.SyncMode == SyncAlways); err != nil {
		if rbErr := af.rollback(offset); rbErr != nil {
			s.logger.Error("Failed to roll back partial append", "file_id", af.id, "offset", offset, "error", rbErr)
		}
		return core.Location{}, err
	}
	s.activeSize.Store(af.size)

	if s.opts.BytesWritten != nil {
		s.opts.BytesWritten.Add(int64(len(data)))
	}
	if s.opts.RecordsWritten != nil {
		s.opts.RecordsWritten.Add(1)
	}
	return core.Location{FileID: af.id, Offset: offset}, nil
}

// Rotate seals the active file and starts a new one. Rotating a file that
// holds no records is a no-op.
func (s *Store) Rotate() error {
	if s.closed.Load() {
		return core.ErrClosed
	}
	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	if s.active == nil {
		return core.ErrClosed
	}
	if s.active.size <= core.FileHeaderSize {
		return nil
	}
	return s.rotateLocked()
}

// rotateLocked creates the next file and makes it active. The new ID is past
// every file on disk, including files placed there after Open. Must be
// called with appendMu held (or before the Store is shared).
func (s *Store) rotateLocked() error {
	onDisk, err := enumerateDir(s.dir, nil)
	if err != nil {
		return err
	}
	nextID := uint64(1)
	for _, f := range onDisk {
		if f.ID >= nextID {
			nextID = f.ID + 1
		}
	}
	s.filesMu.RLock()
	for id := range s.sealed {
		if id >= nextID {
			nextID = id + 1
		}
	}
	s.filesMu.RUnlock()
	if s.active != nil && s.active.id >= nextID {
		nextID = s.active.id + 1
	}

	next, err := createActiveFile(s.dir, nextID, s.opts.SessionID)
	if err != nil {
		return err
	}

	old := s.active
	if old != nil {
		if err := old.sync(); err != nil {
			s.logger.Error("Failed to sync log file during rotation", "file_id", old.id, "error", err)
		}
	}

	s.filesMu.Lock()
	if old != nil {
		if err := old.close(); err != nil {
			s.logger.Error("Failed to close log file during rotation", "path", old.path, "error", err)
		}
		s.sealed[old.id] = &sealedFile{id: old.id, path: old.path}
	}
	s.setActive(next)
	s.filesMu.Unlock()

	s.logger.Info("Rotated to new log file", "file_id", next.id, "path", next.path)
	if old != nil && s.opts.OnRotate != nil {
		s.opts.OnRotate(old.id, next.id)
	}
	return nil
}

func (s *Store) setActive(af *activeFile) {
	s.active = af
	s.activeID.Store(af.id)
	s.activeSize.Store(af.size)
}

// Sync flushes and fsyncs the active file.
func (s *Store) Sync() error {
	if s.closed.Load() {
		return core.ErrClosed
	}
	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	if s.active == nil {
		return core.ErrClosed
	}
	return s.active.sync()
}

// Close syncs and closes the active file, unmaps sealed files and releases
// the directory lock. Closing twice is a no-op.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	var errs []error
	s.filesMu.Lock()
	if s.active != nil {
		if err := s.active.sync(); err != nil {
			errs = append(errs, err)
		}
		if err := s.active.close(); err != nil {
			errs = append(errs, err)
		}
		s.active = nil
	}
	s.filesMu.Unlock()
	if err := s.closeSealed(); err != nil {
		errs = append(errs, err)
	}
	if err := s.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		s.logger.Error("Errors while closing log store", "dir", s.dir, "error", errors.Join(errs...))
	} else {
		s.logger.Info("Log store closed", "dir", s.dir)
	}
	return errors.Join(errs...)
}

func (s *Store) closeSealed() error {
	s.filesMu.Lock()
	defer s.filesMu.Unlock()
	var errs []error
	for _, sf := range s.sealed {
		if err := sf.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dir returns the directory of the store.
func (s *Store) Dir() string { return s.dir }

// ActiveFileID returns the ID of the file appends currently go to.
func (s *Store) ActiveFileID() uint64 { return s.activeID.Load() }

// SessionID returns the session written into new file headers.
func (s *Store) SessionID() uuid.UUID { return s.opts.SessionID }

func (s *Store) pathFor(id uint64) string {
	return filepath.Join(s.dir, core.FormatLogFileName(id))
}
