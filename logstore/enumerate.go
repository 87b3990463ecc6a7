package logstore

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/INLOpen/nexuslake/core"
)

// FileInfo describes one log file of a lake directory.
type FileInfo struct {
	ID     uint64
	Path   string
	Size   int64
	Active bool
}

// EnumerateDir lists the log files in dir, ordered by file ID ascending.
// IDs are assigned in creation order, so this is also the order the files
// were written in. Entries that are not regular files named like log files
// are ignored.
func EnumerateDir(dir string) ([]FileInfo, error) {
	return enumerateDir(dir, nil)
}

func enumerateDir(dir string, logger *slog.Logger) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &core.IOError{Op: "readdir", Path: dir, Err: err}
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.Name() == core.LockFileName {
			continue
		}
		if !entry.Type().IsRegular() {
			if logger != nil {
				logger.Debug("Ignoring non-regular entry in lake directory", "name", entry.Name())
			}
			continue
		}
		id, err := core.ParseLogFileName(entry.Name())
		if err != nil {
			if logger != nil {
				logger.Debug("Ignoring file not named like a log file", "name", entry.Name())
			}
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, &core.IOError{Op: "stat", Path: filepath.Join(dir, entry.Name()), Err: err}
		}
		files = append(files, FileInfo{
			ID:   id,
			Path: filepath.Join(dir, entry.Name()),
			Size: info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].ID < files[j].ID
	})
	return files, nil
}

// EnumerateFiles lists the store's log files, ordered by file ID ascending.
// The size reported for the active file is the number of bytes flushed.
// Files placed in the directory after Open are registered as sealed, so
// records found in them can be read through ReadAt.
func (s *Store) EnumerateFiles() ([]FileInfo, error) {
	if s.closed.Load() {
		return nil, core.ErrClosed
	}
	files, err := enumerateDir(s.dir, s.logger)
	if err != nil {
		return nil, err
	}

	s.filesMu.Lock()
	defer s.filesMu.Unlock()
	activeID := s.activeID.Load()
	for i := range files {
		f := &files[i]
		if f.ID == activeID {
			f.Active = true
			f.Size = s.activeSize.Load()
			continue
		}
		if _, ok := s.sealed[f.ID]; ok {
			continue
		}
		s.sealed[f.ID] = &sealedFile{id: f.ID, path: f.Path}
		if f.ID > activeID {
			s.logger.Warn("Registered log file newer than the active file", "file_id", f.ID, "active_file", activeID)
		} else {
			s.logger.Info("Registered log file added after open", "file_id", f.ID, "path", f.Path)
		}
	}
	return files, nil
}
