package logstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/INLOpen/nexuslake/codec"
	"github.com/INLOpen/nexuslake/core"
)

// DecodeFunc consumes exactly one record from r. It follows the codec.Codec
// Decode contract for the errors it returns.
type DecodeFunc func(r codec.Reader) error

// ScanResult summarizes a sequential scan of one log file.
type ScanResult struct {
	FileID  uint64
	Records int
	// End is the offset just past the last complete record.
	End int64
	// Truncated is set when the file ends partway through a record.
	Truncated bool
}

// ioTrackingReader remembers the first read error that is not io.EOF, so a
// failing disk is not mistaken for a malformed record.
type ioTrackingReader struct {
	r   io.Reader
	err error
}

func (t *ioTrackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}

// countingReader counts the bytes a decoder consumes, which gives the offset
// of the next record.
type countingReader struct {
	src *ioTrackingReader
	br  *bufio.Reader
	n   int64
}

var _ codec.Reader = (*countingReader)(nil)

func newCountingReader(r io.Reader) *countingReader {
	src := &ioTrackingReader{r: r}
	return &countingReader{src: src, br: bufio.NewReader(src)}
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.br.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.br.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

func decodeError(fileID uint64, offset int64, err error) *core.CorruptRecordError {
	return &core.CorruptRecordError{
		FileID:    fileID,
		Offset:    offset,
		Truncated: errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF),
		Err:       err,
	}
}

// ReadAt decodes the record that begins at loc and returns the offset just
// past it. It fails with *core.CorruptRecordError when no well-formed record
// starts there and with *core.IOError when the file cannot be read.
func (s *Store) ReadAt(loc core.Location, decode DecodeFunc) (int64, error) {
	if s.closed.Load() {
		return 0, core.ErrClosed
	}
	if loc.Offset < core.FileHeaderSize {
		return 0, &core.CorruptRecordError{FileID: loc.FileID, Offset: loc.Offset, Err: fmt.Errorf("%w: offset inside file header", codec.ErrMalformed)}
	}

	s.filesMu.RLock()
	defer s.filesMu.RUnlock()

	var (
		ra   io.ReaderAt
		size int64
	)
	if s.active != nil && s.active.id == loc.FileID {
		ra = s.active.file
		size = s.activeSize.Load()
	} else {
		sf, ok := s.sealed[loc.FileID]
		if !ok {
			return 0, &core.IOError{Op: "read", Path: s.pathFor(loc.FileID), Err: os.ErrNotExist}
		}
		r, err := sf.readerAt()
		if err != nil {
			return 0, err
		}
		ra = r
		size = int64(r.Len())
	}

	remaining := size - loc.Offset
	if remaining < 0 {
		remaining = 0
	}
	cr := newCountingReader(io.NewSectionReader(ra, loc.Offset, remaining))
	err := decode(cr)
	if cr.src.err != nil {
		return 0, &core.IOError{Op: "read", Path: s.pathFor(loc.FileID), Err: cr.src.err}
	}
	if err != nil {
		return 0, decodeError(loc.FileID, loc.Offset, err)
	}
	return loc.Offset + cr.n, nil
}

// Scan reads the records of one file in order, from the first record to the
// end of the file, calling fn with the Location of each complete record.
//
// A file that ends partway through a record is reported through
// ScanResult.Truncated and is not an error. Any other decode failure returns
// a *core.CorruptRecordError; the result still describes the records before
// it. An error from fn stops the scan and is returned as is.
func (s *Store) Scan(ctx context.Context, fileID uint64, decode DecodeFunc, fn func(loc core.Location) error) (ScanResult, error) {
	if s.closed.Load() {
		return ScanResult{FileID: fileID}, core.ErrClosed
	}
	path := s.pathFor(fileID)
	size := int64(-1)
	if fileID == s.activeID.Load() {
		size = s.activeSize.Load()
	}
	return scanFile(ctx, path, fileID, size, decode, fn)
}

// ScanFile scans a log file without opening a Store, so a directory held by
// a running lake can still be inspected. It reads up to the file's current
// size and otherwise behaves like Store.Scan.
func ScanFile(ctx context.Context, info FileInfo, decode DecodeFunc, fn func(loc core.Location) error) (ScanResult, error) {
	return scanFile(ctx, info.Path, info.ID, -1, decode, fn)
}

// scanFile scans path up to size bytes, or to its current end when size is
// negative.
func scanFile(ctx context.Context, path string, fileID uint64, size int64, decode DecodeFunc, fn func(loc core.Location) error) (ScanResult, error) {
	result := ScanResult{FileID: fileID}

	f, err := os.Open(path)
	if err != nil {
		return result, &core.IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	if size < 0 {
		stat, err := f.Stat()
		if err != nil {
			return result, &core.IOError{Op: "stat", Path: path, Err: err}
		}
		size = stat.Size()
	}

	cr := newCountingReader(io.NewSectionReader(f, 0, size))
	if _, err := readHeader(cr); err != nil {
		if cr.src.err != nil {
			return result, &core.IOError{Op: "read", Path: path, Err: cr.src.err}
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			result.Truncated = true
			return result, nil
		}
		return result, &core.CorruptRecordError{FileID: fileID, Offset: 0, Err: err}
	}
	result.End = cr.n

	for {
		if result.Records%256 == 0 {
			if err := ctx.Err(); err != nil {
				return result, err
			}
		}

		start := cr.n
		err := decode(cr)
		if cr.src.err != nil {
			return result, &core.IOError{Op: "read", Path: path, Err: cr.src.err}
		}
		if err != nil {
			if err == io.EOF && cr.n == start {
				return result, nil
			}
			corrupt := decodeError(fileID, start, err)
			if corrupt.Truncated {
				result.Truncated = true
				return result, nil
			}
			return result, corrupt
		}

		result.Records++
		result.End = cr.n
		if err := fn(core.Location{FileID: fileID, Offset: start}); err != nil {
			return result, err
		}
	}
}
