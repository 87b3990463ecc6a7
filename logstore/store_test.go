package logstore

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/INLOpen/nexuslake/codec"
	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCodec = codec.NewFramed[string](codec.JSONMarshaler[string]{})

func encode(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, testCodec.Encode(&buf, s))
	return buf.Bytes()
}

func decodeInto(out *string) DecodeFunc {
	return func(r codec.Reader) error {
		v, err := testCodec.Decode(r)
		if err != nil {
			return err
		}
		*out = v
		return nil
	}
}

func testOptions(dir string) Options {
	return Options{
		Dir:    dir,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func openTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AppendAndReadAt(t *testing.T) {
	s := openTestStore(t, testOptions(t.TempDir()))

	values := []string{"alpha", "bravo", "charlie"}
	locs := make([]core.Location, len(values))
	for i, v := range values {
		loc, err := s.Append(encode(t, v))
		require.NoError(t, err)
		locs[i] = loc
	}

	assert.Equal(t, core.FileHeaderSize, locs[0].Offset, "first record starts after the header")
	for i, v := range values {
		var got string
		next, err := s.ReadAt(locs[i], decodeInto(&got))
		require.NoError(t, err)
		assert.Equal(t, v, got)
		if i+1 < len(locs) {
			assert.Equal(t, locs[i+1].Offset, next)
		}
	}
}

func TestStore_ReadAtErrors(t *testing.T) {
	s := openTestStore(t, testOptions(t.TempDir()))
	loc, err := s.Append(encode(t, "value"))
	require.NoError(t, err)

	var got string

	t.Run("offset inside header", func(t *testing.T) {
		_, err := s.ReadAt(core.Location{FileID: loc.FileID, Offset: 3}, decodeInto(&got))
		assert.True(t, core.IsCorruptRecord(err))
	})

	t.Run("past end of file", func(t *testing.T) {
		_, err := s.ReadAt(core.Location{FileID: loc.FileID, Offset: loc.Offset + 1000}, decodeInto(&got))
		assert.True(t, core.IsTruncatedTail(err))
	})

	t.Run("mid record", func(t *testing.T) {
		_, err := s.ReadAt(core.Location{FileID: loc.FileID, Offset: loc.Offset + 2}, decodeInto(&got))
		assert.True(t, core.IsCorruptRecord(err))
	})

	t.Run("unknown file", func(t *testing.T) {
		_, err := s.ReadAt(core.Location{FileID: 999, Offset: core.FileHeaderSize}, decodeInto(&got))
		assert.True(t, core.IsIOFailure(err))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestStore_RotationBySize(t *testing.T) {
	opts := testOptions(t.TempDir())
	record := encode(t, "0123456789")
	opts.MaxFileSize = core.FileHeaderSize + int64(len(record))*2

	var rotations [][2]uint64
	opts.OnRotate = func(oldID, newID uint64) { rotations = append(rotations, [2]uint64{oldID, newID}) }
	s := openTestStore(t, opts)

	var locs []core.Location
	for i := 0; i < 5; i++ {
		loc, err := s.Append(record)
		require.NoError(t, err)
		locs = append(locs, loc)
	}

	assert.Equal(t, uint64(1), locs[0].FileID)
	assert.Equal(t, uint64(1), locs[1].FileID)
	assert.Equal(t, uint64(2), locs[2].FileID)
	assert.Equal(t, uint64(3), locs[4].FileID)
	assert.Equal(t, [][2]uint64{{1, 2}, {2, 3}}, rotations)

	// Sealed files are read through the mmap path.
	var got string
	_, err := s.ReadAt(locs[0], decodeInto(&got))
	require.NoError(t, err)
	assert.Equal(t, "0123456789", got)
}

func TestStore_OversizedRecordGetsItsOwnFile(t *testing.T) {
	opts := testOptions(t.TempDir())
	opts.MaxFileSize = core.FileHeaderSize + 8
	s := openTestStore(t, opts)

	first, err := s.Append(encode(t, "a record well over the limit"))
	require.NoError(t, err)
	second, err := s.Append(encode(t, "another big one"))
	require.NoError(t, err)
	assert.Equal(t, core.FileHeaderSize, first.Offset)
	assert.Equal(t, core.FileHeaderSize, second.Offset)
	assert.NotEqual(t, first.FileID, second.FileID)
}

func TestStore_ManualRotate(t *testing.T) {
	s := openTestStore(t, testOptions(t.TempDir()))

	require.NoError(t, s.Rotate(), "rotating an empty active file is a no-op")
	assert.Equal(t, uint64(1), s.ActiveFileID())

	_, err := s.Append(encode(t, "x"))
	require.NoError(t, err)
	require.NoError(t, s.Rotate())
	assert.Equal(t, uint64(2), s.ActiveFileID())
}

func TestStore_ReopenSelectsActiveFile(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(testOptions(dir))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Header-only newest file is reused.
	s, err = Open(testOptions(dir))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), s.ActiveFileID())
	loc, err := s.Append(encode(t, "kept"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// A newest file with records is sealed and a new one started.
	s = openTestStore(t, testOptions(dir))
	assert.Equal(t, uint64(2), s.ActiveFileID())

	var got string
	_, err = s.ReadAt(loc, decodeInto(&got))
	require.NoError(t, err)
	assert.Equal(t, "kept", got)
}

func TestStore_DirectoryLock(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, testOptions(dir))

	_, err := Open(testOptions(dir))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, s.Close())
	again, err := Open(testOptions(dir))
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestStore_Closed(t *testing.T) {
	s, err := Open(testOptions(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Append([]byte("x"))
	assert.ErrorIs(t, err, core.ErrClosed)
	_, err = s.ReadAt(core.Location{FileID: 1, Offset: core.FileHeaderSize}, func(codec.Reader) error { return nil })
	assert.ErrorIs(t, err, core.ErrClosed)
	assert.ErrorIs(t, s.Sync(), core.ErrClosed)
	assert.ErrorIs(t, s.Rotate(), core.ErrClosed)
	_, err = s.EnumerateFiles()
	assert.ErrorIs(t, err, core.ErrClosed)
}

func TestStore_Metrics(t *testing.T) {
	opts := testOptions(t.TempDir())
	opts.BytesWritten = new(expvar.Int)
	opts.RecordsWritten = new(expvar.Int)
	s := openTestStore(t, opts)

	record := encode(t, "metric")
	_, err := s.Append(record)
	require.NoError(t, err)
	_, err = s.Append(record)
	require.NoError(t, err)

	assert.Equal(t, int64(2*len(record)), opts.BytesWritten.Value())
	assert.Equal(t, int64(2), opts.RecordsWritten.Value())
}

type failingFile struct {
	sys.FileHandle
	failWrites bool
}

func (f *failingFile) Write(p []byte) (int, error) {
	if f.failWrites {
		// Simulate a short write.
		n, _ := f.FileHandle.Write(p[:len(p)/2])
		return n, errors.New("injected write failure")
	}
	return f.FileHandle.Write(p)
}

func TestStore_FailedAppendIsRolledBack(t *testing.T) {
	original := sys.OpenFile
	t.Cleanup(func() { sys.OpenFile = original })

	var handle *failingFile
	sys.OpenFile = func(name string, flag int, perm os.FileMode) (sys.FileHandle, error) {
		f, err := original(name, flag, perm)
		if err != nil {
			return nil, err
		}
		handle = &failingFile{FileHandle: f}
		return handle, nil
	}

	s := openTestStore(t, testOptions(t.TempDir()))
	first, err := s.Append(encode(t, "first"))
	require.NoError(t, err)

	handle.failWrites = true
	_, err = s.Append(encode(t, "lost"))
	require.Error(t, err)
	assert.True(t, core.IsIOFailure(err))

	handle.failWrites = false
	second, err := s.Append(encode(t, "second"))
	require.NoError(t, err)

	var got string
	next, err := s.ReadAt(first, decodeInto(&got))
	require.NoError(t, err)
	assert.Equal(t, second.Offset, next, "the partial record was removed")
	_, err = s.ReadAt(second, decodeInto(&got))
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestStore_ConcurrentAppendAndRead(t *testing.T) {
	opts := testOptions(t.TempDir())
	opts.SyncMode = SyncNone
	opts.MaxFileSize = 4 * 1024
	s := openTestStore(t, opts)

	const writers, perWriter = 4, 50
	locs := make(chan core.Location, writers*perWriter)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				loc, err := s.Append(encode(t, "concurrent-value"))
				if !assert.NoError(t, err) {
					return
				}
				var got string
				_, err = s.ReadAt(loc, decodeInto(&got))
				assert.NoError(t, err)
				assert.Equal(t, "concurrent-value", got)
				locs <- loc
			}
		}()
	}
	wg.Wait()
	close(locs)

	seen := make(map[core.Location]bool)
	for loc := range locs {
		assert.False(t, seen[loc], "duplicate location %s", loc)
		seen[loc] = true
	}
	assert.Len(t, seen, writers*perWriter)
}

func TestEnumerateDir(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	s := openTestStore(t, opts)
	for i := 0; i < 3; i++ {
		_, err := s.Append(encode(t, "x"))
		require.NoError(t, err)
		require.NoError(t, s.Rotate())
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.lake"), []byte("ignored"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "00000099.lake"), 0755))

	files, err := s.EnumerateFiles()
	require.NoError(t, err)
	require.Len(t, files, 4)
	for i, f := range files {
		assert.Equal(t, uint64(i+1), f.ID)
		assert.Equal(t, f.ID == s.ActiveFileID(), f.Active)
	}

	plain, err := EnumerateDir(dir)
	require.NoError(t, err)
	assert.Len(t, plain, 4)

	_, err = EnumerateDir(filepath.Join(dir, "missing"))
	assert.True(t, core.IsIOFailure(err))
}

func TestStore_ScanFromFirstRecord(t *testing.T) {
	s := openTestStore(t, testOptions(t.TempDir()))
	var want []core.Location
	for _, v := range []string{"a", "b", "c"} {
		loc, err := s.Append(encode(t, v))
		require.NoError(t, err)
		want = append(want, loc)
	}

	var got []core.Location
	var values []string
	var v string
	res, err := s.Scan(context.Background(), s.ActiveFileID(), decodeInto(&v), func(loc core.Location) error {
		got = append(got, loc)
		values = append(values, v)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, []string{"a", "b", "c"}, values)
	assert.Equal(t, 3, res.Records)
	assert.False(t, res.Truncated)
}

func TestStore_FilesAddedAfterOpen(t *testing.T) {
	srcPath, srcLocs := writeSealedFile(t, t.TempDir(), "foreign")
	data, err := os.ReadFile(srcPath)
	require.NoError(t, err)

	dir := t.TempDir()
	s := openTestStore(t, testOptions(dir))
	_, err = s.Append(encode(t, "own"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(s.pathFor(9), data, 0644))

	var got string
	_, err = s.ReadAt(core.Location{FileID: 9, Offset: srcLocs[0].Offset}, decodeInto(&got))
	assert.ErrorIs(t, err, os.ErrNotExist, "unknown until the directory is enumerated again")

	files, err := s.EnumerateFiles()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.True(t, files[0].Active)
	assert.Equal(t, uint64(9), files[1].ID)

	_, err = s.ReadAt(core.Location{FileID: 9, Offset: srcLocs[0].Offset}, decodeInto(&got))
	require.NoError(t, err)
	assert.Equal(t, "foreign", got)

	require.NoError(t, s.Rotate())
	assert.Equal(t, uint64(10), s.ActiveFileID())
	loc, err := s.Append(encode(t, "after"))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), loc.FileID)
}
