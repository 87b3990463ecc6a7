package sys

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockDir_Exclusive(t *testing.T) {
	dir := t.TempDir()

	first, err := LockDir(dir, "LOCK")
	if errors.Is(err, errUnsupportedForTest()) {
		t.Skip("OS file locking not supported on this platform")
	}
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "LOCK"), first.Path())

	_, err = LockDir(dir, "LOCK")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Unlock())
	require.NoError(t, first.Unlock(), "second unlock is a no-op")

	second, err := LockDir(dir, "LOCK")
	require.NoError(t, err)
	require.NoError(t, second.Unlock())
}

func TestLockDir_MissingDirectory(t *testing.T) {
	_, err := LockDir(filepath.Join(t.TempDir(), "missing"), "LOCK")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrLocked))
}

func TestOpenFile_Substitutable(t *testing.T) {
	original := OpenFile
	t.Cleanup(func() { OpenFile = original })

	injected := errors.New("injected open failure")
	OpenFile = func(name string, flag int, perm os.FileMode) (FileHandle, error) {
		return nil, injected
	}
	_, err := OpenFile(filepath.Join(t.TempDir(), "x"), os.O_CREATE|os.O_RDWR, 0644)
	assert.ErrorIs(t, err, injected)
}

func TestSyncDir(t *testing.T) {
	assert.NoError(t, SyncDir(t.TempDir()))
	assert.Error(t, SyncDir(filepath.Join(t.TempDir(), "missing")))
}
