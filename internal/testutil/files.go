package testutil

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// FlipByte inverts the byte at offset in the file at path.
func FlipByte(t testing.TB, path string, offset int64) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()

	b := make([]byte, 1)
	_, err = f.ReadAt(b, offset)
	require.NoError(t, err)
	b[0] ^= 0xFF
	_, err = f.WriteAt(b, offset)
	require.NoError(t, err)
}

// TruncateWithin cuts the file at path halfway between offset and its end,
// leaving a partial record that starts at offset.
func TruncateWithin(t testing.TB, path string, offset int64) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), offset)
	require.NoError(t, os.Truncate(path, offset+(info.Size()-offset)/2))
}
