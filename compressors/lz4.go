package compressors

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/INLOpen/nexuslake/core"
	lz4 "github.com/pierrec/lz4/v4"
)

// maxLZ4DecodedSize bounds the size a compressed payload may claim to expand to.
const maxLZ4DecodedSize = 256 * 1024 * 1024

// LZ4Compressor implements the Compressor interface using the LZ4 block format.
// The block format does not record the original size, so Compress prefixes
// the block with it as a uvarint.
type LZ4Compressor struct{}

var _ core.Compressor = (*LZ4Compressor)(nil)

func NewLz4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	dst := make([]byte, binary.MaxVarintLen64+lz4.CompressBlockBound(len(data)))
	n := binary.PutUvarint(dst, uint64(len(data)))
	if len(data) == 0 {
		return dst[:n], nil
	}

	written, err := lz4.CompressBlock(data, dst[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress error: %w", err)
	}
	if written == 0 {
		// Incompressible input. CompressBlock reports 0 and leaves dst untouched.
		return nil, errors.New("lz4 compression resulted in zero bytes for non-empty input")
	}
	return dst[:n+written], nil
}

func (c *LZ4Compressor) Decompress(data []byte) (io.ReadCloser, error) {
	size, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, errors.New("lz4 decompress error: invalid size prefix")
	}
	if size > maxLZ4DecodedSize {
		return nil, fmt.Errorf("lz4 decompress error: declared size %d exceeds limit", size)
	}
	if size == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	dst := make([]byte, size)
	written, err := lz4.UncompressBlock(data[n:], dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress error: %w", err)
	}
	if uint64(written) != size {
		return nil, fmt.Errorf("lz4 decompress error: got %d bytes, want %d", written, size)
	}
	return io.NopCloser(bytes.NewReader(dst)), nil
}

func (c *LZ4Compressor) Type() core.CompressionType {
	return core.CompressionLZ4
}
