package compressors

import (
	"fmt"
	"sync"

	"github.com/INLOpen/nexuslake/core"
)

var (
	zstdOnce   sync.Once
	sharedZstd *ZstdCompressor
)

// ForType returns a Compressor for the given CompressionType. It is used when
// decoding, where the type comes from the record itself.
func ForType(compressionType core.CompressionType) (core.Compressor, error) {
	switch compressionType {
	case core.CompressionNone:
		return &NoCompressionCompressor{}, nil
	case core.CompressionSnappy:
		return &SnappyCompressor{}, nil
	case core.CompressionLZ4:
		return &LZ4Compressor{}, nil
	case core.CompressionZSTD:
		zstdOnce.Do(func() { sharedZstd = NewZstdCompressor() })
		return sharedZstd, nil
	default:
		return nil, fmt.Errorf("unknown compression type: %d", compressionType)
	}
}
