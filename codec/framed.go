package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/INLOpen/nexuslake/compressors"
	"github.com/INLOpen/nexuslake/core"
)

const (
	// framePrefixSize is the length prefix plus the flags byte.
	framePrefixSize = 5
	// frameHeaderSize adds the checksum of the prefix.
	frameHeaderSize = framePrefixSize + core.ChecksumSize

	// DefaultMaxRecordSize bounds the payload length a decoder accepts, so a
	// corrupt length prefix cannot trigger a huge allocation.
	DefaultMaxRecordSize = 64 * 1024 * 1024
)

// Framed is a Codec that writes each value as
//
//	length uint32 | flags uint8 | header crc32 uint32 | payload | crc32 uint32
//
// in little endian. length counts the payload bytes only and flags holds the
// core.CompressionType of the payload. The header checksum (IEEE) covers
// length and flags and is verified before the payload is read, so a damaged
// length is reported as malformed rather than as a record cut short. The
// trailing checksum covers flags and payload.
type Framed[V any] struct {
	marshaler     Marshaler[V]
	compressor    core.Compressor
	maxRecordSize uint32
}

var _ Codec[struct{}] = (*Framed[struct{}])(nil)

// FramedOption configures a Framed codec.
type FramedOption[V any] func(*Framed[V])

// WithCompressor compresses payloads on encode. Decoding always honours the
// flags byte of the record, so files written with mixed settings stay readable.
func WithCompressor[V any](c core.Compressor) FramedOption[V] {
	return func(f *Framed[V]) {
		if c != nil {
			f.compressor = c
		}
	}
}

// WithMaxRecordSize overrides DefaultMaxRecordSize.
func WithMaxRecordSize[V any](n uint32) FramedOption[V] {
	return func(f *Framed[V]) {
		if n > 0 {
			f.maxRecordSize = n
		}
	}
}

// NewFramed creates a Framed codec around m.
func NewFramed[V any](m Marshaler[V], opts ...FramedOption[V]) *Framed[V] {
	f := &Framed[V]{
		marshaler:     m,
		compressor:    &compressors.NoCompressionCompressor{},
		maxRecordSize: DefaultMaxRecordSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Encode writes one framed record to w.
func (f *Framed[V]) Encode(w io.Writer, v V) error {
	raw, err := f.marshaler.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	payload, err := f.compressor.Compress(raw)
	if err != nil {
		return fmt.Errorf("failed to compress payload with %s: %w", f.compressor.Type(), err)
	}
	if uint64(len(payload)) > uint64(f.maxRecordSize) {
		return fmt.Errorf("encoded payload of %d bytes exceeds max record size %d", len(payload), f.maxRecordSize)
	}

	buf := core.BufferPool.Get()
	defer core.BufferPool.Put(buf)

	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:4], uint32(len(payload)))
	header[4] = byte(f.compressor.Type())
	binary.LittleEndian.PutUint32(header[framePrefixSize:], crc32.ChecksumIEEE(header[:framePrefixSize]))
	buf.Write(header[:])
	buf.Write(payload)

	crc := crc32.NewIEEE()
	crc.Write(header[4:framePrefixSize])
	crc.Write(payload)
	var sum [core.ChecksumSize]byte
	binary.LittleEndian.PutUint32(sum[:], crc.Sum32())
	buf.Write(sum[:])

	// A single Write keeps a record contiguous even on unbuffered writers.
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Decode reads exactly one framed record from r.
func (f *Framed[V]) Decode(r Reader) (V, error) {
	var zero V

	first, err := r.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return zero, io.EOF
		}
		return zero, err
	}

	var header [frameHeaderSize]byte
	header[0] = first
	if _, err := io.ReadFull(r, header[1:]); err != nil {
		return zero, noEOF(err)
	}

	storedHeader := binary.LittleEndian.Uint32(header[framePrefixSize:])
	if computed := crc32.ChecksumIEEE(header[:framePrefixSize]); computed != storedHeader {
		return zero, fmt.Errorf("%w: header checksum mismatch (stored %08x, computed %08x)", ErrMalformed, storedHeader, computed)
	}

	length := binary.LittleEndian.Uint32(header[:4])
	if length > f.maxRecordSize {
		return zero, fmt.Errorf("%w: payload length %d exceeds limit %d", ErrMalformed, length, f.maxRecordSize)
	}
	flags := header[4]

	body := make([]byte, int(length)+core.ChecksumSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return zero, noEOF(err)
	}
	payload := body[:length]
	stored := binary.LittleEndian.Uint32(body[length:])

	crc := crc32.NewIEEE()
	crc.Write(header[4:framePrefixSize])
	crc.Write(payload)
	if crc.Sum32() != stored {
		return zero, fmt.Errorf("%w: checksum mismatch (stored %08x, computed %08x)", ErrMalformed, stored, crc.Sum32())
	}

	compressor, err := compressors.ForType(core.CompressionType(flags))
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	rc, err := compressor.Decompress(payload)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return zero, fmt.Errorf("%w: decompress: %v", ErrMalformed, err)
	}

	v, err := f.marshaler.Unmarshal(raw)
	if err != nil {
		return zero, fmt.Errorf("%w: unmarshal: %v", ErrMalformed, err)
	}
	return v, nil
}

// noEOF maps a plain EOF seen after the first byte of a record to
// io.ErrUnexpectedEOF.
func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
