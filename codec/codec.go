// Package codec defines how values are turned into records in a lake log file
// and back.
package codec

import (
	"errors"
	"io"
)

// ErrMalformed is wrapped by every decode error that is not caused by running
// out of input.
var ErrMalformed = errors.New("malformed record")

// Reader is what Decode reads a record from. The log store always hands
// decoders a reader that supports both forms.
type Reader interface {
	io.Reader
	io.ByteReader
}

// Codec encodes values to a stream and decodes exactly one record from a
// stream.
//
// Decode must return io.EOF only when no bytes at all are available at the
// start of a record, io.ErrUnexpectedEOF when the input ends partway through a
// record, and an error wrapping ErrMalformed for anything else.
type Codec[V any] interface {
	Encode(w io.Writer, v V) error
	Decode(r Reader) (V, error)
}

// Marshaler converts a value to and from its payload bytes. Framed adds
// length, compression and checksum around it.
type Marshaler[V any] interface {
	Marshal(v V) ([]byte, error)
	Unmarshal(data []byte) (V, error)
}
