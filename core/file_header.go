package core

import (
	"encoding/binary"
	"time"
)

// FileHeader is written at the start of every lake log file.
type FileHeader struct {
	Magic     uint32
	Version   uint8
	CreatedAt int64 // UnixNano timestamp
	// SessionID is the UUID of the process session that created the file.
	SessionID [16]byte
}

// FileHeaderSize is the encoded size of FileHeader. Record offsets in a log
// file start here.
var FileHeaderSize = int64(binary.Size(FileHeader{}))

func (h *FileHeader) Size() int {
	return binary.Size(h)
}

// NewFileHeader creates a new header with the current time and the given session.
func NewFileHeader(magic uint32, session [16]byte) FileHeader {
	return FileHeader{
		Magic:     magic,
		Version:   FormatVersion,
		CreatedAt: time.Now().UnixNano(),
		SessionID: session,
	}
}
