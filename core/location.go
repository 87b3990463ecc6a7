package core

import "fmt"

// Location identifies where a record begins: the log file it lives in and the
// absolute byte offset of its first byte. A Location never changes once the
// record has been written.
type Location struct {
	FileID uint64
	Offset int64
}

func (l Location) String() string {
	return fmt.Sprintf("%d@%d", l.FileID, l.Offset)
}

// Keyed is implemented by every value stored in a lake. The key is derived
// from the value itself, so a record never stores its key separately.
type Keyed[K comparable] interface {
	Key() K
}
