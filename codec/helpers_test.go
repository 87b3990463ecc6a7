package codec

import (
	"encoding/binary"
	"hash/crc32"
)

// rewriteChecksum recomputes both checksums of a record after a test edits it.
func rewriteChecksum(record []byte) {
	binary.LittleEndian.PutUint32(record[framePrefixSize:frameHeaderSize], crc32.ChecksumIEEE(record[:framePrefixSize]))
	length := binary.LittleEndian.Uint32(record[:4])
	end := frameHeaderSize + int(length)
	crc := crc32.NewIEEE()
	crc.Write(record[4:framePrefixSize])
	crc.Write(record[frameHeaderSize:end])
	binary.LittleEndian.PutUint32(record[end:], crc.Sum32())
}
