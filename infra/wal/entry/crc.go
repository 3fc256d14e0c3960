package entry

import "hash/crc32"

// CRC32 checksums a WAL frame so Replay can detect a torn write left
// by a crash mid-append.
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// CRC32Valid reports whether data's checksum matches sum.
func CRC32Valid(data []byte, sum uint32) bool {
	return CRC32(data) == sum
}
