// Package wire holds the endian-aware field extraction shared by every
// protocol decoder. Manufacturer layouts mix byte orders field by field, so
// each helper names its order explicitly; callers are expected to have
// bounds-checked the buffer before indexing.
package wire

// Uint16BE reads a big-endian uint16 at off.
func Uint16BE(b []byte, off int) uint16 {
	return uint16(b[off])<<8 | uint16(b[off+1])
}

// Uint16LE reads a little-endian uint16 at off.
func Uint16LE(b []byte, off int) uint16 {
	return uint16(b[off]) | uint16(b[off+1])<<8
}

// Int16BE reads a big-endian int16 at off.
func Int16BE(b []byte, off int) int16 {
	return int16(Uint16BE(b, off))
}

// Int16LE reads a little-endian int16 at off.
func Int16LE(b []byte, off int) int16 {
	return int16(Uint16LE(b, off))
}

// Uint32BE reads a big-endian uint32 at off.
func Uint32BE(b []byte, off int) uint32 {
	return uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3])
}

// Uint32LE reads a little-endian uint32 at off.
func Uint32LE(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

// Uint32WordsSwapped reads a uint32 stored as two big-endian 16-bit words
// with the low word first. Several Begode counters use this layout.
func Uint32WordsSwapped(b []byte, off int) uint32 {
	low := uint32(Uint16BE(b, off))
	high := uint32(Uint16BE(b, off+2))
	return high<<16 | low
}

// Sum16 returns the 16-bit additive checksum of b.
func Sum16(b []byte) uint16 {
	var s uint16
	for _, v := range b {
		s += uint16(v)
	}
	return s
}
