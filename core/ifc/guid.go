package ifc

import "github.com/google/uuid"

// guidChars is the 64-character alphabet of the IFC compressed GUID
// encoding (IfcGloballyUniqueId).
const guidChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_$"

// NewGlobalID returns a fresh IFC compressed GUID: a random UUID packed
// into 22 characters of the IFC base-64 alphabet.
func NewGlobalID() string {
	return CompressUUID(uuid.New())
}

// CompressUUID packs a UUID into the 22-character IFC representation.
// The 128 bits are consumed in big-endian order, 6 bits per output
// character, with the first character carrying only the top 2 bits.
func CompressUUID(u uuid.UUID) string {
	var num [16]byte = u

	out := make([]byte, 22)
	// First character: top 2 bits only.
	out[0] = guidChars[num[0]>>6]

	// Remaining 126 bits in 6-bit groups.
	acc := uint32(num[0] & 0x3f)
	bits := 6
	pos := 1
	for i := 1; i < 16; i++ {
		acc = acc<<8 | uint32(num[i])
		bits += 8
		for bits >= 6 {
			bits -= 6
			out[pos] = guidChars[(acc>>uint(bits))&0x3f]
			pos++
		}
	}
	return string(out)
}
