package eeprom

// Bit-span arithmetic for the bit-granular operations. A span is described
// by a starting bit offset inside the first byte and a total bit count; it
// is consumed byte by byte, each step taking at most the bits left in the
// current byte. Keeping these pure makes the boundary-crossing logic
// testable without a bus.

// spanBytes returns how many bytes a bit span touches.
func spanBytes(bitOffset, bitCount uint) uint {
	return (bitOffset + bitCount + 7) / 8
}

// startBit returns the bit position where extraction starts in the current
// byte: the caller-supplied offset for the first byte, zero afterwards.
func startBit(bitOffset, consumed uint) uint {
	if consumed == 0 {
		return bitOffset
	}
	return 0
}

// chunkWidth returns how many bits to take from the current byte.
func chunkWidth(start, remaining uint) uint {
	width := 8 - start
	if remaining < width {
		width = remaining
	}
	return width
}

// chunkMask builds the byte-local mask for a chunk.
func chunkMask(start, width uint) byte {
	return byte(((1 << width) - 1) << start)
}

// extractChunk right-justifies the masked bits of b.
func extractChunk(b byte, start, width uint) byte {
	return (b & chunkMask(start, width)) >> start
}

// insertChunk replaces the masked bits of b with the low width bits of v.
func insertChunk(b byte, start, width uint, v byte) byte {
	mask := chunkMask(start, width)
	return (b &^ mask) | ((v << start) & mask)
}
