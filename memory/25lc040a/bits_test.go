package eeprom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpanBytes(t *testing.T) {
	tests := []struct {
		offset, count, expected uint
	}{
		{0, 1, 1},
		{0, 8, 1},
		{0, 9, 2},
		{7, 1, 1},
		{7, 2, 2},
		{5, 22, 4},
		{0, 32, 4},
		{7, 32, 5},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("off%d_n%d", test.offset, test.count), func(t *testing.T) {
			assert.Equal(t, test.expected, spanBytes(test.offset, test.count))
		})
	}
}

func TestStartBit(t *testing.T) {
	assert.Equal(t, uint(5), startBit(5, 0))
	assert.Equal(t, uint(0), startBit(5, 3))
	assert.Equal(t, uint(0), startBit(0, 0))
}

func TestChunkWidth(t *testing.T) {
	tests := []struct {
		start, remaining, expected uint
	}{
		{0, 8, 8},
		{0, 3, 3},
		{5, 8, 3},
		{7, 1, 1},
		{6, 22, 2},
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, chunkWidth(test.start, test.remaining),
			"start %d remaining %d", test.start, test.remaining)
	}
}

func TestChunkMask(t *testing.T) {
	assert.Equal(t, byte(0b00000001), chunkMask(0, 1))
	assert.Equal(t, byte(0b11100000), chunkMask(5, 3))
	assert.Equal(t, byte(0b00011100), chunkMask(2, 3))
	assert.Equal(t, byte(0b11111111), chunkMask(0, 8))
}

func TestExtractChunk(t *testing.T) {
	assert.Equal(t, byte(0b011), extractChunk(0b10110000, 4, 3))
	assert.Equal(t, byte(0b1), extractChunk(0b10000000, 7, 1))
	assert.Equal(t, byte(0xA5), extractChunk(0xA5, 0, 8))
}

func TestInsertChunk(t *testing.T) {
	// replaces exactly the masked bits
	assert.Equal(t, byte(0b10101111), insertChunk(0b11001111, 4, 3, 0b010))
	// value bits above the width are discarded
	assert.Equal(t, byte(0b00000001), insertChunk(0x00, 0, 1, 0xFF))
	assert.Equal(t, byte(0xFF), insertChunk(0x00, 0, 8, 0xFF))
	assert.Equal(t, byte(0b11111101), insertChunk(0xFF, 1, 1, 0))
}
