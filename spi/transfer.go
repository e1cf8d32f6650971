// Package spi implements byte-level transfers over a bit-banged SPI bus.
//
// The only protocol knowledge in this package is bit ordering: bytes go out
// MSB-first and come back MSB-first, full duplex. Chip-select framing and
// inter-command delays belong to the device drivers built on top (see
// memory/25lc040a), which reach the signal lines through Driver().
package spi

import "github.com/mklimuk/spimem"

// Transfer exchanges bytes over a borrowed SignalDriver. It holds no state
// of its own, so a single Transfer can back any number of device drivers as
// long as the caller serializes bus access.
type Transfer struct {
	driver spimem.SignalDriver
}

// NewTransfer wraps an existing signal driver. The driver must outlive the
// returned Transfer.
func NewTransfer(driver spimem.SignalDriver) *Transfer {
	return &Transfer{driver: driver}
}

// TransferByte shifts tx out on MOSI, MSB first, and returns the byte
// clocked in on MISO during the same eight pulses. For every bit position
// the output line is driven first, then one clock pulse is emitted and the
// input line is sampled into the accumulator.
func (t *Transfer) TransferByte(tx byte) byte {
	var rx byte
	for bit := 7; bit >= 0; bit-- {
		t.driver.WriteMOSI((tx>>uint(bit))&0x01 == 0x01)
		t.driver.PulseClock()
		rx <<= 1
		if t.driver.ReadMISO() {
			rx |= 0x01
		}
	}
	return rx
}

// Driver exposes the underlying signal driver so device drivers can bracket
// multi-byte exchanges with chip-select and timing control.
func (t *Transfer) Driver() spimem.SignalDriver {
	return t.driver
}
