package spimem

import "errors"

var ErrWriteTimeout = errors.New("timed out waiting for the device write cycle")
var ErrAddressRange = errors.New("address span exceeds device capacity")
var ErrBitCount = errors.New("bit count must be between 1 and 32")
var ErrBitOffset = errors.New("bit offset must be between 0 and 7")

// SignalDriver is the capability contract a hardware backend has to provide
// for software-clocked SPI signaling: chip-select control, single-bit data
// lines, one clock pulse and a microsecond delay. Implementations own the
// GPIO access and the electrical timings; they know nothing about the
// protocol spoken over the lines.
//
// All operations block until the level change (or delay) is effective and
// none of them reports errors: a failure at this level is a hardware fault
// the protocol layers cannot recover from. Backends that can fail (USB
// adapters, character devices) record the first failure and expose it
// through their own Err method.
type SignalDriver interface {
	// CSLow asserts chip select (active low).
	CSLow()
	// CSHigh deasserts chip select.
	CSHigh()
	// WriteMOSI drives the output data line.
	WriteMOSI(bit bool)
	// ReadMISO samples the input data line.
	ReadMISO() bool
	// PulseClock emits one full clock pulse; the device samples MOSI and
	// updates MISO on its edges.
	PulseClock()
	// DelayMicroseconds blocks for at least the given number of microseconds.
	DelayMicroseconds(us uint)
}
