// Package eeprom provides a driver for the Microchip 25LC040A 4-Kbit SPI
// EEPROM accessed over a bit-banged bus.
//
// The part holds 512 bytes organized in 16-byte write pages. Array writes
// are chunked so that no single WRITE command crosses a page boundary (the
// chip wraps inside the page instead of advancing), and every write cycle
// is committed by raising chip select and then polling the STATUS register
// until the Write-In-Progress bit clears.
//
// Datasheet reference: Microchip 25LC040A (Table 2-1 Instruction Set,
// 16-byte page, 5 ms max write cycle).
//
// Example usage:
//
//	drv, _ := gpio.NewPinSignalDriver(gpio.Pins{CS: "GPIO8", Clock: "GPIO11", MOSI: "GPIO10", MISO: "GPIO9"})
//	e := eeprom.New(spi.NewTransfer(drv))
//	data, err := e.ReadArray(ctx, 0x0000, 16)
package eeprom

import (
	"context"
	"time"

	"github.com/mklimuk/spimem"
	"github.com/mklimuk/spimem/spi"
)

// --- device constants (datasheet Table 2-1) ---
const (
	cmdRead  = 0x03 // READ
	cmdWrite = 0x02 // WRITE
	cmdWREN  = 0x06 // WREN (Write-Enable Latch set)
	cmdRDSR  = 0x05 // Read STATUS Register

	statusWIP = 0x01 // STATUS bit 0 - Write-In-Progress

	// Dummy byte clocked out while the device drives MISO.
	fillByte = 0xFF

	// PageSize is the write-page alignment of the part.
	PageSize = 16
	// Capacity is the total number of addressable bytes.
	Capacity = 512

	defaultPollInterval = 10 // microseconds between STATUS polls
	defaultWriteTimeout = 5 * time.Millisecond
)

// EEPROM25LC040A is a stateless facade over the chip: it borrows a byte
// transfer engine and keeps no image of the device contents. The driver
// performs no locking; the caller must make sure at most one operation
// touches the bus at a time.
type EEPROM25LC040A struct {
	bus          *spi.Transfer
	pollInterval uint
	writeTimeout time.Duration
}

// Option configures a driver instance.
type Option func(*EEPROM25LC040A)

// WithPollInterval sets the delay between STATUS polls while waiting for a
// write cycle, in microseconds.
func WithPollInterval(us uint) Option {
	return func(e *EEPROM25LC040A) { e.pollInterval = us }
}

// WithWriteTimeout bounds the wait for a write cycle to complete. A zero
// timeout polls forever, which matches the chip's nominal behavior but
// hangs on a failed device.
func WithWriteTimeout(d time.Duration) Option {
	return func(e *EEPROM25LC040A) { e.writeTimeout = d }
}

// New returns a driver bound to the given transfer engine. The engine must
// outlive the driver.
func New(bus *spi.Transfer, opts ...Option) *EEPROM25LC040A {
	e := &EEPROM25LC040A{
		bus:          bus,
		pollInterval: defaultPollInterval,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReadByte returns the byte stored at address.
func (e *EEPROM25LC040A) ReadByte(ctx context.Context, address uint16) (byte, error) {
	if err := checkRange(address, 1); err != nil {
		return 0, err
	}
	drv := e.bus.Driver()
	drv.CSLow()
	e.bus.TransferByte(cmdRead)
	e.sendAddress(address)
	value := e.bus.TransferByte(fillByte)
	drv.CSHigh()
	return value, nil
}

// WriteByte stores value at address and waits for the internal write cycle
// to finish.
func (e *EEPROM25LC040A) WriteByte(ctx context.Context, address uint16, value byte) error {
	if err := checkRange(address, 1); err != nil {
		return err
	}
	e.writeEnable()
	drv := e.bus.Driver()
	drv.CSLow()
	e.bus.TransferByte(cmdWrite)
	e.sendAddress(address)
	e.bus.TransferByte(value)
	// raising CS is what starts the internal write cycle
	drv.CSHigh()
	return e.waitUntilWriteComplete(ctx)
}

// ReadArray returns length bytes starting at address, read in a single
// chip-select frame; the device auto-increments its internal pointer. A
// zero length is a no-op returning an empty slice.
func (e *EEPROM25LC040A) ReadArray(ctx context.Context, address uint16, length int) ([]byte, error) {
	if length <= 0 {
		return nil, nil
	}
	if err := checkRange(address, length); err != nil {
		return nil, err
	}
	buffer := make([]byte, length)
	drv := e.bus.Driver()
	drv.CSLow()
	e.bus.TransferByte(cmdRead)
	e.sendAddress(address)
	for i := range buffer {
		buffer[i] = e.bus.TransferByte(fillByte)
	}
	drv.CSHigh()
	return buffer, nil
}

// WriteArray stores data starting at address. Writes are split on the
// 16-byte page grid so no WRITE command ever crosses a page boundary; each
// chunk gets its own write-enable and completion poll, since the chip
// clears the write-enable latch after every cycle. An empty or nil slice
// is a no-op.
func (e *EEPROM25LC040A) WriteArray(ctx context.Context, address uint16, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := checkRange(address, len(data)); err != nil {
		return err
	}
	for len(data) > 0 {
		space := PageSize - int(address%PageSize)
		chunk := data
		if len(chunk) > space {
			chunk = chunk[:space]
		}
		if err := e.pageWrite(ctx, address, chunk); err != nil {
			return err
		}
		address += uint16(len(chunk))
		data = data[len(chunk):]
	}
	return nil
}

// ReadBit returns the value of a single bit. bit counts from 0 (LSB) to 7.
func (e *EEPROM25LC040A) ReadBit(ctx context.Context, address uint16, bit uint) (bool, error) {
	value, err := e.ReadBits(ctx, address, bit, 1)
	return value != 0, err
}

// WriteBit sets a single bit, leaving the rest of the byte untouched.
func (e *EEPROM25LC040A) WriteBit(ctx context.Context, address uint16, bit uint, value bool) error {
	var v uint32
	if value {
		v = 1
	}
	return e.WriteBits(ctx, address, bit, 1, v)
}

// ReadBits reads bitCount bits (1..32) starting at bitOffset (0..7) within
// the byte at address, walking forward across byte boundaries. The first
// bit read becomes the least significant bit of the result.
func (e *EEPROM25LC040A) ReadBits(ctx context.Context, address uint16, bitOffset, bitCount uint) (uint32, error) {
	if err := checkBitSpan(address, bitOffset, bitCount); err != nil {
		return 0, err
	}
	var result uint32
	var read uint
	for read < bitCount {
		b, err := e.ReadByte(ctx, address)
		if err != nil {
			return 0, err
		}
		start := startBit(bitOffset, read)
		width := chunkWidth(start, bitCount-read)
		result |= uint32(extractChunk(b, start, width)) << read
		read += width
		address++
	}
	return result, nil
}

// WriteBits writes the low bitCount bits of value starting at bitOffset
// within the byte at address. Every affected byte goes through a full
// read-modify-write cycle, including write-enable and completion polling;
// bits outside the span keep their previous values.
func (e *EEPROM25LC040A) WriteBits(ctx context.Context, address uint16, bitOffset, bitCount uint, value uint32) error {
	if err := checkBitSpan(address, bitOffset, bitCount); err != nil {
		return err
	}
	var written uint
	for written < bitCount {
		b, err := e.ReadByte(ctx, address)
		if err != nil {
			return err
		}
		start := startBit(bitOffset, written)
		width := chunkWidth(start, bitCount-written)
		b = insertChunk(b, start, width, byte(value>>written))
		if err := e.WriteByte(ctx, address, b); err != nil {
			return err
		}
		written += width
		address++
	}
	return nil
}

// ReadStatus returns the raw STATUS register. Bit 0 is Write-In-Progress.
func (e *EEPROM25LC040A) ReadStatus(ctx context.Context) (byte, error) {
	return e.readStatus(), nil
}

// --- helpers ---

// sendAddress transfers the 16-bit big-endian address frame. Only the low
// 9 bits are significant on this part; the device ignores the rest.
func (e *EEPROM25LC040A) sendAddress(address uint16) {
	e.bus.TransferByte(byte(address >> 8))
	e.bus.TransferByte(byte(address))
}

func (e *EEPROM25LC040A) writeEnable() {
	drv := e.bus.Driver()
	drv.CSLow()
	e.bus.TransferByte(cmdWREN)
	drv.CSHigh()
}

func (e *EEPROM25LC040A) readStatus() byte {
	drv := e.bus.Driver()
	drv.CSLow()
	e.bus.TransferByte(cmdRDSR)
	status := e.bus.TransferByte(fillByte)
	drv.CSHigh()
	return status
}

// waitUntilWriteComplete polls STATUS until WIP clears, pausing
// pollInterval microseconds between polls. It honors context cancellation
// and, when a write timeout is configured, gives up with ErrWriteTimeout
// instead of hanging on a dead device.
func (e *EEPROM25LC040A) waitUntilWriteComplete(ctx context.Context) error {
	var deadline time.Time
	if e.writeTimeout > 0 {
		deadline = time.Now().Add(e.writeTimeout)
	}
	for {
		if e.readStatus()&statusWIP == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return spimem.ErrWriteTimeout
		}
		e.bus.Driver().DelayMicroseconds(e.pollInterval)
	}
}

func (e *EEPROM25LC040A) pageWrite(ctx context.Context, address uint16, chunk []byte) error {
	e.writeEnable()
	drv := e.bus.Driver()
	drv.CSLow()
	e.bus.TransferByte(cmdWrite)
	e.sendAddress(address)
	for _, b := range chunk {
		e.bus.TransferByte(b)
	}
	drv.CSHigh()
	return e.waitUntilWriteComplete(ctx)
}

func checkRange(address uint16, length int) error {
	if int(address)+length > Capacity {
		return spimem.ErrAddressRange
	}
	return nil
}

func checkBitSpan(address uint16, bitOffset, bitCount uint) error {
	if bitCount == 0 || bitCount > 32 {
		return spimem.ErrBitCount
	}
	if bitOffset > 7 {
		return spimem.ErrBitOffset
	}
	return checkRange(address, int(spanBytes(bitOffset, bitCount)))
}
