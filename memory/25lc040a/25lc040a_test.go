package eeprom

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/spimem"
	"github.com/mklimuk/spimem/spi"
)

type committedWrite struct {
	address uint16
	data    []byte
}

// simDevice emulates a 25LC040A at the signal level: it decodes opcodes
// from the clocked bit stream, keeps a 512-byte backing array, wraps
// writes inside their 16-byte page and reports a configurable number of
// busy STATUS polls after each write cycle. Counters expose what happened
// on the wire so tests can assert framing, chunking and transfer counts.
type simDevice struct {
	mem [Capacity]byte

	// per-frame shift state
	cs       bool
	mosi     bool
	miso     bool
	inShift  byte
	bitCount int
	outByte  byte
	outIdx   int
	frame    []byte
	readPtr  uint16

	// write-enable latch and busy simulation
	wren        bool
	writeBusy   int // busy polls reported after each committed write
	busyPolls   int
	busyForever bool
	statusQueue []byte

	// wire accounting
	pulses       int
	delays       int
	wrenFrames   int
	statusFrames int
	readFrames   int
	writes       []committedWrite
}

func (d *simDevice) CSLow() {
	d.cs = true
	d.resetFrame()
}

func (d *simDevice) CSHigh() {
	if !d.cs {
		return
	}
	d.cs = false
	if len(d.frame) == 0 {
		return
	}
	switch d.frame[0] {
	case cmdWREN:
		d.wren = true
		d.wrenFrames++
	case cmdRDSR:
		d.statusFrames++
	case cmdRead:
		d.readFrames++
	case cmdWrite:
		if d.wren && len(d.frame) >= 4 {
			address := uint16(d.frame[1])<<8 | uint16(d.frame[2])
			data := append([]byte(nil), d.frame[3:]...)
			for i, b := range data {
				// the chip wraps inside the page instead of advancing
				target := (address &^ 0x0F) | ((address + uint16(i)) & 0x0F)
				d.mem[target%Capacity] = b
			}
			d.writes = append(d.writes, committedWrite{address: address, data: data})
			d.wren = false
			d.busyPolls = d.writeBusy
		}
	}
	d.resetFrame()
}

func (d *simDevice) WriteMOSI(bit bool) { d.mosi = bit }
func (d *simDevice) ReadMISO() bool     { return d.miso }

func (d *simDevice) PulseClock() {
	d.pulses++
	if !d.cs {
		return
	}
	d.inShift = d.inShift << 1
	if d.mosi {
		d.inShift |= 0x01
	}
	d.miso = (d.outByte>>(7-uint(d.outIdx)))&0x01 == 0x01
	d.outIdx++
	d.bitCount++
	if d.bitCount == 8 {
		d.byteReceived()
	}
}

func (d *simDevice) DelayMicroseconds(us uint) { d.delays++ }

func (d *simDevice) byteReceived() {
	d.frame = append(d.frame, d.inShift)
	d.inShift = 0
	d.bitCount = 0
	d.outIdx = 0
	d.outByte = 0
	switch d.frame[0] {
	case cmdRDSR:
		if len(d.frame) == 1 {
			d.outByte = d.nextStatus()
		}
	case cmdRead:
		if len(d.frame) >= 3 {
			if len(d.frame) == 3 {
				d.readPtr = uint16(d.frame[1])<<8 | uint16(d.frame[2])
			}
			d.outByte = d.mem[d.readPtr%Capacity]
			d.readPtr++
		}
	}
}

func (d *simDevice) nextStatus() byte {
	if len(d.statusQueue) > 0 {
		status := d.statusQueue[0]
		d.statusQueue = d.statusQueue[1:]
		return status
	}
	if d.busyForever {
		return statusWIP
	}
	if d.busyPolls > 0 {
		d.busyPolls--
		return statusWIP
	}
	return 0x00
}

func (d *simDevice) resetFrame() {
	d.frame = nil
	d.inShift = 0
	d.bitCount = 0
	d.outByte = 0
	d.outIdx = 0
	d.miso = false
}

func newTestDriver(dev *simDevice, opts ...Option) *EEPROM25LC040A {
	return New(spi.NewTransfer(dev), opts...)
}

func TestWriteByte_ReadByte_RoundTrip(t *testing.T) {
	dev := &simDevice{}
	e := newTestDriver(dev)
	ctx := context.Background()
	for _, address := range []uint16{0, 1, 15, 16, 255, 511} {
		value := byte(address*7 + 3)
		require.NoError(t, e.WriteByte(ctx, address, value))
		got, err := e.ReadByte(ctx, address)
		require.NoError(t, err)
		assert.Equal(t, value, got, "address %d", address)
	}
}

func TestWriteByte_EnablesWriteBeforeEachCycle(t *testing.T) {
	dev := &simDevice{}
	e := newTestDriver(dev)
	ctx := context.Background()
	require.NoError(t, e.WriteByte(ctx, 42, 0xAB))
	require.NoError(t, e.WriteByte(ctx, 43, 0xCD))
	assert.Equal(t, 2, dev.wrenFrames)
	assert.Len(t, dev.writes, 2)
	assert.Equal(t, byte(0xAB), dev.mem[42])
	assert.Equal(t, byte(0xCD), dev.mem[43])
}

func TestReadArray_SingleChipSelectFrame(t *testing.T) {
	dev := &simDevice{}
	for i := 0; i < 32; i++ {
		dev.mem[100+i] = byte(i ^ 0x5A)
	}
	e := newTestDriver(dev)
	data, err := e.ReadArray(context.Background(), 100, 32)
	require.NoError(t, err)
	assert.Equal(t, dev.mem[100:132], data)
	assert.Equal(t, 1, dev.readFrames)
}

func TestReadArray_ZeroLengthIsNoOp(t *testing.T) {
	dev := &simDevice{}
	e := newTestDriver(dev)
	data, err := e.ReadArray(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Zero(t, dev.pulses)
}

func TestWriteArray_EmptyIsNoOp(t *testing.T) {
	dev := &simDevice{}
	e := newTestDriver(dev)
	require.NoError(t, e.WriteArray(context.Background(), 0, nil))
	require.NoError(t, e.WriteArray(context.Background(), 0, []byte{}))
	assert.Zero(t, dev.pulses)
}

func TestWriteArray_SplitsOnPageBoundary(t *testing.T) {
	dev := &simDevice{}
	e := newTestDriver(dev)
	ctx := context.Background()

	data := make([]byte, 20)
	for i := range data {
		data[i] = byte(0xC0 + i)
	}
	require.NoError(t, e.WriteArray(ctx, 10, data))

	// 20 bytes at address 10: 6 bytes fill the first page, 14 go to the next
	require.Len(t, dev.writes, 2)
	assert.Equal(t, uint16(10), dev.writes[0].address)
	assert.Equal(t, data[:6], dev.writes[0].data)
	assert.Equal(t, uint16(16), dev.writes[1].address)
	assert.Equal(t, data[6:], dev.writes[1].data)
	// one write-enable and one status poll sequence per chunk
	assert.Equal(t, 2, dev.wrenFrames)
	assert.GreaterOrEqual(t, dev.statusFrames, 2)

	read, err := e.ReadArray(ctx, 10, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, read)
}

func TestWriteArray_NeverCrossesPageBoundary(t *testing.T) {
	dev := &simDevice{}
	e := newTestDriver(dev)
	ctx := context.Background()

	data := make([]byte, 40)
	for i := range data {
		data[i] = byte(i + 1)
	}
	require.NoError(t, e.WriteArray(ctx, 30, data))

	for _, w := range dev.writes {
		first := int(w.address)
		last := first + len(w.data) - 1
		assert.Equal(t, first/PageSize, last/PageSize,
			"write at %d spans %d bytes across a page boundary", w.address, len(w.data))
	}
	read, err := e.ReadArray(ctx, 30, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, read)
}

func TestWaitUntilWriteComplete_PollsUntilWIPClears(t *testing.T) {
	dev := &simDevice{statusQueue: []byte{0x01, 0x01, 0x00}}
	e := newTestDriver(dev)
	require.NoError(t, e.waitUntilWriteComplete(context.Background()))
	assert.Equal(t, 3, dev.statusFrames)
	assert.Equal(t, 2, dev.delays)
}

func TestWaitUntilWriteComplete_Timeout(t *testing.T) {
	dev := &simDevice{busyForever: true}
	e := newTestDriver(dev, WithWriteTimeout(200*time.Microsecond), WithPollInterval(1))
	err := e.waitUntilWriteComplete(context.Background())
	assert.ErrorIs(t, err, spimem.ErrWriteTimeout)
}

func TestWaitUntilWriteComplete_ContextCancellation(t *testing.T) {
	dev := &simDevice{busyForever: true}
	// no timeout configured: only the context stops the poll loop
	e := newTestDriver(dev, WithWriteTimeout(0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.waitUntilWriteComplete(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBitOps_InvalidArgumentsTouchNothing(t *testing.T) {
	dev := &simDevice{}
	e := newTestDriver(dev)
	ctx := context.Background()

	for _, count := range []uint{0, 33, 64} {
		value, err := e.ReadBits(ctx, 0, 0, count)
		assert.ErrorIs(t, err, spimem.ErrBitCount)
		assert.Zero(t, value)
		assert.ErrorIs(t, e.WriteBits(ctx, 0, 0, count, 0xFFFFFFFF), spimem.ErrBitCount)
	}
	_, err := e.ReadBits(ctx, 0, 8, 4)
	assert.ErrorIs(t, err, spimem.ErrBitOffset)
	assert.ErrorIs(t, e.WriteBits(ctx, 0, 8, 4, 1), spimem.ErrBitOffset)
	assert.Zero(t, dev.pulses)
}

// referenceBit reports bit i of the span starting at (address, offset) as a
// byte address plus bit position, independently of the driver's chunking.
func referenceBit(address uint16, offset, i uint) (uint16, uint) {
	return address + uint16((offset+i)/8), (offset + i) % 8
}

func TestReadBits_AgainstBitwiseReference(t *testing.T) {
	dev := &simDevice{}
	for i := range dev.mem {
		dev.mem[i] = byte(i*31 + 17)
	}
	e := newTestDriver(dev)
	ctx := context.Background()

	tests := []struct {
		address uint16
		offset  uint
		count   uint
	}{
		{0, 0, 1},
		{3, 5, 3},
		{7, 7, 2},
		{10, 2, 8},
		{20, 5, 22},
		{40, 0, 32},
		{50, 7, 32},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("addr%d_off%d_n%d", test.address, test.offset, test.count), func(t *testing.T) {
			var expected uint32
			for i := uint(0); i < test.count; i++ {
				addr, bit := referenceBit(test.address, test.offset, i)
				if dev.mem[addr]>>(bit)&0x01 == 0x01 {
					expected |= 1 << i
				}
			}
			got, err := e.ReadBits(ctx, test.address, test.offset, test.count)
			require.NoError(t, err)
			assert.Equal(t, expected, got)
		})
	}
}

func TestWriteBits_RoundTripAndMasking(t *testing.T) {
	tests := []struct {
		address uint16
		offset  uint
		count   uint
		value   uint32
	}{
		{0, 0, 1, 1},
		{5, 3, 4, 0b1010},
		{8, 6, 4, 0b0110}, // crosses into the next byte
		{12, 5, 22, 0x2ABCDE},
		{30, 0, 32, 0xDEADBEEF},
		{60, 7, 9, 0x1FF},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("addr%d_off%d_n%d", test.address, test.offset, test.count), func(t *testing.T) {
			dev := &simDevice{}
			for i := range dev.mem {
				dev.mem[i] = byte(i*13 + 101)
			}
			before := dev.mem
			e := newTestDriver(dev)
			ctx := context.Background()

			require.NoError(t, e.WriteBits(ctx, test.address, test.offset, test.count, test.value))

			mask := uint32(1)<<test.count - 1
			if test.count == 32 {
				mask = 0xFFFFFFFF
			}
			got, err := e.ReadBits(ctx, test.address, test.offset, test.count)
			require.NoError(t, err)
			assert.Equal(t, test.value&mask, got)

			// every bit outside the span keeps its pre-write value
			expected := before
			for i := uint(0); i < test.count; i++ {
				addr, bit := referenceBit(test.address, test.offset, i)
				expected[addr] &^= 1 << bit
				if test.value>>(i)&0x01 == 0x01 {
					expected[addr] |= 1 << bit
				}
			}
			assert.Equal(t, expected, dev.mem)
		})
	}
}

func TestBit_SingleBitWrappers(t *testing.T) {
	dev := &simDevice{}
	e := newTestDriver(dev)
	ctx := context.Background()

	require.NoError(t, e.WriteBit(ctx, 17, 4, true))
	set, err := e.ReadBit(ctx, 17, 4)
	require.NoError(t, err)
	assert.True(t, set)
	assert.Equal(t, byte(1<<4), dev.mem[17])

	require.NoError(t, e.WriteBit(ctx, 17, 4, false))
	set, err = e.ReadBit(ctx, 17, 4)
	require.NoError(t, err)
	assert.False(t, set)
	assert.Zero(t, dev.mem[17])
}

func TestAddressRange_Validated(t *testing.T) {
	dev := &simDevice{}
	e := newTestDriver(dev)
	ctx := context.Background()

	_, err := e.ReadByte(ctx, Capacity)
	assert.ErrorIs(t, err, spimem.ErrAddressRange)
	assert.ErrorIs(t, e.WriteByte(ctx, Capacity, 0x00), spimem.ErrAddressRange)

	_, err = e.ReadArray(ctx, Capacity-4, 5)
	assert.ErrorIs(t, err, spimem.ErrAddressRange)
	assert.ErrorIs(t, e.WriteArray(ctx, Capacity-4, make([]byte, 5)), spimem.ErrAddressRange)

	// a bit span sticking out past the last byte is rejected as well
	_, err = e.ReadBits(ctx, Capacity-1, 4, 8)
	assert.ErrorIs(t, err, spimem.ErrAddressRange)

	assert.Zero(t, dev.pulses)
}
