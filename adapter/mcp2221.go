// Package adapter provides signal drivers backed by off-board bus adapters:
// the Microchip MCP2221 USB-HID bridge and gobot digital-pin adaptors.
package adapter

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/spimem"
	"github.com/mklimuk/spimem/cmd/spimem/console"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")
var ErrNotOpen = errors.New("adapter not open")

const (
	gpioModeMask      = 0b00001000
	gpioOperationMask = 0b00000111
)

type GPIOMode byte

const (
	GPIOModeOut         GPIOMode = 0b00000000
	GPIOModeIn          GPIOMode = 0b00001000
	GPIOModeNoOperation GPIOMode = 0xEF
)

func (m GPIOMode) String() string {
	switch m {
	case GPIOModeIn:
		return "INPUT"
	case GPIOModeOut:
		return "OUTPUT"
	default:
		return "NOOP"
	}
}

type GPIODesignation byte

const (
	// GPIOOperation selects plain GPIO operation for any of the GP pins;
	// the remaining designations are the pins' dedicated and alternate
	// functions, unused on a bit-banged bus but kept so configuration
	// round-trips stay lossless.
	GPIOOperation    GPIODesignation = 0b00000000
	GPIO0LedUartRx   GPIODesignation = 0b00000001
	GPIO0SSPND       GPIODesignation = 0b00000010
	GPIO1ClockOutput GPIODesignation = 0b00000001
	GPIO2ADC2        GPIODesignation = 0b00000010
	GPIO3LEDI2C      GPIODesignation = 0b00000001
)

type MCP2221GPIOValues struct {
	GPIO0Mode  GPIOMode `yaml:"GP0_mode"`
	GPIO0Value byte     `yaml:"GPIO0"`
	GPIO1Mode  GPIOMode `yaml:"GP1_mode"`
	GPIO1Value byte     `yaml:"GPIO1"`
	GPIO2Mode  GPIOMode `yaml:"GP2_mode"`
	GPIO2Value byte     `yaml:"GPIO2"`
	GPIO3Mode  GPIOMode `yaml:"GP3_mode"`
	GPIO3Value byte     `yaml:"GPIO3"`
}

type MCP2221GPIOParameters struct {
	GPIO0Mode        GPIOMode        `yaml:"GP0_mode"`
	GPIO0Designation GPIODesignation `yaml:"GP0_designation"`
	GPIO1Mode        GPIOMode        `yaml:"GP1_mode"`
	GPIO1Designation GPIODesignation `yaml:"GP1_designation"`
	GPIO2Mode        GPIOMode        `yaml:"GP2_mode"`
	GPIO2Designation GPIODesignation `yaml:"GP2_designation"`
	GPIO3Mode        GPIOMode        `yaml:"GP3_mode"`
	GPIO3Designation GPIODesignation `yaml:"GP3_designation"`
}

// MCP2221 drives the GP0..GP3 pins of the USB bridge through its 64-byte
// HID command frames. The device stays open between commands; a bit-banged
// transfer still costs several HID round trips per bit, so this path is
// meant for bring-up and flashing, not throughput.
type MCP2221 struct {
	mx           sync.Mutex
	dev          *hid.Device
	request      []byte
	response     []byte
	responseWait time.Duration
}

func NewMCP2221() *MCP2221 {
	return &MCP2221{
		request:      make([]byte, 64),
		response:     make([]byte, 64),
		responseWait: time.Millisecond,
	}
}

// Open claims the HID device. When several bridges are attached an explicit
// enumeration index has to be provided.
func (d *MCP2221) Open(id ...int) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.dev != nil {
		return nil
	}
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return fmt.Errorf("MCP2221 device not found")
	}
	if len(devs) > 1 && len(id) == 0 {
		return fmt.Errorf("ambiguous device identification")
	}
	idx := 0
	if len(id) > 0 {
		idx = id[0]
	}
	if idx < 0 || idx >= len(devs) {
		return fmt.Errorf("no device with id %d", idx)
	}
	dev, err := devs[idx].Open()
	if err != nil {
		return fmt.Errorf("error opening device: %w", err)
	}
	d.dev = dev
	return nil
}

func (d *MCP2221) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.dev == nil {
		return nil
	}
	err := d.dev.Close()
	d.dev = nil
	return err
}

// SetGPIOParameters configures mode and designation of all four GP pins
// (Set SRAM Settings, command 0xB1).
func (d *MCP2221) SetGPIOParameters(ctx context.Context, params MCP2221GPIOParameters) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = 0xB1
	d.request[7] = 0x80 // alter GP designation
	d.request[8] = byte(params.GPIO0Designation) | byte(params.GPIO0Mode)
	d.request[9] = byte(params.GPIO1Designation) | byte(params.GPIO1Mode)
	d.request[10] = byte(params.GPIO2Designation) | byte(params.GPIO2Mode)
	d.request[11] = byte(params.GPIO3Designation) | byte(params.GPIO3Mode)
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("set GP parameters command write failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return ErrCommandFailed
	}
	return nil
}

// GetGPIOParameters reads back the current SRAM pin configuration
// (command 0xB0).
func (d *MCP2221) GetGPIOParameters(ctx context.Context) (MCP2221GPIOParameters, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = 0xB0
	err := d.send(ctx, true)
	if err != nil {
		return MCP2221GPIOParameters{}, fmt.Errorf("get GP parameters command write failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return MCP2221GPIOParameters{}, ErrCommandUnsupported
	}
	return MCP2221GPIOParameters{
		GPIO0Mode:        GPIOMode(d.response[22] & gpioModeMask),
		GPIO0Designation: GPIODesignation(d.response[22] & gpioOperationMask),
		GPIO1Mode:        GPIOMode(d.response[23] & gpioModeMask),
		GPIO1Designation: GPIODesignation(d.response[23] & gpioOperationMask),
		GPIO2Mode:        GPIOMode(d.response[24] & gpioModeMask),
		GPIO2Designation: GPIODesignation(d.response[24] & gpioOperationMask),
		GPIO3Mode:        GPIOMode(d.response[25] & gpioModeMask),
		GPIO3Designation: GPIODesignation(d.response[25] & gpioOperationMask),
	}, nil
}

// SetGPIOValue drives a single GP pin configured as output
// (Set GPIO Output Values, command 0x50).
func (d *MCP2221) SetGPIOValue(ctx context.Context, pin int, value bool) error {
	if pin < 0 || pin > 3 {
		return fmt.Errorf("no GP pin %d on this device", pin)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = 0x50
	base := 2 + pin*4
	d.request[base] = 0x01 // alter output value
	if value {
		d.request[base+1] = 0x01
	}
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("set GPIO value command write failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return ErrCommandFailed
	}
	return nil
}

// GetGPIOValue samples a single GP pin.
func (d *MCP2221) GetGPIOValue(ctx context.Context, pin int) (bool, error) {
	values, err := d.ReadGPIO(ctx)
	if err != nil {
		return false, err
	}
	switch pin {
	case 0:
		return values.GPIO0Value != 0, nil
	case 1:
		return values.GPIO1Value != 0, nil
	case 2:
		return values.GPIO2Value != 0, nil
	case 3:
		return values.GPIO3Value != 0, nil
	}
	return false, fmt.Errorf("no GP pin %d on this device", pin)
}

// ReadGPIO returns mode and level of all four GP pins
// (Get GPIO Values, command 0x51).
func (d *MCP2221) ReadGPIO(ctx context.Context) (MCP2221GPIOValues, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = 0x51
	err := d.send(ctx, true)
	var res MCP2221GPIOValues
	if err != nil {
		return res, fmt.Errorf("read GPIO values command write failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return res, ErrCommandFailed
	}
	res.GPIO0Mode = GPIOModeNoOperation
	res.GPIO0Value = d.response[2]
	if d.response[3] != byte(GPIOModeNoOperation) {
		res.GPIO0Mode = GPIOMode(d.response[3] << 3)
	}
	res.GPIO1Mode = GPIOModeNoOperation
	res.GPIO1Value = d.response[4]
	if d.response[5] != byte(GPIOModeNoOperation) {
		res.GPIO1Mode = GPIOMode(d.response[5] << 3)
	}
	res.GPIO2Mode = GPIOModeNoOperation
	res.GPIO2Value = d.response[6]
	if d.response[7] != byte(GPIOModeNoOperation) {
		res.GPIO2Mode = GPIOMode(d.response[7] << 3)
	}
	res.GPIO3Mode = GPIOModeNoOperation
	res.GPIO3Value = d.response[8]
	if d.response[9] != byte(GPIOModeNoOperation) {
		res.GPIO3Mode = GPIOMode(d.response[9] << 3)
	}
	return res, nil
}

type MCP2221Status struct {
	HardwareRevision string
	FirmwareRevision string
}

// Status reads the device status frame (command 0x10) and decodes the
// hardware and firmware revision markers.
func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = 0x10
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	// bytes 46..49 hold the revision markers as ASCII pairs
	return &MCP2221Status{
		HardwareRevision: string(buffer[46:48]),
		FirmwareRevision: string(buffer[48:50]),
	}
}

func (d *MCP2221) send(ctx context.Context, response bool) error {
	if d.dev == nil {
		return ErrNotOpen
	}
	verbose := console.IsVerbose(ctx)
	if verbose {
		console.Printf("sending message to adapter:\n%s\n", hex.Dump(d.request))
	}
	n, err := d.dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short write: %d", n)
	}
	if !response {
		return nil
	}
	time.Sleep(d.responseWait)
	n, err = d.dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		console.Printf("read message from adapter:\n%s\n", hex.Dump(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := 0; i < len(buf)-1; i++ {
		buf[i] = 0x00
	}
}

// --- signal driver over the bridge pins ---

// Fixed pin mapping for the bit-banged bus on the bridge.
const (
	PinCS    = 0
	PinClock = 1
	PinMOSI  = 2
	PinMISO  = 3
)

var _ spimem.SignalDriver = &MCP2221SignalDriver{}

// MCP2221SignalDriver implements the signal contract on GP0..GP3 of an
// open bridge: GP0 chip select, GP1 clock, GP2 MOSI, GP3 MISO. HID round
// trips dominate the timing, so requested microsecond delays are already
// implied by the transport and only honored for the excess.
type MCP2221SignalDriver struct {
	dev *MCP2221
	err error
}

func NewMCP2221SignalDriver(dev *MCP2221) *MCP2221SignalDriver {
	return &MCP2221SignalDriver{dev: dev}
}

// Configure puts GP0..GP2 in output mode, GP3 in input mode and parks the
// bus (CS high, clock low).
func (s *MCP2221SignalDriver) Configure(ctx context.Context) error {
	err := s.dev.SetGPIOParameters(ctx, MCP2221GPIOParameters{
		GPIO0Mode: GPIOModeOut,
		GPIO1Mode: GPIOModeOut,
		GPIO2Mode: GPIOModeOut,
		GPIO3Mode: GPIOModeIn,
	})
	if err != nil {
		return fmt.Errorf("could not configure bridge pins: %w", err)
	}
	if err = s.dev.SetGPIOValue(ctx, PinCS, true); err != nil {
		return err
	}
	if err = s.dev.SetGPIOValue(ctx, PinClock, false); err != nil {
		return err
	}
	return s.dev.SetGPIOValue(ctx, PinMOSI, false)
}

func (s *MCP2221SignalDriver) CSLow()  { s.set(PinCS, false) }
func (s *MCP2221SignalDriver) CSHigh() { s.set(PinCS, true) }

func (s *MCP2221SignalDriver) WriteMOSI(bit bool) { s.set(PinMOSI, bit) }

func (s *MCP2221SignalDriver) ReadMISO() bool {
	value, err := s.dev.GetGPIOValue(context.Background(), PinMISO)
	if err != nil && s.err == nil {
		s.err = err
	}
	return value
}

func (s *MCP2221SignalDriver) PulseClock() {
	s.set(PinClock, true)
	s.set(PinClock, false)
}

func (s *MCP2221SignalDriver) DelayMicroseconds(us uint) {
	if d := time.Duration(us) * time.Microsecond; d > s.dev.responseWait {
		time.Sleep(d - s.dev.responseWait)
	}
}

// Err returns the first transport failure observed since the last call and
// clears it.
func (s *MCP2221SignalDriver) Err() error {
	err := s.err
	s.err = nil
	return err
}

func (s *MCP2221SignalDriver) set(pin int, value bool) {
	if err := s.dev.SetGPIOValue(context.Background(), pin, value); err != nil && s.err == nil {
		s.err = err
	}
}
