// Package gpio implements the spimem signal contract on top of periph.io
// GPIO pins, for boards whose pins are exposed through the host registry
// (Raspberry Pi, NanoPi and friends).
package gpio

import (
	"fmt"
	"time"

	"github.com/mklimuk/spimem"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var _ spimem.SignalDriver = &PinSignalDriver{}

// Pins names the four bus lines as known to the periph host registry
// (e.g. "GPIO8" or a physical header name like "P1_24").
type Pins struct {
	CS    string `yaml:"cs"`
	Clock string `yaml:"clock"`
	MOSI  string `yaml:"mosi"`
	MISO  string `yaml:"miso"`
}

// PinSignalDriver bit-bangs the SPI lines over four GPIO pins. The signal
// contract carries no errors, so pin failures are recorded and exposed
// through Err; callers should check it after a transaction.
type PinSignalDriver struct {
	cs, clock, mosi pgpio.PinIO
	miso            pgpio.PinIO
	halfPeriod      time.Duration
	err             error
}

// PinOption configures a PinSignalDriver.
type PinOption func(*PinSignalDriver)

// WithClockPeriod sets the full clock period; the line is held for half of
// it on each level. The default is 10µs (100 kHz), well below the part's
// limits and slow enough for breadboard wiring.
func WithClockPeriod(period time.Duration) PinOption {
	return func(d *PinSignalDriver) { d.halfPeriod = period / 2 }
}

// NewPinSignalDriver initializes the periph host, resolves the named pins
// and puts the bus in its idle state (CS high, clock low).
func NewPinSignalDriver(pins Pins, opts ...PinOption) (*PinSignalDriver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	cs, err := pinByName(pins.CS)
	if err != nil {
		return nil, err
	}
	clock, err := pinByName(pins.Clock)
	if err != nil {
		return nil, err
	}
	mosi, err := pinByName(pins.MOSI)
	if err != nil {
		return nil, err
	}
	miso, err := pinByName(pins.MISO)
	if err != nil {
		return nil, err
	}
	return newFromPins(cs, clock, mosi, miso, opts...)
}

// newFromPins wires already-resolved pins; split out so tests can inject
// fakes without the host registry.
func newFromPins(cs, clock, mosi, miso pgpio.PinIO, opts ...PinOption) (*PinSignalDriver, error) {
	d := &PinSignalDriver{
		cs:         cs,
		clock:      clock,
		mosi:       mosi,
		miso:       miso,
		halfPeriod: 5 * time.Microsecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := cs.Out(pgpio.High); err != nil {
		return nil, fmt.Errorf("could not configure CS: %w", err)
	}
	if err := clock.Out(pgpio.Low); err != nil {
		return nil, fmt.Errorf("could not configure clock: %w", err)
	}
	if err := mosi.Out(pgpio.Low); err != nil {
		return nil, fmt.Errorf("could not configure MOSI: %w", err)
	}
	if err := miso.In(pgpio.PullNoChange, pgpio.NoEdge); err != nil {
		return nil, fmt.Errorf("could not configure MISO: %w", err)
	}
	return d, nil
}

func pinByName(name string) (pgpio.PinIO, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("unknown GPIO pin %q", name)
	}
	return pin, nil
}

func (d *PinSignalDriver) CSLow()  { d.out(d.cs, pgpio.Low) }
func (d *PinSignalDriver) CSHigh() { d.out(d.cs, pgpio.High) }

func (d *PinSignalDriver) WriteMOSI(bit bool) {
	d.out(d.mosi, pgpio.Level(bit))
}

func (d *PinSignalDriver) ReadMISO() bool {
	return d.miso.Read() == pgpio.High
}

// PulseClock raises and lowers the clock line, holding each level for half
// the configured period. Mode 0: the device samples MOSI on the rising
// edge and shifts MISO out on the falling one.
func (d *PinSignalDriver) PulseClock() {
	d.out(d.clock, pgpio.High)
	time.Sleep(d.halfPeriod)
	d.out(d.clock, pgpio.Low)
	time.Sleep(d.halfPeriod)
}

func (d *PinSignalDriver) DelayMicroseconds(us uint) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}

// Err returns the first pin failure observed since the last call and
// clears it.
func (d *PinSignalDriver) Err() error {
	err := d.err
	d.err = nil
	return err
}

func (d *PinSignalDriver) out(pin pgpio.PinIO, level pgpio.Level) {
	if err := pin.Out(level); err != nil && d.err == nil {
		d.err = fmt.Errorf("could not drive %s: %w", pin.Name(), err)
	}
}
