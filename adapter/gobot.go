package adapter

import (
	"time"

	"gobot.io/x/gobot/v2/drivers/gpio"

	"github.com/mklimuk/spimem"
)

var _ spimem.SignalDriver = &GobotSignalDriver{}

// DigitalPinConnection is the subset of a gobot adaptor needed to bit-bang
// the bus: digital writes for CS, clock and MOSI, digital reads for MISO.
// Every gobot platform adaptor with GPIO support satisfies it.
type DigitalPinConnection interface {
	gpio.DigitalWriter
	gpio.DigitalReader
}

// GobotPins names the four bus lines using the adaptor's own pin
// numbering, e.g. "7" on a sysfs adaptor.
type GobotPins struct {
	CS    string `yaml:"cs"`
	Clock string `yaml:"clock"`
	MOSI  string `yaml:"mosi"`
	MISO  string `yaml:"miso"`
}

// GobotSignalDriver implements the signal contract over a gobot adaptor's
// digital pins, so any board gobot supports can drive the bus without a
// hardware SPI peripheral. Pin failures are recorded and exposed through
// Err, as the contract itself is error-free.
type GobotSignalDriver struct {
	conn       DigitalPinConnection
	pins       GobotPins
	halfPeriod time.Duration
	err        error
}

// GobotOption configures a GobotSignalDriver.
type GobotOption func(*GobotSignalDriver)

// WithGobotClockPeriod sets the full clock period (default 10µs).
func WithGobotClockPeriod(period time.Duration) GobotOption {
	return func(d *GobotSignalDriver) { d.halfPeriod = period / 2 }
}

// NewGobotSignalDriver wires the named pins of a started adaptor and parks
// the bus (CS high, clock low). The adaptor must already be connected.
func NewGobotSignalDriver(conn DigitalPinConnection, pins GobotPins, opts ...GobotOption) *GobotSignalDriver {
	d := &GobotSignalDriver{
		conn:       conn,
		pins:       pins,
		halfPeriod: 5 * time.Microsecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.write(pins.CS, 1)
	d.write(pins.Clock, 0)
	d.write(pins.MOSI, 0)
	return d
}

func (d *GobotSignalDriver) CSLow()  { d.write(d.pins.CS, 0) }
func (d *GobotSignalDriver) CSHigh() { d.write(d.pins.CS, 1) }

func (d *GobotSignalDriver) WriteMOSI(bit bool) {
	var level byte
	if bit {
		level = 1
	}
	d.write(d.pins.MOSI, level)
}

func (d *GobotSignalDriver) ReadMISO() bool {
	value, err := d.conn.DigitalRead(d.pins.MISO)
	if err != nil && d.err == nil {
		d.err = err
	}
	return value == 1
}

func (d *GobotSignalDriver) PulseClock() {
	d.write(d.pins.Clock, 1)
	time.Sleep(d.halfPeriod)
	d.write(d.pins.Clock, 0)
	time.Sleep(d.halfPeriod)
}

func (d *GobotSignalDriver) DelayMicroseconds(us uint) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}

// Err returns the first pin failure observed since the last call and
// clears it.
func (d *GobotSignalDriver) Err() error {
	err := d.err
	d.err = nil
	return err
}

func (d *GobotSignalDriver) write(pin string, level byte) {
	if err := d.conn.DigitalWrite(pin, level); err != nil && d.err == nil {
		d.err = err
	}
}
