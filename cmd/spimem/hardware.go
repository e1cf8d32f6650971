package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/spimem"
	"github.com/mklimuk/spimem/adapter"
	"github.com/mklimuk/spimem/cmd/spimem/console"
	"github.com/mklimuk/spimem/gpio"
	eeprom "github.com/mklimuk/spimem/memory/25lc040a"
	"github.com/mklimuk/spimem/spi"
)

// Flags shared by every command that touches the bus. The backend is
// either four host GPIO lines described by a yaml pin map or an MCP2221
// USB bridge.
var hardwareFlags = []cli.Flag{
	&cli.StringFlag{Name: "pins", Usage: "yaml file mapping cs/clock/mosi/miso to GPIO pin names"},
	&cli.BoolFlag{Name: "mcp2221", Usage: "drive the bus through an MCP2221 USB bridge"},
	&cli.DurationFlag{Name: "clock-period", Usage: "full clock period for GPIO backends", Value: 10 * time.Microsecond},
	&cli.DurationFlag{Name: "write-timeout", Usage: "bound on the write completion poll (0 polls forever)", Value: 5 * time.Millisecond},
}

func deviceContext(c *cli.Context) context.Context {
	return console.SetVerbose(c.Context, c.Bool("verbose"))
}

// openDevice builds the signal driver selected by the flags, stacks the
// transfer engine and the EEPROM driver on top and returns a cleanup
// function releasing the backend.
func openDevice(c *cli.Context) (*eeprom.EEPROM25LC040A, func(), error) {
	drv, cleanup, err := openSignalDriver(c)
	if err != nil {
		return nil, nil, err
	}
	e := eeprom.New(spi.NewTransfer(drv), eeprom.WithWriteTimeout(c.Duration("write-timeout")))
	return e, cleanup, nil
}

func openSignalDriver(c *cli.Context) (spimem.SignalDriver, func(), error) {
	if c.Bool("mcp2221") {
		dev := adapter.NewMCP2221()
		if err := dev.Open(); err != nil {
			return nil, nil, fmt.Errorf("could not open MCP2221: %w", err)
		}
		bridge := adapter.NewMCP2221SignalDriver(dev)
		if err := bridge.Configure(deviceContext(c)); err != nil {
			_ = dev.Close()
			return nil, nil, err
		}
		return bridge, func() { _ = dev.Close() }, nil
	}
	path := c.String("pins")
	if path == "" {
		return nil, nil, fmt.Errorf("either --pins or --mcp2221 is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("could not read pin map: %w", err)
	}
	var pins gpio.Pins
	if err = yaml.Unmarshal(raw, &pins); err != nil {
		return nil, nil, fmt.Errorf("could not parse pin map: %w", err)
	}
	pinDrv, err := gpio.NewPinSignalDriver(pins, gpio.WithClockPeriod(c.Duration("clock-period")))
	if err != nil {
		return nil, nil, err
	}
	return pinDrv, func() {}, nil
}

func parseAddress(c *cli.Context) (uint16, error) {
	addr := c.Int("address")
	if addr < 0 || addr >= eeprom.Capacity {
		return 0, fmt.Errorf("address out of range (0-%d): %d", eeprom.Capacity-1, addr)
	}
	return uint16(addr), nil
}
