package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/spimem/cmd/spimem/console"
)

var bitsCmd = cli.Command{
	Name:  "bits",
	Usage: "bit-granular access to the EEPROM",
	Subcommands: cli.Commands{
		&bitsReadCmd,
		&bitsWriteCmd,
	},
}

var bitFlags = []cli.Flag{
	&cli.IntFlag{Name: "address", Usage: "byte address the span starts in", Required: true},
	&cli.UintFlag{Name: "offset", Usage: "bit offset within the first byte (0-7)"},
	&cli.UintFlag{Name: "count", Usage: "number of bits (1-32)", Value: 1},
}

var bitsReadCmd = cli.Command{
	Name:  "read",
	Usage: "read up to 32 bits",
	Flags: append(append([]cli.Flag{}, bitFlags...), hardwareFlags...),
	Action: func(c *cli.Context) error {
		addr, err := parseAddress(c)
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		e, cleanup, err := openDevice(c)
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		defer cleanup()
		value, err := e.ReadBits(deviceContext(c), addr, c.Uint("offset"), c.Uint("count"))
		if err != nil {
			return console.Exit(1, "bit read failed: %v", err)
		}
		fmt.Printf("%#x (%d bits at %#04x+%d)\n", value, c.Uint("count"), addr, c.Uint("offset"))
		return nil
	},
}

var bitsWriteCmd = cli.Command{
	Name:  "write",
	Usage: "write up to 32 bits, leaving surrounding bits untouched",
	Flags: append(append([]cli.Flag{
		&cli.Uint64Flag{Name: "value", Usage: "value to store in the span", Required: true},
	}, bitFlags...), hardwareFlags...),
	Action: func(c *cli.Context) error {
		addr, err := parseAddress(c)
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		e, cleanup, err := openDevice(c)
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		defer cleanup()
		err = e.WriteBits(deviceContext(c), addr, c.Uint("offset"), c.Uint("count"), uint32(c.Uint64("value")))
		if err != nil {
			return console.Exit(1, "bit write failed: %v", err)
		}
		console.Infof("wrote %d bits at %#04x+%d", c.Uint("count"), addr, c.Uint("offset"))
		return nil
	},
}
