package main

import (
	"encoding/hex"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/spimem/cmd/spimem/console"
	eeprom "github.com/mklimuk/spimem/memory/25lc040a"
)

var writeCmd = cli.Command{
	Name:  "write",
	Usage: "write bytes to the EEPROM",
	Flags: append([]cli.Flag{
		&cli.IntFlag{Name: "address", Usage: "start address", Required: true},
		&cli.StringFlag{Name: "data", Usage: "hex bytes to write (e.g. '01FF23')", Required: true},
	}, hardwareFlags...),
	Action: func(c *cli.Context) error {
		addr, err := parseAddress(c)
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		data, err := hex.DecodeString(c.String("data"))
		if err != nil {
			return console.Exit(1, "could not decode data: %v", err)
		}
		if int(addr)+len(data) > eeprom.Capacity {
			return console.Exit(1, "write of %d bytes at %d exceeds capacity", len(data), addr)
		}
		e, cleanup, err := openDevice(c)
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		defer cleanup()
		if err = e.WriteArray(deviceContext(c), addr, data); err != nil {
			return console.Exit(1, "write failed: %v", err)
		}
		console.Infof("wrote %d bytes at %#04x", len(data), addr)
		return nil
	},
}
