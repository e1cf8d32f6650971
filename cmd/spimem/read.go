package main

import (
	"encoding/hex"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/spimem/cmd/spimem/console"
	eeprom "github.com/mklimuk/spimem/memory/25lc040a"
)

var readCmd = cli.Command{
	Name:  "read",
	Usage: "read a range of EEPROM bytes",
	Flags: append([]cli.Flag{
		&cli.IntFlag{Name: "address", Usage: "start address", Required: true},
		&cli.IntFlag{Name: "length", Usage: "number of bytes to read", Value: 16},
	}, hardwareFlags...),
	Action: func(c *cli.Context) error {
		addr, err := parseAddress(c)
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		length := c.Int("length")
		if length <= 0 || int(addr)+length > eeprom.Capacity {
			return console.Exit(1, "length out of range: %d", length)
		}
		e, cleanup, err := openDevice(c)
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		defer cleanup()
		data, err := e.ReadArray(deviceContext(c), addr, length)
		if err != nil {
			return console.Exit(1, "read failed: %v", err)
		}
		fmt.Print(hex.Dump(data))
		return nil
	},
}

var dumpCmd = cli.Command{
	Name:  "dump",
	Usage: "dump the whole 512-byte device",
	Flags: hardwareFlags,
	Action: func(c *cli.Context) error {
		e, cleanup, err := openDevice(c)
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		defer cleanup()
		data, err := e.ReadArray(deviceContext(c), 0, eeprom.Capacity)
		if err != nil {
			return console.Exit(1, "dump failed: %v", err)
		}
		fmt.Print(hex.Dump(data))
		return nil
	},
}

var statusCmd = cli.Command{
	Name:  "status",
	Usage: "read the device STATUS register",
	Flags: hardwareFlags,
	Action: func(c *cli.Context) error {
		e, cleanup, err := openDevice(c)
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		defer cleanup()
		status, err := e.ReadStatus(deviceContext(c))
		if err != nil {
			return console.Exit(1, "status read failed: %v", err)
		}
		state := console.Green("idle")
		if status&0x01 != 0 {
			state = console.Yellow("write in progress")
		}
		fmt.Printf("STATUS: %#02x (%s)\n", status, state)
		return nil
	},
}
