package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/spimem/cmd/spimem/console"
	eeprom "github.com/mklimuk/spimem/memory/25lc040a"
)

var monitorCmd = cli.Command{
	Name:  "monitor",
	Usage: "interactive peek/poke session on the device",
	Flags: hardwareFlags,
	Action: func(c *cli.Context) error {
		e, cleanup, err := openDevice(c)
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		defer cleanup()
		ctx := deviceContext(c)
		console.Infof("commands: r <addr> [len] | w <addr> <hex> | s | q")
		for {
			line, err := console.Prompt("spimem> ")
			if err != nil {
				// readline returns an error on EOF / interrupt
				return nil
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			switch fields[0] {
			case "q", "quit":
				return nil
			case "s":
				status, err := e.ReadStatus(ctx)
				if err != nil {
					console.Errorf("status read failed: %v", err)
					continue
				}
				fmt.Printf("STATUS: %#02x\n", status)
			case "r":
				addr, length, err := parseMonitorRead(fields[1:])
				if err != nil {
					console.Errorf("%v", err)
					continue
				}
				data, err := e.ReadArray(ctx, addr, length)
				if err != nil {
					console.Errorf("read failed: %v", err)
					continue
				}
				fmt.Print(hex.Dump(data))
			case "w":
				if len(fields) != 3 {
					console.Errorf("usage: w <addr> <hex>")
					continue
				}
				addr, err := parseMonitorAddress(fields[1])
				if err != nil {
					console.Errorf("%v", err)
					continue
				}
				data, err := hex.DecodeString(fields[2])
				if err != nil {
					console.Errorf("could not decode data: %v", err)
					continue
				}
				if err = e.WriteArray(ctx, addr, data); err != nil {
					console.Errorf("write failed: %v", err)
					continue
				}
				console.Infof("wrote %d bytes at %#04x", len(data), addr)
			default:
				console.Warnf("unknown command %q", fields[0])
			}
		}
	},
}

func parseMonitorAddress(arg string) (uint16, error) {
	addr, err := strconv.ParseUint(arg, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("could not parse address %q: %w", arg, err)
	}
	if addr >= eeprom.Capacity {
		return 0, fmt.Errorf("address out of range (0-%d): %d", eeprom.Capacity-1, addr)
	}
	return uint16(addr), nil
}

func parseMonitorRead(args []string) (uint16, int, error) {
	if len(args) == 0 || len(args) > 2 {
		return 0, 0, fmt.Errorf("usage: r <addr> [len]")
	}
	addr, err := parseMonitorAddress(args[0])
	if err != nil {
		return 0, 0, err
	}
	length := 16
	if len(args) == 2 {
		parsed, err := strconv.Atoi(args[1])
		if err != nil {
			return 0, 0, fmt.Errorf("could not parse length %q: %w", args[1], err)
		}
		length = parsed
	}
	if length <= 0 || int(addr)+length > eeprom.Capacity {
		return 0, 0, fmt.Errorf("length out of range: %d", length)
	}
	return addr, length, nil
}
