// flexpwm-host is an interactive console for a device running the
// flexpwm firmware or the simulator target.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"flexpwm/host/link"
	"flexpwm/host/serial"
)

var (
	device  = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud    = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
	verbose = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud

	log.WithField("device", *device).Info("connecting")
	console, err := link.ConnectWithConfig(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to connect")
	}
	defer console.Close()
	console.Logger = log

	if err := console.RetrieveDictionary(); err != nil {
		log.WithError(err).Fatal("failed to retrieve dictionary")
	}
	console.PrintDictionary()

	repl(console, log)
}

func repl(console *link.Console, log *logrus.Logger) {
	fmt.Println("Enter commands ('help' for a list, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)

		switch parts[0] {
		case "quit", "exit", "q":
			return

		case "help", "?":
			printHelp()

		case "dict":
			console.PrintDictionary()

		case "raw":
			raw := console.RawDictionary()
			fmt.Printf("Raw dictionary (%d bytes):\n%s\n", len(raw), raw)

		case "clock":
			doClock(console)

		case "status":
			doStatus(console, parts[1:])

		case "level":
			doLevel(console, parts[1:])

		case "send":
			doSend(console, parts[1:])

		default:
			fmt.Printf("Unknown command: %s ('help' for a list)\n", parts[0])
		}
	}

	if err := scanner.Err(); err != nil {
		log.WithError(err).Error("reading input")
	}
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  help                  - Show this help message")
	fmt.Println("  dict                  - Print dictionary summary")
	fmt.Println("  raw                   - Print raw dictionary JSON")
	fmt.Println("  clock                 - Query the FlexIO clock frequency")
	fmt.Println("  status <channel>      - Query one timer channel's PWM status")
	fmt.Println("  level <channel> <pin> - Query the output level of a pin")
	fmt.Println("  send <command>        - Send any no-argument command")
	fmt.Println("  quit/exit/q           - Exit")
	fmt.Println()
}

func doClock(console *link.Console) {
	clock, err := console.ClockHz()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Printf("FlexIO clock: %d Hz\n", clock)
}

func doStatus(console *link.Console, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: status <channel>")
		return
	}
	channel, err := parseU8(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	status, err := console.PWMStatus(channel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Printf("channel %d: duty=%d%% state=%s compare=0x%04x\n",
		status.Channel, status.Duty, status.State, status.Compare)
}

func doLevel(console *link.Console, args []string) {
	if len(args) != 2 {
		fmt.Println("Usage: level <channel> <pin>")
		return
	}
	channel, err := parseU8(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	pin, err := parseU8(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	level, err := console.OutputLevel(channel, pin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	if !level.Valid {
		fmt.Println("pin status not supported by this device")
		return
	}
	state := "low"
	if level.Level {
		state = "high"
	}
	fmt.Printf("channel %d pin %d: %s\n", level.Channel, level.Pin, state)
}

func doSend(console *link.Console, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: send <command>")
		return
	}
	if err := console.Send(args[0], nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Println("sent")
}

func parseU8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("not a number in 0-255: %q", s)
	}
	return uint8(v), nil
}
