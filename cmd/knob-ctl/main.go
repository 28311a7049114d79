package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"
)

// ============================================================================
// knob-ctl - Command-line IPC Client
// ============================================================================
// Injects knob events into a running knobpanel daemon.
//
// Usage:
//   knob-ctl left
//   knob-ctl long-press right right click
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/knobpanel.sock)
//   -delay MS       Pause between events in milliseconds (default: 0)
// ============================================================================

// EventEnvelope is the daemon's wire format: {"type": "left"}.
type EventEnvelope struct {
	Type string `json:"type"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func main() {
	socketPath := "/tmp/knobpanel.sock"
	var delay time.Duration

	args := os.Args[1:]
	for len(args) > 0 {
		switch args[0] {
		case "-socket", "--socket":
			if len(args) < 2 {
				fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
				os.Exit(1)
			}
			socketPath = args[1]
			args = args[2:]
			continue
		case "-delay", "--delay":
			if len(args) < 2 {
				fmt.Fprintf(os.Stderr, "error: -delay requires an argument\n")
				os.Exit(1)
			}
			var ms int
			if _, err := fmt.Sscanf(args[1], "%d", &ms); err != nil || ms < 0 {
				fmt.Fprintf(os.Stderr, "error: invalid delay: %s\n", args[1])
				os.Exit(1)
			}
			delay = time.Duration(ms) * time.Millisecond
			args = args[2:]
			continue
		}
		break
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var events []string
	for _, a := range args {
		switch a {
		case "left", "l", "ccw":
			events = append(events, "left")
		case "right", "r", "cw":
			events = append(events, "right")
		case "click", "c":
			events = append(events, "click")
		case "long-press", "long_press", "long", "lp":
			events = append(events, "long_press")
		case "help", "-h", "--help":
			printUsage()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", a)
			printUsage()
			os.Exit(1)
		}
	}

	if err := sendEvents(socketPath, events, delay); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("ok")
}

// sendEvents sends all events over one connection so the daemon queues them
// in order.
func sendEvents(socketPath string, events []string, delay time.Duration) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	for i, ev := range events {
		if i > 0 && delay > 0 {
			time.Sleep(delay)
		}

		data, err := json.Marshal(EventEnvelope{Type: ev})
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
			return fmt.Errorf("send %s: %w", ev, err)
		}

		line, err := r.ReadBytes('\n')
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		var response IPCResponse
		if err := json.Unmarshal(line, &response); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if response.Status == "error" {
			return fmt.Errorf("daemon error on %s: %s", ev, response.Error)
		}
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `knob-ctl - Inject knob events into the knobpanel daemon via IPC

Usage:
  knob-ctl [options] <event> [event...]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/knobpanel.sock)
  -delay MS       Pause between events in milliseconds (default: 0)

Events:
  left, l, ccw            One detent counter-clockwise
  right, r, cw            One detent clockwise
  click, c                Short button press
  long-press, lp          Long button press (enter/leave screen selection)
  help, -h, --help        Show this help message

Examples:
  knob-ctl right
  knob-ctl long-press right click
  knob-ctl -delay 200 right right right
  knob-ctl -socket /run/knobpanel.sock click
`)
}
