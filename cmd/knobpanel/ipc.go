package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// External tools (knob-ctl, scripts, test rigs) inject input events into the
// same FIFO the knob decoder feeds. Events from one connection keep their
// order; connections interleave arbitrarily.
//
// Protocol: line-delimited JSON
//   - Client sends: {"type": "left" | "right" | "click" | "long_press"}
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
// ============================================================================

// IPCResponse is sent back for every request line.
type IPCResponse struct {
	Status string `json:"status"`          // "ok" or "error"
	Error  string `json:"error,omitempty"` // set when Status == "error"
}

// runIPCServer serves the socket until ctx is canceled.
func runIPCServer(ctx context.Context, socketPath string, events eventSink, logger *slog.Logger) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0o660); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("ipc listening", "socket", socketPath)

	// Closing the listener unblocks Accept.
	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("ipc listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection") {
				logger.Debug("ipc listener closed")
				return nil
			}
			logger.Error("ipc accept error", "error", err)
			continue
		}

		go handleIPCConnection(conn, events, logger)
	}
}

// handleIPCConnection processes request lines until the client hangs up.
func handleIPCConnection(conn net.Conn, events eventSink, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("ipc connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("ipc received", "line", line)

		resp := IPCResponse{Status: "ok"}
		ev, err := UnmarshalEvent([]byte(line))
		if err != nil {
			resp = IPCResponse{Status: "error", Error: fmt.Sprintf("parse event: %v", err)}
		} else {
			events.Push(ev)
		}

		if err := encoder.Encode(resp); err != nil {
			logger.Error("ipc failed to send response", "error", err)
			return
		}
	}

	logger.Debug("ipc connection closed")
}
