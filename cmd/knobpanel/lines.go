package main

import (
	"fmt"
	"time"
)

// Line identifies one of the three knob signals.
type Line uint8

const (
	LineA Line = iota
	LineB
	LineButton

	lineCount
)

func (l Line) String() string {
	switch l {
	case LineA:
		return "a"
	case LineB:
		return "b"
	case LineButton:
		return "button"
	default:
		return fmt.Sprintf("line(%d)", uint8(l))
	}
}

// Level is the electrical level of a line. All lines are pulled up, so a
// closed contact or a pressed button reads Low.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// Edge is a level change observed on a line.
type Edge struct {
	Line  Line
	Level Level
}

// LineSource is the hardware side of the decoder: the three knob lines with
// current-level reads and a bounded wait for the next edge.
//
// A LineSource is owned by the decode goroutine only.
type LineSource interface {
	// Level reads the current level of a line.
	Level(line Line) (Level, error)

	// WaitEdge blocks until an edge is observed or timeout elapses.
	// ok is false on timeout.
	WaitEdge(timeout time.Duration) (edge Edge, ok bool, err error)

	Close() error
}

// HardwareError reports a failure to open, configure, read or wait on a line.
// It ends the decode goroutine.
type HardwareError struct {
	Op   string
	Line string
	Err  error
}

func (e *HardwareError) Error() string {
	if e.Line != "" {
		return fmt.Sprintf("hardware %s %s: %v", e.Op, e.Line, e.Err)
	}
	return fmt.Sprintf("hardware %s: %v", e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error { return e.Err }
