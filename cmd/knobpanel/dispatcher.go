package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ============================================================================
// Screen Dispatcher
// ============================================================================
// The dispatcher owns the ordered screen list, the active index, and the
// Normal/Selecting mode. It is driven one tick per rendered frame:
//
//   - take at most one pending input event (extra events wait for later ticks)
//   - reduce it against the current state
//   - draw the active screen exactly once
//   - draw the selection border on top while Selecting
//
// reduceDispatch is pure; Tick is the only place screen methods are invoked.
// ============================================================================

// Mode is the dispatcher mode.
type Mode uint8

const (
	ModeNormal Mode = iota
	ModeSelecting
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeSelecting:
		return "selecting"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// DispatcherState is the complete dispatcher state.
// Invariant: 0 <= ScreenIndex < number of screens.
type DispatcherState struct {
	ScreenIndex int
	Mode        Mode
}

// dispatchResult is the outcome of reducing one event.
type dispatchResult struct {
	State DispatcherState

	// Forward means the event belongs to the active screen.
	Forward bool
}

// reduceDispatch applies one input event to the dispatcher state.
//
//	Normal    + LongPress        -> Selecting
//	Normal    + Left/Right/Click -> forwarded, stays Normal
//	Selecting + Left             -> previous screen (wraps)
//	Selecting + Right            -> next screen (wraps)
//	Selecting + Click/LongPress  -> Normal, event swallowed
func reduceDispatch(s DispatcherState, ev InputEvent, n int) dispatchResult {
	switch s.Mode {
	case ModeNormal:
		if ev == EventLongPress {
			s.Mode = ModeSelecting
			return dispatchResult{State: s}
		}
		return dispatchResult{State: s, Forward: true}

	case ModeSelecting:
		switch ev {
		case EventLeft:
			s.ScreenIndex = wrapIndex(s.ScreenIndex-1, n)
		case EventRight:
			s.ScreenIndex = wrapIndex(s.ScreenIndex+1, n)
		case EventClick, EventLongPress:
			s.Mode = ModeNormal
		}
		return dispatchResult{State: s}
	}
	return dispatchResult{State: s}
}

// wrapIndex returns i mod n in [0, n).
func wrapIndex(i, n int) int {
	r := i % n
	if r < 0 {
		r += n
	}
	return r
}

// eventSource is the consumer side of the event FIFO.
type eventSource interface {
	TryPop() (InputEvent, bool)
}

// StateBroadcast is emitted every time the dispatcher state changes.
type StateBroadcast struct {
	State      DispatcherState
	ScreenName string
	At         time.Time
}

// Dispatcher routes input events to screens and draws the active one.
// It is owned by the render goroutine.
type Dispatcher struct {
	screens []NamedScreen
	state   DispatcherState
	events  eventSource

	// broadcasts is optional; sends never block.
	broadcasts chan<- StateBroadcast

	logger *slog.Logger
}

// NewDispatcher returns a dispatcher in Normal mode on the first screen.
func NewDispatcher(events eventSource, screens []NamedScreen, broadcasts chan<- StateBroadcast, logger *slog.Logger) (*Dispatcher, error) {
	if len(screens) == 0 {
		return nil, errors.New("dispatcher needs at least one screen")
	}
	for i, s := range screens {
		if s.Screen == nil {
			return nil, fmt.Errorf("screen %d (%q) is nil", i, s.Name)
		}
	}
	return &Dispatcher{
		screens:    screens,
		events:     events,
		broadcasts: broadcasts,
		logger:     logger,
	}, nil
}

// State returns the current dispatcher state.
func (d *Dispatcher) State() DispatcherState { return d.state }

// ActiveName returns the name of the active screen.
func (d *Dispatcher) ActiveName() string { return d.screens[d.state.ScreenIndex].Name }

// Tick runs one frame of the dispatcher against s.
func (d *Dispatcher) Tick(s Surface) {
	if ev, ok := d.events.TryPop(); ok {
		d.apply(ev)
	}

	d.screens[d.state.ScreenIndex].Screen.Draw(s)
	if d.state.Mode == ModeSelecting {
		drawSelectionOverlay(s)
	}
}

func (d *Dispatcher) apply(ev InputEvent) {
	rr := reduceDispatch(d.state, ev, len(d.screens))

	if rr.Forward {
		active := d.screens[d.state.ScreenIndex].Screen
		switch ev {
		case EventLeft:
			active.Left()
		case EventRight:
			active.Right()
		case EventClick:
			active.Click()
		}
	}

	if rr.State == d.state {
		return
	}
	d.state = rr.State
	d.logger.Debug("dispatcher state changed",
		"screen", d.ActiveName(),
		"screen_index", d.state.ScreenIndex,
		"mode", d.state.Mode.String())
	d.publish()
}

func (d *Dispatcher) publish() {
	if d.broadcasts == nil {
		return
	}
	b := StateBroadcast{
		State:      d.state,
		ScreenName: d.ActiveName(),
		At:         time.Now().UTC(),
	}
	select {
	case d.broadcasts <- b:
	default:
		d.logger.Warn("state broadcast queue full, dropping update")
	}
}

// drawSelectionOverlay frames the whole surface with a 1px white border.
func drawSelectionOverlay(s Surface) {
	w, h := s.Size()
	strokeRect(s, 0, 0, w, h, colorWhite)
}
