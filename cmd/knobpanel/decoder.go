package main

import (
	"log/slog"
	"time"
)

// ============================================================================
// Decode goroutine
// ============================================================================
// Waits for line edges, turns rotation edges into Left/Right through the
// quadrature decoder, and turns a button falling edge into Click/LongPress by
// polling the button level.
//
// The bounded edge wait doubles as the shutdown poll, so an idle knob notices
// shutdown within edgeWaitTimeout. While a button press is being classified,
// shutdown is noticed only after the press resolves.
//
// Any LineSource error ends the goroutine. Nothing is retried.
// ============================================================================

const edgeWaitTimeout = 1 * time.Second

// buttonSettle is how long button falling edges are ignored once a press has
// been classified. Contact bounce queued during classification lands inside it.
const buttonSettle = 50 * time.Millisecond

// eventSink is the producer side of the event FIFO.
type eventSink interface {
	Push(ev InputEvent)
}

type knobDecoder struct {
	src    LineSource
	out    eventSink
	quad   quadratureDecoder
	hold   *holdTimer
	logger *slog.Logger

	// resolvedAt is when the last press was classified (zero before the first).
	resolvedAt time.Time
}

func newKnobDecoder(src LineSource, out eventSink, logger *slog.Logger) *knobDecoder {
	return &knobDecoder{
		src:    src,
		out:    out,
		hold:   newHoldTimer(),
		logger: logger,
	}
}

// Run decodes until stop is requested (returns nil) or the line source fails
// (returns the error).
func (d *knobDecoder) Run(stop *shutdownFlag) error {
	d.logger.Info("decoder started")

	for !stop.Requested() {
		edge, ok, err := d.src.WaitEdge(edgeWaitTimeout)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := d.handleEdge(edge); err != nil {
			return err
		}
	}

	d.logger.Info("decoder stopped")
	return nil
}

func (d *knobDecoder) handleEdge(edge Edge) error {
	switch edge.Line {
	case LineA, LineB:
		// Sample both lines now; the edge level alone is not enough once
		// edges have been coalesced or lost.
		a, err := d.src.Level(LineA)
		if err != nil {
			return err
		}
		b, err := d.src.Level(LineB)
		if err != nil {
			return err
		}
		if ev, ok := d.quad.Step(a, b); ok {
			d.logger.Debug("knob turned", "event", ev.String())
			d.out.Push(ev)
		}

	case LineButton:
		if edge.Level != Low {
			return nil
		}
		if !d.resolvedAt.IsZero() && d.hold.now().Sub(d.resolvedAt) < buttonSettle {
			d.logger.Debug("button bounce ignored")
			return nil
		}
		ev, err := d.hold.Classify(func() (Level, error) {
			return d.src.Level(LineButton)
		})
		if err != nil {
			return err
		}
		d.resolvedAt = d.hold.now()
		d.logger.Debug("button pressed", "event", ev.String())
		d.out.Push(ev)
	}
	return nil
}
