package main

import (
	"fmt"
	"image"
	"log/slog"
	"time"
)

// ============================================================================
// Render loop
// ============================================================================
// The render goroutine is the only caller of Screen methods. Each frame it:
//   - clears the canvas
//   - runs one dispatcher tick (at most one event, exactly one screen draw)
//   - presents the canvas on the sink
//   - optionally hands a copy to the preview server
//
// Frame cadence is bounded by the sink's present latency. minFrame only keeps
// a sink without vsync from spinning the CPU.
//
// The shutdown flag is checked once per frame. On exit the panel is cleared and
// presented exactly once so it does not keep showing the last frame.
// ============================================================================

// FrameSink presents finished frames on a physical or virtual display.
type FrameSink interface {
	Present(frame image.Image) error
	Close() error
}

// frameFlusher is implemented by sinks that may skip frames in Present.
// Flush always reaches the display.
type frameFlusher interface {
	Flush(frame image.Image) error
}

// nullSink discards frames (headless runs, preview-only setups).
type nullSink struct{}

func (nullSink) Present(image.Image) error { return nil }
func (nullSink) Close() error              { return nil }

// previewFrame is a frame copy handed to the preview server.
type previewFrame struct {
	Image *image.RGBA
	At    time.Time
}

type renderHost struct {
	dispatcher *Dispatcher
	canvas     *Canvas
	sink       FrameSink
	minFrame   time.Duration

	// preview is optional. At most one copy per previewEvery is taken.
	preview      *Mailbox[previewFrame]
	previewEvery time.Duration
	lastPreview  time.Time

	sleep  func(time.Duration)
	logger *slog.Logger
}

func newRenderHost(d *Dispatcher, c *Canvas, sink FrameSink, minFrame time.Duration, logger *slog.Logger) *renderHost {
	return &renderHost{
		dispatcher: d,
		canvas:     c,
		sink:       sink,
		minFrame:   minFrame,
		sleep:      time.Sleep,
		logger:     logger,
	}
}

// withPreview enables frame handoff to mb at most fps times per second.
func (h *renderHost) withPreview(mb *Mailbox[previewFrame], fps int) *renderHost {
	if mb != nil && fps > 0 {
		h.preview = mb
		h.previewEvery = time.Second / time.Duration(fps)
	}
	return h
}

// Run renders until stop is requested. It returns an error only if the sink
// fails; the final clear is still attempted in that case.
func (h *renderHost) Run(stop *shutdownFlag) error {
	h.logger.Info("render loop started", "screen", h.dispatcher.ActiveName())

	var frames uint64
	var runErr error
	for !stop.Requested() {
		start := time.Now()

		h.canvas.Clear(colorBlack)
		h.dispatcher.Tick(h.canvas)
		if err := h.sink.Present(h.canvas); err != nil {
			runErr = fmt.Errorf("present frame %d: %w", frames, err)
			break
		}
		frames++
		h.publishPreview(start)

		if rem := h.minFrame - time.Since(start); rem > 0 {
			h.sleep(rem)
		}
	}

	h.canvas.Clear(colorBlack)
	if err := h.presentFinal(); err != nil && runErr == nil {
		runErr = fmt.Errorf("clear display: %w", err)
	}

	h.logger.Info("render loop stopped", "frames", frames)
	return runErr
}

func (h *renderHost) presentFinal() error {
	if f, ok := h.sink.(frameFlusher); ok {
		return f.Flush(h.canvas)
	}
	return h.sink.Present(h.canvas)
}

func (h *renderHost) publishPreview(now time.Time) {
	if h.preview == nil || now.Sub(h.lastPreview) < h.previewEvery {
		return
	}
	h.lastPreview = now
	if err := h.preview.Put(previewFrame{Image: h.canvas.Snapshot(), At: now}); err != nil {
		h.logger.Warn("preview disabled", "error", err)
		h.preview = nil
	}
}
