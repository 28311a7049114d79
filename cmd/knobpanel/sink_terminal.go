package main

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	ansiClearScreen = "\x1b[2J"
	ansiHome        = "\x1b[H"
	ansiHideCursor  = "\x1b[?25l"
	ansiShowCursor  = "\x1b[?25h"
)

// terminalSink draws frames in the terminal for development without a panel.
// Each character cell shows two vertical pixels: the upper half block takes
// the top pixel as foreground and the bottom pixel as background.
//
// Frames are rate-limited to the configured fps; the render loop itself may
// run much faster.
type terminalSink struct {
	w        io.Writer
	interval time.Duration
	now      func() time.Time

	last    time.Time
	started bool
	styles  map[[2]color.RGBA]lipgloss.Style
}

func newTerminalSink(w io.Writer, fps int) *terminalSink {
	return &terminalSink{
		w:        w,
		interval: time.Second / time.Duration(fps),
		now:      time.Now,
		styles:   make(map[[2]color.RGBA]lipgloss.Style),
	}
}

func (s *terminalSink) Present(frame image.Image) error {
	now := s.now()
	if s.started && now.Sub(s.last) < s.interval {
		return nil
	}
	s.last = now
	return s.write(frame)
}

// Flush writes frame regardless of the fps limit.
func (s *terminalSink) Flush(frame image.Image) error {
	s.last = s.now()
	return s.write(frame)
}

func (s *terminalSink) write(frame image.Image) error {
	var b strings.Builder
	if !s.started {
		b.WriteString(ansiClearScreen + ansiHideCursor)
		s.started = true
	}
	b.WriteString(ansiHome)
	s.render(&b, frame)

	if _, err := io.WriteString(s.w, b.String()); err != nil {
		return fmt.Errorf("terminal write: %w", err)
	}
	return nil
}

func (s *terminalSink) render(b *strings.Builder, frame image.Image) {
	r := frame.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y += 2 {
		for x := r.Min.X; x < r.Max.X; x++ {
			top := toRGBA(frame.At(x, y))
			bottom := colorBlack
			if y+1 < r.Max.Y {
				bottom = toRGBA(frame.At(x, y+1))
			}
			b.WriteString(s.style(top, bottom).Render("▀"))
		}
		b.WriteByte('\n')
	}
}

func (s *terminalSink) style(top, bottom color.RGBA) lipgloss.Style {
	key := [2]color.RGBA{top, bottom}
	if st, ok := s.styles[key]; ok {
		return st
	}
	st := lipgloss.NewStyle().
		Foreground(lipgloss.Color(hexColor(top))).
		Background(lipgloss.Color(hexColor(bottom)))
	s.styles[key] = st
	return st
}

func (s *terminalSink) Close() error {
	if !s.started {
		return nil
	}
	_, err := io.WriteString(s.w, ansiShowCursor+"\n")
	return err
}

func toRGBA(c color.Color) color.RGBA {
	return color.RGBAModel.Convert(c).(color.RGBA)
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
