package main

import (
	"image/color"
	"log/slog"
	"time"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

const (
	sensorLoadingText = "Loading..."

	// The sensor line advances one pixel every scrollFramesPerPixel frames.
	scrollFramesPerPixel = 7
)

var textFont = &proggy.TinySZ8pt7b

// sensorPalette is the set of backgrounds Left/Right cycle through.
var sensorPalette = []color.RGBA{
	{R: 0x20, G: 0x08, B: 0x18, A: 0xff},
	{R: 0x04, G: 0x10, B: 0x28, A: 0xff},
	{R: 0x06, G: 0x1c, B: 0x0c, A: 0xff},
	{R: 0x28, G: 0x14, B: 0x00, A: 0xff},
	colorBlack,
}

// sensorScreen shows a wall clock and a scrolling line with the latest sensor
// reading. Readings arrive through a mailbox that is drained once per frame.
type sensorScreen struct {
	readings *Mailbox[SensorReading]
	now      func() time.Time
	logger   *slog.Logger

	palette int
	paused  bool
	text    string

	// scroll is the pixel offset of the sensor line; sub counts frames
	// towards the next pixel.
	scroll, sub int

	mailboxFailed bool
}

func newSensorScreen(readings *Mailbox[SensorReading], logger *slog.Logger) *sensorScreen {
	return &sensorScreen{
		readings: readings,
		now:      time.Now,
		logger:   logger,
		text:     sensorLoadingText,
	}
}

func (s *sensorScreen) Left()  { s.palette = wrapIndex(s.palette-1, len(sensorPalette)) }
func (s *sensorScreen) Right() { s.palette = wrapIndex(s.palette+1, len(sensorPalette)) }

// Click freezes or resumes the scrolling line.
func (s *sensorScreen) Click() { s.paused = !s.paused }

func (s *sensorScreen) Draw(sf Surface) {
	w, h := sf.Size()
	sf.Clear(sensorPalette[s.palette])

	s.takeReading()

	textW := s.textWidth()
	if !s.paused {
		s.advance(textW + int(w))
	}

	lineH := int16(textFont.YAdvance)
	tinyfont.WriteLine(sf, textFont, w-int16(s.scroll), lineH, s.text, colorWhite)

	clock := s.now().Format("15:04:05")
	cw, _ := tinyfont.LineWidth(textFont, clock)
	tinyfont.WriteLine(sf, textFont, (w-int16(cw))/2, min(h-2, 2*lineH), clock, colorWhite)
}

func (s *sensorScreen) takeReading() {
	if s.readings == nil || s.mailboxFailed {
		return
	}
	got := false
	err := s.readings.IfNew(func(r SensorReading) {
		got = true
		if line := r.Summary(); line != "" {
			s.text = line
		}
	})
	if err != nil {
		s.mailboxFailed = true
		s.logger.Warn("sensor mailbox unusable, keeping last reading", "error", err)
		return
	}
	// Dropped locks the mailbox, so it is read after IfNew returns.
	if got {
		s.logger.Debug("sensor reading", "text", s.text, "dropped_total", s.readings.Dropped())
	}
}

func (s *sensorScreen) textWidth() int {
	_, outbox := tinyfont.LineWidth(textFont, s.text)
	return int(outbox)
}

// advance moves the line left, restarting once it has fully left the screen.
func (s *sensorScreen) advance(span int) {
	s.sub++
	if s.sub < scrollFramesPerPixel {
		return
	}
	s.sub = 0
	s.scroll++
	if s.scroll >= span {
		s.scroll = 0
	}
}
