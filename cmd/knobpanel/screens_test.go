package main

import (
	"bytes"
	"fmt"
	"image/color"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestSensorScreen() (*sensorScreen, *Mailbox[SensorReading]) {
	mb := NewMailbox[SensorReading]()
	s := newSensorScreen(mb, slog.Default())
	s.now = func() time.Time { return time.Date(2024, 1, 2, 13, 4, 5, 0, time.Local) }
	return s, mb
}

// TestSensorScreen_LoadingUntilFirstReading checks the placeholder text is
// replaced only by a reading that has something to show.
func TestSensorScreen_LoadingUntilFirstReading(t *testing.T) {
	s, mb := newTestSensorScreen()
	c := NewCanvas(64, 32)

	s.Draw(c)
	if s.text != sensorLoadingText {
		t.Fatalf("expected %q, got %q", sensorLoadingText, s.text)
	}

	_ = mb.Put(emptyReading())
	s.Draw(c)
	if s.text != sensorLoadingText {
		t.Fatalf("an empty reading must not replace the placeholder, got %q", s.text)
	}

	r := emptyReading()
	r.CO2ppm = 700
	_ = mb.Put(r)
	s.Draw(c)
	if s.text != "Co2: 700 ppm" {
		t.Fatalf("text got %q", s.text)
	}

	// Nothing new: the last line stays.
	s.Draw(c)
	if s.text != "Co2: 700 ppm" {
		t.Fatalf("text changed without a reading: %q", s.text)
	}
}

func TestSensorScreen_PaletteWraps(t *testing.T) {
	s, _ := newTestSensorScreen()
	c := NewCanvas(64, 32)

	s.Left()
	s.Draw(c)
	want := sensorPalette[len(sensorPalette)-1]
	if got := c.RGBAAt(0, 31); got != want {
		t.Fatalf("background got %v, want %v", got, want)
	}

	s.Right()
	s.Right()
	if s.palette != 1 {
		t.Fatalf("palette index got %d, want 1", s.palette)
	}
}

func TestSensorScreen_ScrollAndPause(t *testing.T) {
	s, _ := newTestSensorScreen()
	c := NewCanvas(64, 32)

	for i := 0; i < scrollFramesPerPixel; i++ {
		s.Draw(c)
	}
	if s.scroll != 1 {
		t.Fatalf("expected 1px after %d frames, got %d", scrollFramesPerPixel, s.scroll)
	}

	s.Click()
	for i := 0; i < 3*scrollFramesPerPixel; i++ {
		s.Draw(c)
	}
	if s.scroll != 1 {
		t.Fatalf("paused line moved to %d", s.scroll)
	}

	s.Click()
	for i := 0; i < scrollFramesPerPixel; i++ {
		s.Draw(c)
	}
	if s.scroll != 2 {
		t.Fatalf("expected scrolling to resume, got %d", s.scroll)
	}
}

func TestSensorScreen_ScrollRestarts(t *testing.T) {
	s, _ := newTestSensorScreen()
	span := s.textWidth() + 64
	s.scroll = span - 1
	s.sub = scrollFramesPerPixel - 1

	s.Draw(NewCanvas(64, 32))
	if s.scroll != 0 {
		t.Fatalf("expected the line to restart, got offset %d", s.scroll)
	}
}

// TestSensorScreen_BrokenMailboxKeepsDrawing checks a broken pairing does not
// take the screen down.
func TestSensorScreen_BrokenMailboxKeepsDrawing(t *testing.T) {
	s, mb := newTestSensorScreen()
	_ = mb.Put(emptyReading())
	func() {
		defer func() { _ = recover() }()
		_ = mb.IfNew(func(SensorReading) { panic("boom") })
	}()

	s.Draw(NewCanvas(64, 32))
	s.Draw(NewCanvas(64, 32))
	if !s.mailboxFailed {
		t.Fatalf("expected the failure to be recorded")
	}
	if s.text != sensorLoadingText {
		t.Fatalf("text got %q", s.text)
	}
}

func TestSensorScreen_LogsDroppedReadings(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	mb := NewMailbox[SensorReading]()
	s := newSensorScreen(mb, logger)

	r := emptyReading()
	r.TempC = 20
	_ = mb.Put(r)
	r.TempC = 21.4
	_ = mb.Put(r)

	s.Draw(NewCanvas(64, 32))
	out := buf.String()
	if !strings.Contains(out, "dropped_total=1") || !strings.Contains(out, "21.4") {
		t.Fatalf("expected the reading and drop count in the log, got %q", out)
	}

	buf.Reset()
	s.Draw(NewCanvas(64, 32))
	if strings.Contains(buf.String(), "sensor reading") {
		t.Fatalf("no new reading, nothing should be logged: %q", buf.String())
	}
}

func newTestMeterScreen() (*meterScreen, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	m := newMeterScreen()
	m.spin.now = clk.now
	return m, clk
}

// TestMeterScreen_SpinAcceleration checks slow turns move by one and a fast
// spin moves by the multiplier once the threshold is reached.
func TestMeterScreen_SpinAcceleration(t *testing.T) {
	m, clk := newTestMeterScreen()
	m.level = 10

	m.Right()
	clk.sleep(time.Second)
	m.Right()
	if m.level != 12 {
		t.Fatalf("slow turns: level got %d, want 12", m.level)
	}

	clk.sleep(time.Second)
	m.Right() // 1 in window
	m.Right() // 2
	m.Right() // 3 -> spinning
	want := 12 + 1 + 1 + defaultSpinMultiplier
	if m.level != want {
		t.Fatalf("fast spin: level got %d, want %d", m.level, want)
	}
}

func TestMeterScreen_Clamps(t *testing.T) {
	m, _ := newTestMeterScreen()
	for i := 0; i < 100; i++ {
		m.Right()
	}
	if m.level != meterMax {
		t.Fatalf("level got %d, want %d", m.level, meterMax)
	}
	for i := 0; i < 100; i++ {
		m.Left()
	}
	if m.level != meterMin {
		t.Fatalf("level got %d, want %d", m.level, meterMin)
	}
}

func TestMeterScreen_DrawsBar(t *testing.T) {
	m, _ := newTestMeterScreen()
	c := NewCanvas(64, 32)

	m.level = meterMax
	m.Draw(c)
	if got := c.RGBAAt(1, 28); got != meterColors[0] {
		t.Fatalf("full bar: pixel got %v, want %v", got, meterColors[0])
	}

	m.Click()
	m.level = meterMin
	m.Draw(c)
	if got := c.RGBAAt(1, 28); got != colorBlack {
		t.Fatalf("empty bar: pixel got %v, want black", got)
	}
	if m.color != 1 {
		t.Fatalf("click should cycle the colour, got %d", m.color)
	}
}

// TestScreens_TinyPanels draws every screen on the smallest panels the config
// accepts; none of them may panic.
func TestScreens_TinyPanels(t *testing.T) {
	sizes := []struct{ w, h int }{
		{1, 1}, {64, 1}, {1, 32}, {2, 2}, {3, 3}, {64, 2}, {64, 3}, {2, 32},
	}
	for _, sz := range sizes {
		t.Run(fmt.Sprintf("%dx%d", sz.w, sz.h), func(t *testing.T) {
			screens, err := buildScreens([]string{screenSensor, screenMeter, screenPattern}, NewMailbox[SensorReading](), slog.Default())
			if err != nil {
				t.Fatalf("buildScreens: %v", err)
			}
			c := NewCanvas(sz.w, sz.h)
			for _, ns := range screens {
				if m, ok := ns.Screen.(*meterScreen); ok {
					for _, level := range []int{meterMin, 50, meterMax} {
						m.level = level
						m.Draw(c)
					}
					continue
				}
				if p, ok := ns.Screen.(*patternScreen); ok {
					p.Click()
					for range panelPatterns {
						p.Draw(c)
						p.Right()
					}
					continue
				}
				ns.Screen.Draw(c)
			}
			drawSelectionOverlay(c)
		})
	}
}

func TestMeterScreen_NarrowPanelDrawsLabelOnly(t *testing.T) {
	m, _ := newTestMeterScreen()
	m.level = meterMax
	c := NewCanvas(2, 32)
	m.Draw(c)
	for y := 0; y < 32; y++ {
		for x := 0; x < 2; x++ {
			if got := c.RGBAAt(x, y); got == meterColors[0] {
				t.Fatalf("unexpected bar pixel at (%d,%d)", x, y)
			}
		}
	}
}

func TestPatternScreen_CyclesAndAnimates(t *testing.T) {
	p := newPatternScreen()
	c := NewCanvas(64, 32)

	p.Draw(c)
	if got := c.RGBAAt(10, 10); got != (color.RGBA{R: 0xff, A: 0xff}) {
		t.Fatalf("first pattern pixel got %v", got)
	}

	p.Left()
	if panelPatterns[p.index].name != "checker" {
		t.Fatalf("left from the first pattern should wrap to checker, got %s", panelPatterns[p.index].name)
	}
	p.Draw(c)
	before := c.RGBAAt(0, 0)
	p.Draw(c)
	if c.RGBAAt(0, 0) != before {
		t.Fatalf("static pattern changed between frames")
	}

	p.Click()
	moved := false
	for i := 0; i < 8; i++ {
		p.Draw(c)
		if c.RGBAAt(0, 0) != before {
			moved = true
			break
		}
	}
	if !moved {
		t.Fatalf("animated checker never shifted")
	}
}

func TestBuildScreens(t *testing.T) {
	screens, err := buildScreens([]string{screenPattern, screenSensor}, nil, slog.Default())
	if err != nil {
		t.Fatalf("buildScreens: %v", err)
	}
	if len(screens) != 2 || screens[0].Name != screenPattern || screens[1].Name != screenSensor {
		t.Fatalf("unexpected screens: %+v", screens)
	}

	// A sensor screen without a producer just keeps its placeholder.
	screens[1].Screen.Draw(NewCanvas(64, 32))

	if _, err := buildScreens([]string{"clock"}, nil, slog.Default()); err == nil {
		t.Fatalf("expected an error for an unknown screen")
	}
}
