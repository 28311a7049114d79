package main

import (
	"image/color"
	"strconv"
	"time"

	"tinygo.org/x/tinyfont"
)

const (
	meterMin = 0
	meterMax = 100
)

var meterColors = []color.RGBA{
	{R: 0x00, G: 0xc8, B: 0x50, A: 0xff},
	{R: 0xff, G: 0xa0, B: 0x00, A: 0xff},
	{R: 0x20, G: 0x80, B: 0xff, A: 0xff},
	{R: 0xe0, G: 0x20, B: 0x40, A: 0xff},
}

// meterScreen is a horizontal bar from 0 to 100. Turning the knob fast moves
// it in larger steps.
type meterScreen struct {
	level int
	color int

	spin       *spinTracker
	window     time.Duration
	threshold  int
	multiplier int
}

func newMeterScreen() *meterScreen {
	return &meterScreen{
		level:      50,
		spin:       newSpinTracker(),
		window:     defaultSpinWindowMS * time.Millisecond,
		threshold:  defaultSpinThreshold,
		multiplier: defaultSpinMultiplier,
	}
}

func (m *meterScreen) Left()  { m.step(EventLeft, -1) }
func (m *meterScreen) Right() { m.step(EventRight, +1) }
func (m *meterScreen) Click() { m.color = wrapIndex(m.color+1, len(meterColors)) }

func (m *meterScreen) step(dir InputEvent, sign int) {
	n := spinSteps(m.spin.addStep(dir, m.window), m.threshold, m.multiplier)
	m.level = clampInt(m.level+sign*n, meterMin, meterMax)
}

func (m *meterScreen) Draw(s Surface) {
	w, h := s.Size()
	s.Clear(colorBlack)

	label := strconv.Itoa(m.level) + "%"
	lw, _ := tinyfont.LineWidth(textFont, label)
	lineH := int16(textFont.YAdvance)
	tinyfont.WriteLine(s, textFont, (w-int16(lw))/2, lineH, label, colorWhite)

	barY := lineH + 3
	barH := h - barY - 2
	if barH < 3 {
		barY, barH = 0, h
	}
	// A bar needs a 1px frame around at least one pixel.
	if w < 3 || barH < 3 {
		return
	}
	strokeRect(s, 0, barY, w, barH, colorWhite)
	fill := int16((int(w) - 2) * m.level / meterMax)
	fillRect(s, 1, barY+1, fill, barH-2, meterColors[m.color])
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
