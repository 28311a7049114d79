package main

import "image/color"

// panelPattern paints a full test image. phase shifts animated patterns.
type panelPattern struct {
	name  string
	paint func(s Surface, phase int)
}

func solidPattern(name string, c color.RGBA) panelPattern {
	return panelPattern{name: name, paint: func(s Surface, _ int) { s.Clear(c) }}
}

var panelPatterns = []panelPattern{
	solidPattern("red", color.RGBA{R: 0xff, A: 0xff}),
	solidPattern("green", color.RGBA{G: 0xff, A: 0xff}),
	solidPattern("blue", color.RGBA{B: 0xff, A: 0xff}),
	solidPattern("white", colorWhite),
	{name: "gradient", paint: paintGradient},
	{name: "checker", paint: paintChecker},
}

// paintGradient draws a horizontal grey ramp, scrolled by phase.
func paintGradient(s Surface, phase int) {
	w, h := s.Size()
	span := max(int(w)-1, 1)
	for x := int16(0); x < w; x++ {
		pos := (int(x) + phase) % int(w)
		v := uint8(pos * 255 / span)
		fillRect(s, x, 0, 1, h, color.RGBA{R: v, G: v, B: v, A: 0xff})
	}
}

// paintChecker draws 4px squares, shifted by phase.
func paintChecker(s Surface, phase int) {
	const cell = 4
	w, h := s.Size()
	for y := int16(0); y < h; y++ {
		for x := int16(0); x < w; x++ {
			c := colorBlack
			if ((int(x)+phase)/cell+int(y)/cell)%2 == 0 {
				c = colorWhite
			}
			s.SetPixel(x, y, c)
		}
	}
}

// patternScreen cycles panel bring-up patterns. Click toggles animation.
type patternScreen struct {
	index   int
	animate bool
	phase   int
}

func newPatternScreen() *patternScreen { return &patternScreen{} }

func (p *patternScreen) Left()  { p.index = wrapIndex(p.index-1, len(panelPatterns)) }
func (p *patternScreen) Right() { p.index = wrapIndex(p.index+1, len(panelPatterns)) }
func (p *patternScreen) Click() { p.animate = !p.animate }

func (p *patternScreen) Draw(s Surface) {
	if p.animate {
		p.phase++
	}
	panelPatterns[p.index].paint(s, p.phase)
}
