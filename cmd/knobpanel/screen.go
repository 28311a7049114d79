package main

import (
	"image/color"

	"tinygo.org/x/drivers"
)

// Surface is what a screen draws on. It is a tinygo Displayer (size, pixel
// writes, flush) plus a whole-surface clear.
type Surface interface {
	drivers.Displayer
	Clear(c color.RGBA)
}

// Screen is one full-display view. All methods are called from the render
// goroutine only. A screen is not told when it becomes active or inactive and
// keeps its state across switches.
type Screen interface {
	Left()
	Right()
	Click()

	// Draw renders one frame. It must not block: background data is taken from
	// a Mailbox with IfNew, never waited for.
	Draw(s Surface)
}

// NamedScreen pairs a screen with the name used in config and state broadcasts.
type NamedScreen struct {
	Name   string
	Screen Screen
}
