package main

import (
	"fmt"
	"image"
	"image/color"
)

var (
	colorBlack = color.RGBA{A: 0xff}
	colorWhite = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// Canvas is the in-memory framebuffer screens draw on. It implements Surface
// for screens and image.Image for frame sinks.
//
// SetPixel outside the bounds is silently clipped: text is routinely drawn
// partially off-screen while scrolling.
type Canvas struct {
	img *image.RGBA
}

// NewCanvas returns a black canvas of the given size.
func NewCanvas(width, height int) *Canvas {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("canvas: invalid size %dx%d", width, height))
	}
	c := &Canvas{img: image.NewRGBA(image.Rect(0, 0, width, height))}
	c.Clear(colorBlack)
	return c
}

func (c *Canvas) Size() (x, y int16) {
	b := c.img.Bounds()
	return int16(b.Dx()), int16(b.Dy())
}

func (c *Canvas) SetPixel(x, y int16, col color.RGBA) {
	p := image.Point{X: int(x), Y: int(y)}
	if !p.In(c.img.Rect) {
		return
	}
	c.img.SetRGBA(p.X, p.Y, col)
}

// Display is a no-op: the render host presents finished frames to a sink.
func (c *Canvas) Display() error { return nil }

func (c *Canvas) Clear(col color.RGBA) {
	pix := c.img.Pix
	for i := 0; i < len(pix); i += 4 {
		pix[i+0] = col.R
		pix[i+1] = col.G
		pix[i+2] = col.B
		pix[i+3] = col.A
	}
}

func (c *Canvas) ColorModel() color.Model { return color.RGBAModel }
func (c *Canvas) Bounds() image.Rectangle { return c.img.Rect }
func (c *Canvas) At(x, y int) color.Color { return c.img.At(x, y) }

// RGBAAt returns the pixel at (x, y).
func (c *Canvas) RGBAAt(x, y int) color.RGBA { return c.img.RGBAAt(x, y) }

// Snapshot returns a copy of the current frame.
func (c *Canvas) Snapshot() *image.RGBA {
	dst := image.NewRGBA(c.img.Rect)
	copy(dst.Pix, c.img.Pix)
	return dst
}

// ============================================================================
// Drawing primitives
// ============================================================================
// These work on any Surface. Negative sizes are programming errors and panic.

func checkRect(x, y, w, h int16) {
	if w < 0 || h < 0 {
		panic(fmt.Sprintf("draw: invalid rectangle %dx%d at (%d,%d)", w, h, x, y))
	}
}

// fillRect fills the w x h rectangle at (x, y).
func fillRect(s Surface, x, y, w, h int16, col color.RGBA) {
	checkRect(x, y, w, h)
	for j := y; j < y+h; j++ {
		for i := x; i < x+w; i++ {
			s.SetPixel(i, j, col)
		}
	}
}

// strokeRect draws a 1px outline of the w x h rectangle at (x, y).
func strokeRect(s Surface, x, y, w, h int16, col color.RGBA) {
	checkRect(x, y, w, h)
	if w == 0 || h == 0 {
		return
	}
	for i := x; i < x+w; i++ {
		s.SetPixel(i, y, col)
		s.SetPixel(i, y+h-1, col)
	}
	for j := y; j < y+h; j++ {
		s.SetPixel(x, j, col)
		s.SetPixel(x+w-1, j, col)
	}
}
