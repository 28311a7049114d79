package main

// ============================================================================
// Quadrature Decoder
// ============================================================================
// A detent on the knob walks the (A, B) pair through a Gray-coded cycle:
//
//	right: 00 -> 01 -> 11 -> 10 -> 00
//	left:  00 -> 10 -> 11 -> 01 -> 00
//
// The first edge leaving 00 latches a direction hint; the event is emitted when
// the pair returns to 00. 11 -> 00 (a missed middle edge) still emits using the
// latched hint. Any other transition is contact noise and is ignored.
// ============================================================================

// quadState packs (A, B) as A<<1 | B.
type quadState uint8

const (
	quad00 quadState = 0b00
	quad01 quadState = 0b01
	quad10 quadState = 0b10
	quad11 quadState = 0b11
)

func quadStateOf(a, b Level) quadState {
	var s quadState
	if a == High {
		s |= 0b10
	}
	if b == High {
		s |= 0b01
	}
	return s
}

// direction is the latched rotation hint.
type direction uint8

const (
	dirUnknown direction = iota
	dirLeft
	dirRight
)

// quadratureDecoder is owned by the decode goroutine. The zero value starts in
// 00 with no hint, which is the resting position of a detented encoder.
type quadratureDecoder struct {
	state quadState
	hint  direction
}

// Step feeds the current (A, B) levels and returns an event when a detent
// completes. The stored state always becomes the observed pair.
func (d *quadratureDecoder) Step(a, b Level) (InputEvent, bool) {
	next := quadStateOf(a, b)
	ev, ok := d.transition(next)
	d.state = next
	return ev, ok
}

func (d *quadratureDecoder) transition(next quadState) (InputEvent, bool) {
	switch d.state {
	case quad00:
		switch next {
		case quad01:
			d.hint = dirRight
		case quad10:
			d.hint = dirLeft
		}

	case quad01:
		switch next {
		case quad11:
			d.hint = dirRight
		case quad00:
			if d.hint == dirLeft {
				return EventLeft, true
			}
		}

	case quad10:
		switch next {
		case quad11:
			d.hint = dirLeft
		case quad00:
			if d.hint == dirRight {
				return EventRight, true
			}
		}

	case quad11:
		switch next {
		case quad01:
			d.hint = dirLeft
		case quad10:
			d.hint = dirRight
		case quad00:
			return d.hint.event()
		}
	}
	return 0, false
}

func (h direction) event() (InputEvent, bool) {
	switch h {
	case dirLeft:
		return EventLeft, true
	case dirRight:
		return EventRight, true
	default:
		return 0, false
	}
}
