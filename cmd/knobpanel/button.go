package main

import "time"

// Button press classification. These are fixed by the knob's feel, not config.
const (
	buttonPollInterval  = 100 * time.Millisecond
	buttonLongPressHold = 1000 * time.Millisecond
)

// holdTimer classifies a button press that has just produced a falling edge.
//
// The button is polled every poll interval. A release before threshold is a
// Click; staying low for threshold or longer is a LongPress. The level is always
// re-read before the elapsed time is checked, so a release that happened during
// the last sleep wins over the threshold.
type holdTimer struct {
	poll      time.Duration
	threshold time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

func newHoldTimer() *holdTimer {
	return &holdTimer{
		poll:      buttonPollInterval,
		threshold: buttonLongPressHold,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// Classify blocks until the press is resolved and returns Click or LongPress.
// read returns the current button level; an error aborts classification.
func (h *holdTimer) Classify(read func() (Level, error)) (InputEvent, error) {
	start := h.now()
	for {
		lvl, err := read()
		if err != nil {
			return 0, err
		}
		if lvl == High {
			return EventClick, nil
		}
		if h.now().Sub(start) >= h.threshold {
			return EventLongPress, nil
		}
		h.sleep(h.poll)
	}
}
