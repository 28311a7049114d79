package main

import "time"

// spinTracker remembers recent detents so a screen can tell a slow turn from
// a fast spin and scale its step accordingly. It belongs to one screen and is
// only touched from the render goroutine, so it has no lock.
type spinTracker struct {
	recent []spinStep
	now    func() time.Time
}

type spinStep struct {
	at  time.Time
	dir InputEvent // EventLeft or EventRight
}

func newSpinTracker() *spinTracker {
	return &spinTracker{
		recent: make([]spinStep, 0, 16),
		now:    time.Now,
	}
}

// addStep records a detent and returns how many detents in the same direction
// fall inside window, this one included.
func (s *spinTracker) addStep(dir InputEvent, window time.Duration) int {
	now := s.now()
	cutoff := now.Add(-window)

	kept := s.recent[:0]
	for _, st := range s.recent {
		if st.at.After(cutoff) {
			kept = append(kept, st)
		}
	}
	kept = append(kept, spinStep{at: now, dir: dir})
	s.recent = kept

	same := 0
	for _, st := range kept {
		if st.dir == dir {
			same++
		}
	}
	return same
}

// spinSteps converts a same-direction count into a step size: 1 below
// threshold, multiplier at or above it.
func spinSteps(count, threshold, multiplier int) int {
	if threshold > 0 && count >= threshold {
		return multiplier
	}
	return 1
}
