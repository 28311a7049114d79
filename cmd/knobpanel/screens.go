package main

import (
	"fmt"
	"log/slog"
)

// buildScreens instantiates the configured screens in order. readings may be
// nil when no sensor producer runs; the sensor screen then stays on its
// loading text.
func buildScreens(names []string, readings *Mailbox[SensorReading], logger *slog.Logger) ([]NamedScreen, error) {
	screens := make([]NamedScreen, 0, len(names))
	for _, name := range names {
		var s Screen
		switch name {
		case screenSensor:
			s = newSensorScreen(readings, componentLogger(logger, "screen_sensor"))
		case screenMeter:
			s = newMeterScreen()
		case screenPattern:
			s = newPatternScreen()
		default:
			return nil, fmt.Errorf("unknown screen %q", name)
		}
		screens = append(screens, NamedScreen{Name: name, Screen: s})
	}
	return screens, nil
}
