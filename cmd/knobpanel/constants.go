package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01

	// gpio-keys overlays commonly expose plain buttons as BTN_0..BTN_9.
	BTN_0 = 0x100
	BTN_1 = 0x101
	BTN_2 = 0x102

	KEY_MAX = 0x2ff
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Input backends
const (
	inputBackendGPIO  = "gpio"
	inputBackendEvdev = "evdev"
	inputBackendNone  = "none"
)

// Default knob wiring (BCM numbering): A on GPIO8, B on GPIO7, push on GPIO19.
const (
	defaultPinLineA  = "GPIO8"
	defaultPinLineB  = "GPIO7"
	defaultPinButton = "GPIO19"
)

// Display sinks
const (
	displaySinkSSD1306  = "ssd1306"
	displaySinkTerminal = "terminal"
	displaySinkNone     = "none"
)

// Panel geometry and pacing
const (
	defaultPanelWidth  = 64
	defaultPanelHeight = 32
	defaultMinFrameMS  = 16
)

// Sensor sources
const (
	sensorSourceThermal = "thermal"
	sensorSourceMQTT    = "mqtt"
	sensorSourceNone    = "none"
)

// Screen names
const (
	screenSensor  = "sensor"
	screenMeter   = "meter"
	screenPattern = "pattern"
)

func knownScreen(name string) bool {
	switch name {
	case screenSensor, screenMeter, screenPattern:
		return true
	}
	return false
}

// Meter spin acceleration
const (
	defaultSpinWindowMS   = 200 // Time window for spin detection (ms)
	defaultSpinMultiplier = 4   // Step multiplier while spinning fast
	defaultSpinThreshold  = 3   // Steps in window to count as spinning
)
