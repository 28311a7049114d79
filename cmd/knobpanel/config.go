package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the knobpanel daemon.
//
// Keep defaults and validation centralized so the rest of the code can assume a
// well-formed config.
type Config struct {
	// Knob input lines
	Input InputConfig `yaml:"input"`

	// Output panel
	Display DisplayConfig `yaml:"display"`

	// Render loop pacing
	Render RenderConfig `yaml:"render"`

	// Screen order; the first entry is active at startup
	Screens []string `yaml:"screens"`

	// Background sensor producer
	Sensor SensorConfig `yaml:"sensor"`

	// IPC (event injection)
	IPC IPCConfig `yaml:"ipc"`

	// Preview HTTP/WebSocket server
	Preview PreviewConfig `yaml:"preview"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type InputConfig struct {
	// Backend is "gpio", "evdev" or "none".
	Backend string `yaml:"backend"`

	GPIO  GPIOInputConfig  `yaml:"gpio"`
	Evdev EvdevInputConfig `yaml:"evdev"`

	// ExitOnFailure requests process shutdown when the decoder hits a hardware
	// error. When false the display keeps running with input silenced.
	ExitOnFailure bool `yaml:"exit_on_failure"`
}

// GPIOInputConfig names the pins as known to periph's gpioreg.
type GPIOInputConfig struct {
	LineA  string `yaml:"line_a"`
	LineB  string `yaml:"line_b"`
	Button string `yaml:"button"`
}

// EvdevInputConfig maps a gpio-keys input device onto the knob lines.
type EvdevInputConfig struct {
	Device     string `yaml:"device"`
	CodeA      uint16 `yaml:"code_a"`
	CodeB      uint16 `yaml:"code_b"`
	CodeButton uint16 `yaml:"code_button"`
}

type DisplayConfig struct {
	// Sink is "ssd1306", "terminal" or "none".
	Sink   string `yaml:"sink"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`

	SSD1306  SSD1306Config  `yaml:"ssd1306"`
	Terminal TerminalConfig `yaml:"terminal"`
}

type SSD1306Config struct {
	// I2CBus is the periph i2creg bus name; empty selects the default bus.
	I2CBus  string `yaml:"i2c_bus"`
	Rotated bool   `yaml:"rotated"`
}

type TerminalConfig struct {
	FPS int `yaml:"fps"`
}

type RenderConfig struct {
	// MinFrameMS is the minimum time between frames. Sinks without vsync would
	// otherwise spin.
	MinFrameMS int `yaml:"min_frame_ms"`
}

type SensorConfig struct {
	// Source is "thermal", "mqtt" or "none".
	Source string `yaml:"source"`

	Thermal ThermalConfig `yaml:"thermal"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
}

type ThermalConfig struct {
	Path       string `yaml:"path"`
	IntervalMS int    `yaml:"interval_ms"`
}

type MQTTConfig struct {
	Broker    string `yaml:"broker"`
	Topic     string `yaml:"topic"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username,omitempty"`
	Password  string `yaml:"password,omitempty"`
	TimeoutMS int    `yaml:"timeout_ms"`
	RetryMS   int    `yaml:"retry_ms"`
}

type IPCConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SocketPath string `yaml:"socket_path"`
}

type PreviewConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
	FPS     int  `yaml:"fps"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Input: InputConfig{
			Backend: inputBackendGPIO,
			GPIO: GPIOInputConfig{
				LineA:  defaultPinLineA,
				LineB:  defaultPinLineB,
				Button: defaultPinButton,
			},
			Evdev: EvdevInputConfig{
				Device:     "/dev/input/by-path/platform-knob-event",
				CodeA:      BTN_0,
				CodeB:      BTN_1,
				CodeButton: BTN_2,
			},
		},
		Display: DisplayConfig{
			Sink:     displaySinkTerminal,
			Width:    defaultPanelWidth,
			Height:   defaultPanelHeight,
			Terminal: TerminalConfig{FPS: 10},
		},
		Render: RenderConfig{
			MinFrameMS: defaultMinFrameMS,
		},
		Screens: []string{screenSensor, screenMeter, screenPattern},
		Sensor: SensorConfig{
			Source: sensorSourceThermal,
			Thermal: ThermalConfig{
				Path:       "/sys/class/thermal/thermal_zone0/temp",
				IntervalMS: 1000,
			},
			MQTT: MQTTConfig{
				Broker:    "127.0.0.1:1883",
				Topic:     "sensors/room",
				ClientID:  "knobpanel",
				TimeoutMS: 5000,
				RetryMS:   2000,
			},
		},
		IPC: IPCConfig{
			Enabled:    true,
			SocketPath: "/tmp/knobpanel.sock",
		},
		Preview: PreviewConfig{
			Enabled: false,
			Port:    3001,
			FPS:     5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
// Unknown fields are rejected to catch typos.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries CLI flags the user actually set. A nil pointer means
// "not set"; a non-nil pointer is applied even if it holds a zero value.
type FlagOverrides struct {
	InputBackend  *string
	DisplaySink   *string
	IPCSocketPath *string
	PreviewPort   *int
	LogLevel      *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.InputBackend != nil {
		cfg.Input.Backend = *o.InputBackend
	}
	if o.DisplaySink != nil {
		cfg.Display.Sink = *o.DisplaySink
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
		cfg.IPC.Enabled = *o.IPCSocketPath != ""
	}
	if o.PreviewPort != nil {
		cfg.Preview.Port = *o.PreviewPort
		cfg.Preview.Enabled = *o.PreviewPort > 0
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Input
	switch c.Input.Backend {
	case inputBackendGPIO:
		if c.Input.GPIO.LineA == "" || c.Input.GPIO.LineB == "" || c.Input.GPIO.Button == "" {
			return errors.New("input.gpio.line_a, line_b and button must not be empty")
		}
	case inputBackendEvdev:
		if c.Input.Evdev.Device == "" {
			return errors.New("input.evdev.device must not be empty")
		}
		e := c.Input.Evdev
		if e.CodeA == e.CodeB || e.CodeA == e.CodeButton || e.CodeB == e.CodeButton {
			return errors.New("input.evdev codes must be distinct")
		}
		if e.CodeA > KEY_MAX || e.CodeB > KEY_MAX || e.CodeButton > KEY_MAX {
			return fmt.Errorf("input.evdev codes must be <= %d", KEY_MAX)
		}
	case inputBackendNone:
	default:
		return fmt.Errorf("input.backend must be %q, %q or %q", inputBackendGPIO, inputBackendEvdev, inputBackendNone)
	}

	// Display
	switch c.Display.Sink {
	case displaySinkSSD1306, displaySinkTerminal, displaySinkNone:
	default:
		return fmt.Errorf("display.sink must be %q, %q or %q", displaySinkSSD1306, displaySinkTerminal, displaySinkNone)
	}
	if c.Display.Width <= 0 || c.Display.Width > 512 {
		return errors.New("display.width must be between 1 and 512")
	}
	if c.Display.Height <= 0 || c.Display.Height > 512 {
		return errors.New("display.height must be between 1 and 512")
	}
	if c.Display.Sink == displaySinkTerminal && (c.Display.Terminal.FPS <= 0 || c.Display.Terminal.FPS > 60) {
		return errors.New("display.terminal.fps must be between 1 and 60")
	}

	// Render
	if c.Render.MinFrameMS < 0 || c.Render.MinFrameMS > 1000 {
		return errors.New("render.min_frame_ms must be between 0 and 1000")
	}

	// Screens
	if len(c.Screens) == 0 {
		return errors.New("screens must not be empty")
	}
	seen := make(map[string]bool, len(c.Screens))
	for i, name := range c.Screens {
		if !knownScreen(name) {
			return fmt.Errorf("screens[%d]: unknown screen %q", i, name)
		}
		if seen[name] {
			return fmt.Errorf("screens[%d]: duplicate screen %q", i, name)
		}
		seen[name] = true
	}

	// Sensor
	switch c.Sensor.Source {
	case sensorSourceThermal:
		if c.Sensor.Thermal.Path == "" {
			return errors.New("sensor.thermal.path must not be empty")
		}
		if c.Sensor.Thermal.IntervalMS <= 0 {
			return errors.New("sensor.thermal.interval_ms must be > 0")
		}
	case sensorSourceMQTT:
		m := c.Sensor.MQTT
		if m.Broker == "" {
			return errors.New("sensor.mqtt.broker must not be empty")
		}
		if m.Topic == "" {
			return errors.New("sensor.mqtt.topic must not be empty")
		}
		if m.ClientID == "" {
			return errors.New("sensor.mqtt.client_id must not be empty")
		}
		if m.Password != "" && m.Username == "" {
			return errors.New("sensor.mqtt.password requires sensor.mqtt.username")
		}
		if m.TimeoutMS <= 0 || m.RetryMS <= 0 {
			return errors.New("sensor.mqtt.timeout_ms and retry_ms must be > 0")
		}
	case sensorSourceNone:
	default:
		return fmt.Errorf("sensor.source must be %q, %q or %q", sensorSourceThermal, sensorSourceMQTT, sensorSourceNone)
	}

	// IPC
	if c.IPC.Enabled && c.IPC.SocketPath == "" {
		return errors.New("ipc.enabled is true but ipc.socket_path is empty")
	}

	// Preview
	if c.Preview.Enabled {
		if c.Preview.Port <= 0 || c.Preview.Port > 65535 {
			return errors.New("preview.port must be between 1 and 65535")
		}
		if c.Preview.FPS <= 0 || c.Preview.FPS > 30 {
			return errors.New("preview.fps must be between 1 and 30")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// MinFrameInterval returns render.min_frame_ms as a duration.
func (c *Config) MinFrameInterval() time.Duration {
	return time.Duration(c.Render.MinFrameMS) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
