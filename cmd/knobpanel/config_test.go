package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoadConfigFile_OverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "knobpanel.yaml")
	yml := `
input:
  backend: evdev
  evdev:
    device: /dev/input/event3
display:
  sink: none
screens: [pattern, sensor]
sensor:
  source: mqtt
  mqtt:
    topic: home/office
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Input.Backend != inputBackendEvdev || cfg.Input.Evdev.Device != "/dev/input/event3" {
		t.Errorf("input got %+v", cfg.Input)
	}
	// Untouched nested defaults survive.
	if cfg.Input.Evdev.CodeA != BTN_0 || cfg.Sensor.MQTT.Broker != "127.0.0.1:1883" {
		t.Errorf("nested defaults lost: %+v / %+v", cfg.Input.Evdev, cfg.Sensor.MQTT)
	}
	if len(cfg.Screens) != 2 || cfg.Screens[0] != screenPattern {
		t.Errorf("screens got %v", cfg.Screens)
	}
	if cfg.Sensor.MQTT.Topic != "home/office" {
		t.Errorf("mqtt topic got %q", cfg.Sensor.MQTT.Topic)
	}
}

func TestParseConfig_RejectsUnknownFields(t *testing.T) {
	_, err := parseConfig([]byte("display:\n  sinc: none\n"))
	if err == nil {
		t.Fatalf("expected an error for a misspelled key")
	}
}

func TestParseConfig_RejectsTrailingDocument(t *testing.T) {
	_, err := parseConfig([]byte("logging:\n  level: info\n---\nlogging:\n  level: debug\n"))
	if err == nil || !strings.Contains(err.Error(), "trailing") {
		t.Fatalf("expected trailing document error, got %v", err)
	}
}

func TestParseConfig_AllowsTrailingComment(t *testing.T) {
	cfg, err := parseConfig([]byte("logging:\n  level: debug\n# end of file\n"))
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level got %q, want debug", cfg.Logging.Level)
	}
}

func TestParseConfig_RejectsTrailingUnknownDocument(t *testing.T) {
	_, err := parseConfig([]byte("logging:\n  level: info\n---\nbogus: 1\n"))
	if err == nil || !strings.Contains(err.Error(), "trailing") {
		t.Fatalf("expected trailing document error, got %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad backend", func(c *Config) { c.Input.Backend = "serial" }, "input.backend"},
		{"empty pin", func(c *Config) { c.Input.GPIO.Button = "" }, "input.gpio"},
		{"dup evdev codes", func(c *Config) {
			c.Input.Backend = inputBackendEvdev
			c.Input.Evdev.CodeB = c.Input.Evdev.CodeA
		}, "distinct"},
		{"bad sink", func(c *Config) { c.Display.Sink = "hdmi" }, "display.sink"},
		{"zero width", func(c *Config) { c.Display.Width = 0 }, "display.width"},
		{"no screens", func(c *Config) { c.Screens = nil }, "screens must not be empty"},
		{"unknown screen", func(c *Config) { c.Screens = []string{"maze"} }, "unknown screen"},
		{"dup screen", func(c *Config) { c.Screens = []string{screenMeter, screenMeter} }, "duplicate"},
		{"mqtt password only", func(c *Config) {
			c.Sensor.Source = sensorSourceMQTT
			c.Sensor.MQTT.Password = "x"
		}, "username"},
		{"ipc no path", func(c *Config) { c.IPC.SocketPath = "" }, "ipc.socket_path"},
		{"preview port", func(c *Config) {
			c.Preview.Enabled = true
			c.Preview.Port = 0
		}, "preview.port"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()
	backend := inputBackendNone
	sock := ""
	port := 8080
	FlagOverrides{InputBackend: &backend, IPCSocketPath: &sock, PreviewPort: &port}.Apply(&cfg)

	if cfg.Input.Backend != inputBackendNone {
		t.Errorf("backend got %q", cfg.Input.Backend)
	}
	if cfg.IPC.Enabled {
		t.Errorf("empty socket path must disable IPC")
	}
	if !cfg.Preview.Enabled || cfg.Preview.Port != 8080 {
		t.Errorf("preview got %+v", cfg.Preview)
	}
	if cfg.Display.Sink != displaySinkTerminal {
		t.Errorf("unset overrides must not change config")
	}
}

func TestSetupLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(LogLevelWarn, &buf)
	logger.Info("hidden")
	componentLogger(logger, "decoder").Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record must be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "component=decoder") {
		t.Errorf("component attribute missing: %q", out)
	}
}
