package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// openLineSource opens the configured input backend. It returns a nil source
// for the "none" backend.
func openLineSource(cfg InputConfig) (LineSource, error) {
	switch cfg.Backend {
	case inputBackendGPIO:
		l, err := openGPIOLines(cfg.GPIO)
		if err != nil {
			return nil, err
		}
		return l, nil
	case inputBackendEvdev:
		return openEvdevSource(cfg.Evdev)
	case inputBackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown input backend %q", cfg.Backend)
	}
}

// openFrameSink opens the configured display sink.
func openFrameSink(cfg DisplayConfig, logger *slog.Logger) (FrameSink, error) {
	switch cfg.Sink {
	case displaySinkSSD1306:
		s, err := openSSD1306Sink(cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case displaySinkTerminal:
		return newTerminalSink(os.Stdout, cfg.Terminal.FPS), nil
	case displaySinkNone:
		return nullSink{}, nil
	default:
		return nil, fmt.Errorf("unknown display sink %q", cfg.Sink)
	}
}

// sensorProducer is a background goroutine that feeds the sensor mailbox.
type sensorProducer interface {
	Run(ctx context.Context) error
}

// newSensorProducer returns the configured producer, or nil for "none".
func newSensorProducer(cfg SensorConfig, out MailboxWriter[SensorReading], logger *slog.Logger) (sensorProducer, error) {
	switch cfg.Source {
	case sensorSourceThermal:
		return newThermalSensor(cfg.Thermal, out, logger), nil
	case sensorSourceMQTT:
		return newMQTTSensor(cfg.MQTT, out, logger), nil
	case sensorSourceNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown sensor source %q", cfg.Source)
	}
}
