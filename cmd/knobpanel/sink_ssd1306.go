package main

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/host/v3"
)

// ssd1306Sink presents frames on an I²C SSD1306 OLED. The controller is
// monochrome; periph thresholds the RGBA frame while converting.
type ssd1306Sink struct {
	bus    i2c.BusCloser
	dev    *ssd1306.Dev
	logger *slog.Logger
}

func openSSD1306Sink(cfg DisplayConfig, logger *slog.Logger) (*ssd1306Sink, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	bus, err := i2creg.Open(cfg.SSD1306.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", cfg.SSD1306.I2CBus, err)
	}

	opts := ssd1306.DefaultOpts
	opts.W = cfg.Width
	opts.H = cfg.Height
	opts.Rotated = cfg.SSD1306.Rotated

	dev, err := ssd1306.NewI2C(bus, &opts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("init ssd1306: %w", err)
	}

	logger.Info("ssd1306 display ready", "bus", bus.String(), "width", cfg.Width, "height", cfg.Height)
	return &ssd1306Sink{bus: bus, dev: dev, logger: logger}, nil
}

func (s *ssd1306Sink) Present(frame image.Image) error {
	if err := s.dev.Draw(s.dev.Bounds(), frame, image.Point{}); err != nil {
		return fmt.Errorf("ssd1306 draw: %w", err)
	}
	return nil
}

func (s *ssd1306Sink) Close() error {
	return errors.Join(s.dev.Halt(), s.bus.Close())
}
