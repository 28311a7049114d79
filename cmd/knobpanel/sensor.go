package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// Sensor readings and producers
// ============================================================================
// A producer runs in its own goroutine and only ever calls Put on its mailbox
// handle. A Put error means the pairing is broken and the producer stops.
// ============================================================================

// SensorReading is one environmental sample. NaN marks a value the source did
// not report.
type SensorReading struct {
	CO2ppm      float64   `json:"co2_ppm"`
	TempC       float64   `json:"temperature_c"`
	HumidityPct float64   `json:"humidity_pct"`
	At          time.Time `json:"at"`
}

func emptyReading() SensorReading {
	nan := math.NaN()
	return SensorReading{CO2ppm: nan, TempC: nan, HumidityPct: nan}
}

// UnmarshalJSON leaves fields missing from the payload as NaN.
func (r *SensorReading) UnmarshalJSON(b []byte) error {
	type plain SensorReading
	p := plain(emptyReading())
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = SensorReading(p)
	return nil
}

// Summary is the one-line text shown by the sensor screen.
func (r SensorReading) Summary() string {
	var parts []string
	if !math.IsNaN(r.CO2ppm) {
		parts = append(parts, fmt.Sprintf("Co2: %.0f ppm", r.CO2ppm))
	}
	if !math.IsNaN(r.TempC) {
		parts = append(parts, fmt.Sprintf("T: %.1f C", r.TempC))
	}
	if !math.IsNaN(r.HumidityPct) {
		parts = append(parts, fmt.Sprintf("Hum: %.0f %%RH", r.HumidityPct))
	}
	return strings.Join(parts, ", ")
}

// parseSensorPayload decodes a JSON reading and stamps it if the sender did not.
func parseSensorPayload(b []byte, now time.Time) (SensorReading, error) {
	var r SensorReading
	if err := json.Unmarshal(b, &r); err != nil {
		return SensorReading{}, fmt.Errorf("decode sensor payload: %w", err)
	}
	if math.IsNaN(r.CO2ppm) && math.IsNaN(r.TempC) && math.IsNaN(r.HumidityPct) {
		return SensorReading{}, fmt.Errorf("sensor payload has no known fields")
	}
	if r.At.IsZero() {
		r.At = now
	}
	return r, nil
}

// thermalSensor samples a sysfs thermal zone (millidegrees Celsius) at a fixed
// interval.
type thermalSensor struct {
	path     string
	interval time.Duration
	out      MailboxWriter[SensorReading]
	readFile func(string) ([]byte, error)
	logger   *slog.Logger
}

func newThermalSensor(cfg ThermalConfig, out MailboxWriter[SensorReading], logger *slog.Logger) *thermalSensor {
	return &thermalSensor{
		path:     cfg.Path,
		interval: time.Duration(cfg.IntervalMS) * time.Millisecond,
		out:      out,
		readFile: os.ReadFile,
		logger:   logger,
	}
}

// Run samples until ctx is canceled. Read errors are logged and retried on the
// next interval; a broken mailbox ends the producer.
func (t *thermalSensor) Run(ctx context.Context) error {
	t.logger.Info("thermal sensor started", "path", t.path, "interval", t.interval)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		r, err := t.sample(time.Now())
		if err != nil {
			t.logger.Warn("thermal sample failed", "error", err)
		} else if err := t.out.Put(r); err != nil {
			return fmt.Errorf("thermal sensor: %w", err)
		}

		select {
		case <-ctx.Done():
			t.logger.Info("thermal sensor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (t *thermalSensor) sample(now time.Time) (SensorReading, error) {
	b, err := t.readFile(t.path)
	if err != nil {
		return SensorReading{}, err
	}
	milli, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return SensorReading{}, fmt.Errorf("parse %s: %w", t.path, err)
	}
	r := emptyReading()
	r.TempC = float64(milli) / 1000
	r.At = now
	return r, nil
}
