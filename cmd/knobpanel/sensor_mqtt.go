package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"
)

// mqttSensor subscribes to a broker topic carrying JSON SensorReadings, e.g.
//
//	{"co2_ppm": 612, "temperature_c": 21.4, "humidity_pct": 48}
//
// and puts each reading into the mailbox. Connection failures are retried
// after a fixed delay until ctx is canceled.
type mqttSensor struct {
	cfg     MQTTConfig
	out     MailboxWriter[SensorReading]
	timeout time.Duration
	retry   time.Duration
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
	logger  *slog.Logger
}

func newMQTTSensor(cfg MQTTConfig, out MailboxWriter[SensorReading], logger *slog.Logger) *mqttSensor {
	d := &net.Dialer{}
	return &mqttSensor{
		cfg:     cfg,
		out:     out,
		timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		retry:   time.Duration(cfg.RetryMS) * time.Millisecond,
		dial:    d.DialContext,
		logger:  logger,
	}
}

// Run keeps a subscription alive until ctx is canceled or the mailbox breaks.
func (m *mqttSensor) Run(ctx context.Context) error {
	m.logger.Info("mqtt sensor started", "broker", m.cfg.Broker, "topic", m.cfg.Topic)

	for {
		err := m.session(ctx)
		if ctx.Err() != nil {
			m.logger.Info("mqtt sensor stopped")
			return nil
		}
		if errors.Is(err, ErrMailboxBroken) {
			return fmt.Errorf("mqtt sensor: %w", err)
		}
		m.logger.Warn("mqtt session ended, retrying", "error", err, "retry_in", m.retry)

		select {
		case <-ctx.Done():
			m.logger.Info("mqtt sensor stopped")
			return nil
		case <-time.After(m.retry):
		}
	}
}

// session runs one connect/subscribe/receive cycle.
func (m *mqttSensor) session(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, m.timeout)
	conn, err := m.dial(dialCtx, "tcp", m.cfg.Broker)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", m.cfg.Broker, err)
	}
	defer conn.Close()

	// Closing the socket is what unblocks HandleNext on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var putErr error
	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, 4096)},
		OnPub: func(_ mqtt.Header, vp mqtt.VariablesPublish, r io.Reader) error {
			payload, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			if err := m.handlePublish(string(vp.TopicName), payload); err != nil {
				putErr = err
				return err
			}
			return nil
		},
	})

	var vc mqtt.VariablesConnect
	vc.SetDefaultMQTT([]byte(m.cfg.ClientID))
	// No keepalive: the producer never publishes, so it would have to ping.
	vc.KeepAlive = 0
	if m.cfg.Username != "" {
		vc.Username = []byte(m.cfg.Username)
		if m.cfg.Password != "" {
			vc.Password = []byte(m.cfg.Password)
		}
	}

	_ = conn.SetDeadline(time.Now().Add(m.timeout))
	if err := client.StartConnect(conn, &vc); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	for !client.IsConnected() {
		if err := client.HandleNext(); err != nil {
			return fmt.Errorf("mqtt connack: %w", err)
		}
	}

	sub := mqtt.VariablesSubscribe{
		PacketIdentifier: 1,
		TopicFilters: []mqtt.SubscribeRequest{
			{TopicFilter: []byte(m.cfg.Topic), QoS: mqtt.QoS0},
		},
	}
	if err := client.StartSubscribe(sub); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", m.cfg.Topic, err)
	}
	_ = conn.SetDeadline(time.Time{})
	m.logger.Info("mqtt subscribed", "broker", m.cfg.Broker, "topic", m.cfg.Topic)

	for {
		if err := client.HandleNext(); err != nil {
			if putErr != nil {
				return putErr
			}
			return fmt.Errorf("mqtt receive: %w", err)
		}
	}
}

// handlePublish turns one message into a reading. Malformed payloads are
// logged and skipped; only a mailbox failure is returned.
func (m *mqttSensor) handlePublish(topic string, payload []byte) error {
	r, err := parseSensorPayload(payload, time.Now())
	if err != nil {
		m.logger.Warn("mqtt payload ignored", "topic", topic, "error", err)
		return nil
	}
	return m.out.Put(r)
}
