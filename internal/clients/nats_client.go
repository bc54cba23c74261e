package clients

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"lending-gateway/internal/config"
	"lending-gateway/internal/metrics"
)

// NATSClient NATS client; publishes through JetStream when enabled.
type NATSClient struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	streamName string
	subjects   []string
	log        *logrus.Entry
}

// NewNATSClient connects to NATS and, with JetStream enabled, makes sure
// streamName captures subjects.
func NewNATSClient(cfg config.NATSConfig, streamName string, subjects []string, logger *logrus.Logger) (*NATSClient, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("component", "nats")

	connectTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		connectTimeout = time.Duration(cfg.Timeout) * time.Second
	}
	reconnectWait := 5 * time.Second
	if cfg.ReconnectWait > 0 {
		reconnectWait = time.Duration(cfg.ReconnectWait) * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(serviceName),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warn("NATS connection lost")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	client := &NATSClient{
		conn:       conn,
		streamName: streamName,
		subjects:   subjects,
		log:        log,
	}

	if cfg.EnableJetStream {
		js, err := conn.JetStream()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
		client.js = js
		if err := client.ensureStream(); err != nil {
			conn.Close()
			return nil, err
		}
	}

	log.WithField("url", cfg.URL).Info("✅ NATS connected")
	return client, nil
}

// ensureStream creates the stream when it does not exist yet
func (c *NATSClient) ensureStream() error {
	if _, err := c.js.StreamInfo(c.streamName); err == nil {
		return nil
	}

	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:      c.streamName,
		Subjects:  c.subjects,
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", c.streamName, err)
	}

	c.log.WithField("stream", c.streamName).Info("JetStream stream created")
	return nil
}

// PublishJSON encodes v and publishes it on subject.
func (c *NATSClient) PublishJSON(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	if c.js != nil {
		if _, err := c.js.Publish(subject, data); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", subject, err)
		}
		return nil
	}

	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the connection
func (c *NATSClient) Close() {
	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
		}
	}
}

// IsConnected reports the connection state
func (c *NATSClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}
