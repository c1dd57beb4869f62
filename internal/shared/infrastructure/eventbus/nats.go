package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix prefixes routing keys to form NATS subjects.
const DefaultSubjectPrefix = "almanac.events"

// NATSConfig configures the NATS publisher and consumer.
type NATSConfig struct {
	URL             string        `yaml:"url"`
	SubjectPrefix   string        `yaml:"subject_prefix"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ReconnectWait   time.Duration `yaml:"reconnect_wait"`
	MaxReconnects   int           `yaml:"max_reconnects"`
	ReconnectBuffer int           `yaml:"reconnect_buffer"`
}

// DefaultNATSConfig returns a default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:             nats.DefaultURL,
		SubjectPrefix:   DefaultSubjectPrefix,
		ConnectTimeout:  5 * time.Second,
		ReconnectWait:   2 * time.Second,
		MaxReconnects:   10,
		ReconnectBuffer: 5 * 1024 * 1024, // 5MB
	}
}

// Subject returns the NATS subject for a routing key.
func (c NATSConfig) Subject(routingKey string) string {
	return c.prefix() + "." + routingKey
}

func (c NATSConfig) prefix() string {
	if c.SubjectPrefix == "" {
		return DefaultSubjectPrefix
	}
	return strings.TrimSuffix(c.SubjectPrefix, ".")
}

func connectNATS(cfg NATSConfig, name string, logger *slog.Logger) (*nats.Conn, error) {
	options := []nats.Option{
		nats.Name(name),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectBufSize(cfg.ReconnectBuffer),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}
	conn, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	return conn, nil
}

// NATSPublisher publishes events to NATS, one subject per routing key.
type NATSPublisher struct {
	conn   *nats.Conn
	config NATSConfig
	logger *slog.Logger
}

// NewNATSPublisher connects a publisher.
func NewNATSPublisher(cfg NATSConfig, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := connectNATS(cfg, "almanac-publisher", logger)
	if err != nil {
		return nil, err
	}
	logger.Info("NATS publisher connected",
		"url", conn.ConnectedUrl(),
		"subject_prefix", cfg.prefix(),
	)
	return &NATSPublisher{conn: conn, config: cfg, logger: logger}, nil
}

// Publish sends payload on the subject for routingKey.
func (p *NATSPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	if p.conn.IsClosed() {
		return fmt.Errorf("NATS connection is not available")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := p.config.Subject(routingKey)
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Error("failed to publish message",
			"subject", subject,
			"error", err,
		)
		return err
	}

	p.logger.Debug("message published",
		"subject", subject,
		"size", len(payload),
	)
	return nil
}

// Healthy reports whether the connection is usable.
func (p *NATSPublisher) Healthy(context.Context) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("NATS is not connected")
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn.IsClosed() {
		return nil
	}
	if err := p.conn.FlushTimeout(5 * time.Second); err != nil {
		p.logger.Warn("failed to flush messages on close", "error", err)
	}
	p.conn.Close()
	p.logger.Info("NATS publisher closed")
	return nil
}

// NATSConsumer subscribes to every event subject and dispatches the
// decoded envelopes through a ConsumerRegistry.
type NATSConsumer struct {
	conn     *nats.Conn
	config   NATSConfig
	registry *ConsumerRegistry
	logger   *slog.Logger
}

// NewNATSConsumer connects a consumer.
func NewNATSConsumer(cfg NATSConfig, registry *ConsumerRegistry, logger *slog.Logger) (*NATSConsumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := connectNATS(cfg, "almanac-consumer", logger)
	if err != nil {
		return nil, err
	}
	return &NATSConsumer{conn: conn, config: cfg, registry: registry, logger: logger}, nil
}

// RegisterConsumer registers an event consumer.
func (c *NATSConsumer) RegisterConsumer(consumer EventConsumer) {
	c.registry.Register(consumer)
}

// Start subscribes and blocks until ctx is done.
func (c *NATSConsumer) Start(ctx context.Context) error {
	subject := c.config.prefix() + ".>"
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		c.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	c.logger.Info("started consuming events", "subject", subject)
	<-ctx.Done()
	return ctx.Err()
}

func (c *NATSConsumer) handle(ctx context.Context, msg *nats.Msg) {
	event, err := DecodeEvent(msg.Data, strings.TrimPrefix(msg.Subject, c.config.prefix()+"."))
	if err != nil {
		c.logger.Error("dropping event", "subject", msg.Subject, "error", err)
		return
	}
	// Core NATS has no redelivery; the registry already logged the failure.
	_ = c.registry.Dispatch(ctx, event)
}

// Close drains the connection.
func (c *NATSConsumer) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	return c.conn.Drain()
}
