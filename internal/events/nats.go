package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/obslog"
)

type NATSConfig struct {
	URL           string
	Name          string
	Prefix        string
	ReconnectWait time.Duration
	MaxReconnects int
}

func DefaultNATSConfig(url, prefix string) NATSConfig {
	return NATSConfig{
		URL:           url,
		Name:          "arena",
		Prefix:        prefix,
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NATSPublisher publishes JSON payloads on <prefix>.<subject>. Publish
// only buffers in the client, so it is safe to call from the event loop.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	logger := obslog.Named("events")
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats_closed")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	logger.Info("nats_connected", zap.String("url", nc.ConnectedUrl()))
	return &NATSPublisher{conn: nc, prefix: cfg.Prefix, logger: logger}, nil
}

func (p *NATSPublisher) Publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("event_marshal_error", zap.String("subject", subject), zap.Error(err))
		return
	}
	full := subjectFor(p.prefix, subject)
	if err := p.conn.Publish(full, data); err != nil {
		p.logger.Warn("event_publish_error", zap.String("subject", full), zap.Error(err))
	}
}

// Close flushes buffered events and drains the connection.
func (p *NATSPublisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}

func subjectFor(prefix, subject string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return subject
	}
	return prefix + "." + subject
}
