package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NotificationPublisher mirrors every notification attempt to NATS for
// downstream consumers.
//
// Subject convention: <prefix>.<template>, e.g. notifications.dipr.release-order
//
// All publish operations are non-fatal: errors are logged and never propagated
// to the caller.
type NotificationPublisher struct {
	conn   natsConn
	prefix string
	log    zerolog.Logger
}

// natsConn is the subset of *nats.Conn the publisher needs.
type natsConn interface {
	Publish(subject string, data []byte) error
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	Template   string            `json:"template"`
	Recipients []string          `json:"recipients"`
	Delivered  bool              `json:"delivered"`
	Attempt    int               `json:"attempt"`
	Error      string            `json:"error,omitempty"`
	Refs       map[string]string `json:"refs,omitempty"`
	Payload    map[string]any    `json:"payload,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ConnectNATS dials the NATS server with reconnects enabled.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("be-release-orders"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats: disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats: reconnected")
		}),
	)
}

// NewNotificationPublisher creates a publisher. A nil conn disables publishing.
func NewNotificationPublisher(conn natsConn, prefix string, log zerolog.Logger) *NotificationPublisher {
	if prefix == "" {
		prefix = "notifications.dipr"
	}
	return &NotificationPublisher{conn: conn, prefix: prefix, log: log}
}

// PublishNotification publishes one notification event.
func (p *NotificationPublisher) PublishNotification(ctx context.Context, event *NotificationEvent) {
	if p == nil || p.conn == nil || event == nil {
		return
	}
	if ctx.Err() != nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("template", event.Template).Msg("notification: failed to marshal event")
		return
	}

	subject := p.prefix + "." + event.Template
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Int("recipients", len(event.Recipients)).
		Msg("notification: event published")
}
