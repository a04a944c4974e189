// Package events publishes booking lifecycle events to NATS so other
// services (reminders, dashboards) can react to them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/soyeahso/clinicbot/internal/booking"
	"github.com/soyeahso/clinicbot/internal/config"
	"github.com/soyeahso/clinicbot/internal/hooks"
	"github.com/soyeahso/clinicbot/internal/logging"
)

// subjects maps hook events to NATS subject suffixes.
var subjects = map[string]string{
	hooks.EventBookingConfirmed: "booking.confirmed",
	hooks.EventBookingCancelled: "booking.cancelled",
	hooks.EventBookingFailed:    "booking.failed",
	hooks.EventDocumentIngested: "document.ingested",
	hooks.EventSessionReset:     "session.reset",
}

// Event is the JSON body of every published message.
type Event struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversation_id,omitempty"`
	Channel        string           `json:"channel,omitempty"`
	BookingID      int64            `json:"booking_id,omitempty"`
	Booking        *booking.Details `json:"booking,omitempty"`
	Data           map[string]any   `json:"data,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher sends events under a subject prefix.
type Publisher struct {
	conn   Conn
	prefix string
	close  func()
	log    *logging.Logger
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn Conn, prefix string, log *logging.Logger) *Publisher {
	return &Publisher{conn: conn, prefix: prefix, log: log.Sub("events")}
}

// Connect dials NATS with reconnect handling. It returns nil, nil when no
// URL is configured.
func Connect(cfg config.EventsConfig, log *logging.Logger) (*Publisher, error) {
	if cfg.NATSURL == "" {
		return nil, nil
	}
	elog := log.Sub("events")

	opts := []nats.Option{
		nats.Name("clinicbot"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				elog.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			elog.Info().Msg("nats reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	p := NewPublisher(nc, cfg.SubjectPrefix, log)
	p.close = nc.Close
	p.log.Info().Str("url", cfg.NATSURL).Str("prefix", cfg.SubjectPrefix).Msg("event publisher connected")
	return p, nil
}

// Subject returns the full subject for a suffix.
func (p *Publisher) Subject(suffix string) string {
	if p.prefix == "" {
		return suffix
	}
	return p.prefix + "." + suffix
}

// Publish marshals data as JSON and publishes it under prefix.suffix.
func (p *Publisher) Publish(suffix string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	subject := p.Subject(suffix)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.log.Debug().Str("subject", subject).Msg("event published")
	return nil
}

// Attach forwards booking and session hooks to NATS.
func (p *Publisher) Attach(m *hooks.Manager) {
	for event, suffix := range subjects {
		suffix := suffix
		m.On(event, "nats", func(_ context.Context, hp hooks.Payload) error {
			return p.Publish(suffix, Event{
				Type:           suffix,
				ConversationID: hp.ConversationID,
				Channel:        hp.Channel,
				BookingID:      hp.BookingID,
				Booking:        hp.Booking,
				Data:           hp.Data,
				Timestamp:      hp.Time.UTC(),
			})
		})
	}
}

// Close closes the connection if Connect opened it.
func (p *Publisher) Close() {
	if p.close != nil {
		p.close()
	}
}
