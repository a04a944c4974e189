// Package hooks fans conversation and booking lifecycle events out to
// in-process subscribers such as the event publisher and the gateway.
package hooks

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/clinicbot/internal/booking"
	"github.com/soyeahso/clinicbot/internal/logging"
)

const (
	EventMessageReceived  = "message_received"
	EventReplySent        = "reply_sent"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCancelled = "booking_cancelled"
	EventBookingFailed    = "booking_failed"
	EventDocumentIngested = "document_ingested"
	EventSessionReset     = "session_reset"
	EventGatewayStart     = "gateway_start"
	EventGatewayStop      = "gateway_stop"
)

var AllEvents = []string{
	EventMessageReceived, EventReplySent,
	EventBookingConfirmed, EventBookingCancelled, EventBookingFailed,
	EventDocumentIngested, EventSessionReset,
	EventGatewayStart, EventGatewayStop,
}

// Payload is what subscribers receive. Booking is set for the booking_*
// events and carries the customer's contact details.
type Payload struct {
	Event          string           `json:"event"`
	ConversationID string           `json:"conversationId,omitempty"`
	Channel        string           `json:"channel,omitempty"`
	BookingID      int64            `json:"bookingId,omitempty"`
	Booking        *booking.Details `json:"booking,omitempty"`
	Data           map[string]any   `json:"data,omitempty"`
	Time           time.Time        `json:"time"`
}

// Handler errors and panics are logged; they never reach the emitter.
type Handler func(ctx context.Context, p Payload) error

type subscriber struct {
	name string
	fn   Handler
}

// Manager holds subscribers per event. It is safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	subs    map[string][]subscriber
	pending sync.WaitGroup
	log     *logging.Logger
}

func NewManager(log *logging.Logger) *Manager {
	return &Manager{subs: make(map[string][]subscriber), log: log.Sub("hooks")}
}

// On subscribes fn to event under name. Names only matter to Off and the
// logs.
func (m *Manager) On(event, name string, fn Handler) {
	m.mu.Lock()
	m.subs[event] = append(m.subs[event], subscriber{name: name, fn: fn})
	m.mu.Unlock()
	m.log.Debug().Str("event", event).Str("handler", name).Msg("subscribed")
}

// Off drops every subscriber of event registered under name.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[event] = slices.DeleteFunc(m.subs[event], func(s subscriber) bool { return s.name == name })
}

// Emit runs the subscribers of p.Event one after another, in the order
// they subscribed.
func (m *Manager) Emit(ctx context.Context, p Payload) {
	subs, p := m.prepare(p)
	for _, s := range subs {
		m.deliver(ctx, s, p)
	}
}

// EmitAsync starts every subscriber in its own goroutine and returns.
func (m *Manager) EmitAsync(ctx context.Context, p Payload) {
	subs, p := m.prepare(p)
	for _, s := range subs {
		m.pending.Go(func() { m.deliver(ctx, s, p) })
	}
}

// Wait blocks until all EmitAsync deliveries have finished.
func (m *Manager) Wait() { m.pending.Wait() }

func (m *Manager) prepare(p Payload) ([]subscriber, Payload) {
	m.mu.RLock()
	subs := slices.Clone(m.subs[p.Event])
	m.mu.RUnlock()
	if p.Time.IsZero() {
		p.Time = time.Now()
	}
	return subs, p
}

func (m *Manager) deliver(ctx context.Context, s subscriber, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			m.fail(s, p, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := s.fn(ctx, p); err != nil {
		m.fail(s, p, err)
	}
}

func (m *Manager) fail(s subscriber, p Payload, err error) {
	m.log.Warn().
		Err(err).
		Str("event", p.Event).
		Str("handler", s.name).
		Str("conversation", p.ConversationID).
		Msg("hook failed")
}

func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[event])
}

// Events lists, sorted, the events with at least one subscriber.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	live := make(map[string]bool, len(m.subs))
	for event, subs := range m.subs {
		if len(subs) > 0 {
			live[event] = true
		}
	}
	return slices.Sorted(maps.Keys(live))
}

// ForReply names the event a dialogue outcome raises, if any.
func ForReply(r booking.Reply) (string, bool) {
	switch r.Outcome {
	case booking.OutcomeConfirmed:
		return EventBookingConfirmed, true
	case booking.OutcomeCancelled:
		return EventBookingCancelled, true
	case booking.OutcomeSaveFailed:
		return EventBookingFailed, true
	}
	return "", false
}
