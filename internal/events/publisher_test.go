package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/clinicbot/internal/booking"
	"github.com/soyeahso/clinicbot/internal/config"
	"github.com/soyeahso/clinicbot/internal/hooks"
	"github.com/soyeahso/clinicbot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject, data})
	return nil
}

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func TestPublisher_Subject(t *testing.T) {
	assert.Equal(t, "clinicbot.booking.confirmed", NewPublisher(&fakeConn{}, "clinicbot", silentLog()).Subject("booking.confirmed"))
	assert.Equal(t, "booking.confirmed", NewPublisher(&fakeConn{}, "", silentLog()).Subject("booking.confirmed"))
}

func TestPublisher_Publish(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "clinic", silentLog())

	require.NoError(t, p.Publish("session.reset", map[string]string{"k": "v"}))
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "clinic.session.reset", conn.msgs[0].subject)
	assert.JSONEq(t, `{"k":"v"}`, string(conn.msgs[0].data))
}

func TestPublisher_PublishErrors(t *testing.T) {
	p := NewPublisher(&fakeConn{err: errors.New("down")}, "clinic", silentLog())
	assert.ErrorContains(t, p.Publish("booking.confirmed", struct{}{}), "clinic.booking.confirmed")

	p = NewPublisher(&fakeConn{}, "clinic", silentLog())
	assert.Error(t, p.Publish("x", make(chan int)), "unmarshalable payload")
}

func TestPublisher_AttachForwardsBookingHooks(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "clinicbot", silentLog())
	m := hooks.NewManager(silentLog())
	p.Attach(m)

	d := booking.Details{Name: "Jane Doe", Email: "jane@x.com", BookingType: "Dental", Date: "2026-02-01", Time: "10:00"}
	stamp := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	m.Emit(context.Background(), hooks.Payload{
		Event:          hooks.EventBookingConfirmed,
		ConversationID: "conv-1",
		Channel:        "gateway",
		BookingID:      7,
		Booking:        &d,
		Time:           stamp,
	})
	m.Emit(context.Background(), hooks.Payload{Event: hooks.EventMessageReceived})

	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "clinicbot.booking.confirmed", conn.msgs[0].subject)

	var ev Event
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &ev))
	assert.Equal(t, "booking.confirmed", ev.Type)
	assert.Equal(t, "conv-1", ev.ConversationID)
	assert.Equal(t, int64(7), ev.BookingID)
	require.NotNil(t, ev.Booking)
	assert.Equal(t, d, *ev.Booking)
	assert.Equal(t, stamp, ev.Timestamp)
}

func TestPublisher_AttachCoversLifecycle(t *testing.T) {
	m := hooks.NewManager(silentLog())
	NewPublisher(&fakeConn{}, "", silentLog()).Attach(m)
	for _, e := range []string{
		hooks.EventBookingConfirmed,
		hooks.EventBookingCancelled,
		hooks.EventBookingFailed,
		hooks.EventDocumentIngested,
		hooks.EventSessionReset,
	} {
		assert.Equal(t, 1, m.Count(e), e)
	}
}

func TestConnect_NoURL(t *testing.T) {
	p, err := Connect(config.EventsConfig{}, silentLog())
	assert.NoError(t, err)
	assert.Nil(t, p)
}
