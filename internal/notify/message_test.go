package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/soyeahso/clinicbot/internal/booking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jane = booking.Details{
	Name:        "Jane Doe",
	Email:       "jane@x.com",
	Phone:       "5551234567",
	BookingType: "Dental",
	Date:        "2026-02-01",
	Time:        "10:00",
}

func TestConfirmation(t *testing.T) {
	m, err := Confirmation("clinic@x.com", 42, jane)
	require.NoError(t, err)

	assert.Equal(t, "clinic@x.com", m.From)
	assert.Equal(t, "jane@x.com", m.To)
	assert.Equal(t, "Appointment Confirmation - Booking #42", m.Subject)
	for _, want := range []string{"Dear Jane Doe,", "#42", "Dental", "2026-02-01", "10:00", "5551234567", "arrive 10 minutes before"} {
		assert.Contains(t, m.HTML, want)
	}
}

func TestConfirmation_EscapesHTML(t *testing.T) {
	d := jane
	d.Name = "<script>alert(1)</script>"
	m, err := Confirmation("", 1, d)
	require.NoError(t, err)
	assert.NotContains(t, m.HTML, "<script>")
	assert.Contains(t, m.HTML, "&lt;script&gt;")
}

func TestMessage_Bytes(t *testing.T) {
	m := Message{From: "clinic@x.com", To: "jane@x.com", Subject: "Hello", HTML: "<p>a</p>\n<p>b</p>"}
	date := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	raw := string(m.Bytes(date))

	head, body, ok := strings.Cut(raw, "\r\n\r\n")
	require.True(t, ok)
	assert.Contains(t, head, "From: clinic@x.com\r\n")
	assert.Contains(t, head, "To: jane@x.com\r\n")
	assert.Contains(t, head, "Subject: Hello\r\n")
	assert.Contains(t, head, "Date: Thu, 15 Jan 2026 10:00:00 +0000\r\n")
	assert.Contains(t, head, "Content-Type: text/html; charset=UTF-8")
	assert.Equal(t, "<p>a</p>\r\n<p>b</p>", body)
}

func TestMessage_BytesOmitsEmptyFrom(t *testing.T) {
	raw := string(Message{To: "a@x.com", Subject: "s"}.Bytes(time.Now()))
	assert.False(t, strings.HasPrefix(raw, "From:"))
}

func TestSendError(t *testing.T) {
	tests := []struct {
		kind Kind
		msg  string
		name string
	}{
		{KindConfig, "Email credentials not configured", "config"},
		{KindAuth, "Email authentication failed. Please check credentials.", "auth"},
		{KindProtocol, "SMTP error: boom", "protocol"},
		{KindGeneric, "Email error: boom", "generic"},
	}
	for _, tt := range tests {
		err := &SendError{Kind: tt.kind, Err: errBoom}
		assert.Equal(t, tt.msg, err.Error())
		assert.Equal(t, tt.name, tt.kind.String())
		assert.ErrorIs(t, err, errBoom)
	}
}
