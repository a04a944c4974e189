// Package notify renders booking confirmation emails and delivers them over
// SMTP or the Gmail API, optionally archiving a copy to an IMAP mailbox.
package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"mime"
	"strings"
	"time"

	"github.com/soyeahso/clinicbot/internal/booking"
)

// Message is a rendered HTML email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<html>
<body style="font-family: Arial, sans-serif; padding: 20px;">
<h2 style="color: #2c3e50;">Appointment Confirmation</h2>
<div style="background-color: #f8f9fa; padding: 20px; border-radius: 5px;">
<h3>Dear {{.Details.Name}},</h3>
<p>Your appointment has been confirmed!</p>
<table style="width: 100%; margin-top: 15px;">
<tr><td style="padding: 8px;"><strong>Booking ID:</strong></td><td style="padding: 8px;">#{{.ID}}</td></tr>
<tr><td style="padding: 8px;"><strong>Appointment Type:</strong></td><td style="padding: 8px;">{{.Details.BookingType}}</td></tr>
<tr><td style="padding: 8px;"><strong>Date:</strong></td><td style="padding: 8px;">{{.Details.Date}}</td></tr>
<tr><td style="padding: 8px;"><strong>Time:</strong></td><td style="padding: 8px;">{{.Details.Time}}</td></tr>
<tr><td style="padding: 8px;"><strong>Contact Phone:</strong></td><td style="padding: 8px;">{{.Details.Phone}}</td></tr>
</table>
<p style="margin-top: 20px;"><strong>Please arrive 10 minutes before your scheduled time.</strong></p>
</div>
<p style="margin-top: 20px; color: #7f8c8d;">If you need to reschedule or cancel, please contact us.</p>
<hr style="border: 1px solid #ecf0f1;">
<p style="color: #95a5a6; font-size: 12px;">This is an automated message. Please do not reply to this email.</p>
</body>
</html>
`))

// Confirmation renders the confirmation email for a saved booking.
func Confirmation(from string, bookingID int64, d booking.Details) (Message, error) {
	var body bytes.Buffer
	if err := confirmationTmpl.Execute(&body, struct {
		ID      int64
		Details booking.Details
	}{bookingID, d}); err != nil {
		return Message{}, fmt.Errorf("rendering confirmation: %w", err)
	}
	return Message{
		From:    from,
		To:      d.Email,
		Subject: fmt.Sprintf("Appointment Confirmation - Booking #%d", bookingID),
		HTML:    body.String(),
	}, nil
}

// Bytes returns the message in RFC 5322 form with CRLF line endings.
func (m Message) Bytes(date time.Time) []byte {
	var b strings.Builder
	if m.From != "" {
		fmt.Fprintf(&b, "From: %s\r\n", m.From)
	}
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(m.HTML, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(b.String())
}
