package booking

import (
	"fmt"
	"strings"
	"time"
)

const (
	msgManualStart    = "Perfect! Let's book your appointment manually. May I have your full name?"
	msgCancelled      = "Booking cancelled. Feel free to start a new booking whenever you're ready!"
	msgConfirmYesNo   = "Please confirm with 'yes' or 'no'."
	msgLLMUnavailable = "I apologize, but I'm having trouble. Please try again."
	msgSaveFailed     = "Failed to save booking to database"
	msgThanks         = "Thank you for booking with us! 🏥"
	msgEmailSent      = "📧 A confirmation email has been sent."
	msgEmailFailed    = "⚠️ Booking saved, but email failed to send."

	msgChooseMode = `Would you like to book your appointment:

📄 **Type 'PDF'** - Upload a PDF with your details
✍️ **Type 'Manual'** - Enter details step by step

Please choose your preferred method.`

	msgDocumentStart = `Great! Please upload your PDF file.

📄 **Your PDF should contain:**
- Full Name
- Email Address
- Phone Number
- Appointment Type
- Preferred Date
- Preferred Time

Once it is uploaded, I'll automatically extract and show you the details!`

	msgAwaitingUpload = `⏳ Please upload your PDF first.

Send the file with your booking details and I'll automatically extract them for you!`

	msgSuggestedFormat = "```\n" +
		"Name: John Doe\n" +
		"Email: john@example.com\n" +
		"Phone: 1234567890\n" +
		"Appointment Type: Dental\n" +
		"Date: 2026-02-01\n" +
		"Time: 10:00\n" +
		"```"
)

// Prompt asks for the given field.
func (c *Controller) Prompt(f Field) string {
	open, closing := c.validator.Hours()
	switch f {
	case FieldName:
		return "May I have your full name?"
	case FieldEmail:
		return "What's your email address?"
	case FieldPhone:
		return "Please provide your phone number."
	case FieldBookingType:
		return "What type of appointment do you need? We offer: " + c.validator.Catalog().String()
	case FieldDate:
		from, to := c.validator.Window()
		return fmt.Sprintf("What date would you prefer? (Format: YYYY-MM-DD)\n\n📅 Valid range: %s to %s", from, to)
	case FieldTime:
		return fmt.Sprintf("What time works for you? (Format: HH:MM, between %s and %s)", open, closing)
	}
	return "Please provide more information."
}

// nextPrompt asks for the first missing field, or returns "" when none remain.
func (c *Controller) nextPrompt(s *Session) string {
	missing := s.Missing()
	if len(missing) == 0 {
		return ""
	}
	return c.Prompt(missing[0])
}

// confirmationMessage summarizes all six fields and asks for yes/no.
func confirmationMessage(d Details) string {
	var b strings.Builder
	b.WriteString("Please confirm your booking details:\n\n")
	fmt.Fprintf(&b, "%s Name: %s\n", FieldName.icon(), d.Name)
	fmt.Fprintf(&b, "%s Email: %s\n", FieldEmail.icon(), d.Email)
	fmt.Fprintf(&b, "%s Phone: %s\n", FieldPhone.icon(), d.Phone)
	fmt.Fprintf(&b, "%s Appointment Type: %s\n", FieldBookingType.icon(), d.BookingType)
	fmt.Fprintf(&b, "%s Date: %s\n", FieldDate.icon(), d.Date)
	fmt.Fprintf(&b, "%s Time: %s\n\n", FieldTime.icon(), d.Time)
	b.WriteString("Is this information correct? Please reply with 'yes' to confirm or 'no' to cancel.")
	return b.String()
}

// acknowledgment echoes the fields a turn just filled, in schema order.
func acknowledgment(fields map[Field]string) string {
	var parts []string
	for _, f := range Fields {
		v, ok := fields[f]
		if !ok {
			continue
		}
		switch f {
		case FieldName:
			parts = append(parts, fmt.Sprintf("Great to meet you, %s!", v))
		case FieldEmail:
			parts = append(parts, "Got your email: "+v)
		case FieldPhone:
			parts = append(parts, "Phone number noted: "+v)
		case FieldBookingType:
			parts = append(parts, "Appointment type: "+v)
		case FieldDate:
			parts = append(parts, "Date: "+v)
		case FieldTime:
			parts = append(parts, "Time: "+v)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " ") + "\n\n"
}

// dateRangeHint restates the bookable window after a date error.
func (c *Controller) dateRangeHint() string {
	from, to := c.validator.Window()
	return fmt.Sprintf("\n\n📅 **Valid date range:**\n"+
		"- From: **%s** (today)\n"+
		"- To: **%s** (%d days from now)\n\n"+
		"Please provide a date in **YYYY-MM-DD** format within this range.", from, to, c.validator.WindowDays())
}

// greetingMessage is the static service menu.
func (c *Controller) greetingMessage() string {
	var b strings.Builder
	b.WriteString("👋 Hello! Welcome to our Medical Center!\n\n")
	b.WriteString("I'm here to help you book an appointment. We offer the following services:\n\n")
	b.WriteString("🏥 **Available Appointment Types:**\n")
	for i, entry := range c.validator.Catalog() {
		fmt.Fprintf(&b, "%d. %s\n", i+1, entry)
	}
	open, closing := c.validator.Hours()
	fmt.Fprintf(&b, "\n📅 **Working Hours:** %s - %s (Monday to Saturday)\n\n", clockLabel(open), clockLabel(closing))
	b.WriteString("Would you like to book an appointment? Just let me know which type you need, " +
		"or I can help answer any questions about our services!")
	return b.String()
}

// clockLabel renders "18:00" as "6:00 PM".
func clockLabel(hhmm string) string {
	t, err := time.Parse(timeLayout, hhmm)
	if err != nil {
		return hhmm
	}
	return t.Format("3:04 PM")
}

// bookedMessage reports a saved booking and whether the email went out.
func bookedMessage(id int64, emailed bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Booking confirmed! Your booking ID is #%d\n\n", id)
	if emailed {
		b.WriteString(msgEmailSent)
	} else {
		b.WriteString(msgEmailFailed)
	}
	b.WriteString("\n\n")
	b.WriteString(msgThanks)
	return b.String()
}

func saveFailedMessage(reason string) string {
	return fmt.Sprintf("❌ %s\n\nPlease try again or contact support.", reason)
}

// uploadSummary lists what a document yielded, then either what is still
// missing plus the next prompt, or the confirmation summary.
func (c *Controller) uploadSummary(s *Session, extracted map[Field]string) string {
	var b strings.Builder
	b.WriteString("✅ **PDF processed successfully!**\n\n")
	b.WriteString("**Extracted Details:**\n")
	var lines []string
	for _, f := range Fields {
		v, ok := extracted[f]
		if !ok {
			continue
		}
		label := f.Title()
		if f == FieldName {
			label = "Name"
		}
		if f == FieldBookingType {
			label = "Type"
		}
		lines = append(lines, fmt.Sprintf("%s %s: **%s**", f.icon(), label, v))
	}
	b.WriteString(strings.Join(lines, "\n"))

	missing := s.Missing()
	if len(missing) > 0 {
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = f.Title()
		}
		fmt.Fprintf(&b, "\n\n⚠️ **Still Missing:** %s", strings.Join(names, ", "))
		b.WriteString("\n\n" + c.Prompt(missing[0]))
		return b.String()
	}

	b.WriteString("\n\n" + confirmationMessage(s.Details()))
	return b.String()
}

func uploadDateErrorMessage(detail string) string {
	return fmt.Sprintf("❌ **Date Validation Error**\n\n%s\n\nPlease provide a valid date to continue.", detail)
}

// uploadFallbackMessage invites manual entry when a document yielded nothing.
func uploadFallbackMessage(raw string) string {
	preview := raw
	if r := []rune(raw); len(r) > 300 {
		preview = string(r[:300])
	}
	var b strings.Builder
	fmt.Fprintf(&b, "I processed your PDF and found %d characters of text.\n\n", len([]rune(raw)))
	b.WriteString("**Raw content preview:**\n")
	b.WriteString(preview)
	b.WriteString("\n\n**However, I couldn't extract valid booking fields automatically.**\n\n")
	b.WriteString("This could be because:\n")
	b.WriteString("1. ❌ The PDF format isn't recognized by the AI\n")
	b.WriteString("2. ❌ The fields need clear labels (Name:, Email:, Phone:, etc.)\n")
	b.WriteString("3. ❌ The text extraction had issues\n\n")
	b.WriteString("**💡 Suggested PDF Format:**\n")
	b.WriteString(msgSuggestedFormat)
	b.WriteString("\n\nLet me help you book manually instead. May I have your full name?")
	return b.String()
}
