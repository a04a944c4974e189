package notify

import (
	"context"
	"fmt"

	"github.com/soyeahso/clinicbot/internal/booking"
	"github.com/soyeahso/clinicbot/internal/config"
	"github.com/soyeahso/clinicbot/internal/logging"
)

var _ booking.Notifier = (*Notifier)(nil)

// Notifier sends booking confirmations and archives what it sent.
type Notifier struct {
	sender   Sender
	archiver *Archiver
	from     string
	log      *logging.Logger
}

// NewNotifier combines a sender with an optional archiver.
func NewNotifier(sender Sender, archiver *Archiver, from string, log *logging.Logger) *Notifier {
	return &Notifier{sender: sender, archiver: archiver, from: from, log: log.Sub("notify")}
}

// FromConfig builds the notifier for the configured transport. It returns
// nil, nil for transport "none".
func FromConfig(ctx context.Context, cfg config.MailConfig, log *logging.Logger) (*Notifier, error) {
	var sender Sender
	switch cfg.Transport {
	case "none":
		return nil, nil
	case "gmail":
		g, err := NewGmailSender(ctx, cfg)
		if err != nil {
			return nil, err
		}
		sender = g
	case "", "smtp":
		sender = NewSMTPSender(cfg)
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}
	return NewNotifier(sender, NewArchiver(cfg), cfg.Sender, log), nil
}

// SendConfirmation renders and sends the confirmation for a saved booking.
// Archive failures are logged and do not fail the send.
func (n *Notifier) SendConfirmation(ctx context.Context, bookingID int64, d booking.Details) error {
	msg, err := Confirmation(n.from, bookingID, d)
	if err != nil {
		return err
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		n.log.Warn().Err(err).Int64("booking", bookingID).Msg("confirmation not sent")
		return err
	}
	n.log.Info().Int64("booking", bookingID).Msg("confirmation sent")

	if n.archiver != nil {
		if err := n.archiver.Archive(ctx, msg); err != nil {
			n.log.Warn().Err(err).Int64("booking", bookingID).Msg("archiving confirmation failed")
		}
	}
	return nil
}
