// Package routing connects messaging channels to the booking assistant.
package routing

import (
	"context"
	"strings"

	"github.com/soyeahso/clinicbot/internal/booking"
	"github.com/soyeahso/clinicbot/internal/channel"
	"github.com/soyeahso/clinicbot/internal/domain"
	"github.com/soyeahso/clinicbot/internal/logging"
)

// ResetCommand clears the sender's conversation when sent on its own.
const ResetCommand = "!reset"

const msgResetDone = "🔄 Conversation cleared. Say hello to start a new booking."

// Assistant is the part of the booking assistant the router drives.
type Assistant interface {
	Chat(ctx context.Context, conversationID, channel, text string) booking.Reply
	Reset(ctx context.Context, conversationID string) error
}

// Router routes inbound messages to the assistant and replies to channels.
type Router struct {
	channels  *channel.Registry
	assistant Assistant
	scope     string // "per-sender" | "global"
	log       *logging.Logger
}

// NewRouter creates a message router.
func NewRouter(channels *channel.Registry, assistant Assistant, scope string, log *logging.Logger) *Router {
	if scope == "" {
		scope = "per-sender"
	}
	return &Router{
		channels:  channels,
		assistant: assistant,
		scope:     scope,
		log:       log.Sub("routing"),
	}
}

// HandleInbound runs one chat turn for an inbound message and sends the
// reply back through the originating channel.
func (r *Router) HandleInbound(ctx context.Context, msg domain.InboundMessage) {
	r.log.Info().
		Str("channel", msg.ChannelID).
		Str("from", msg.From).
		Str("chatId", msg.ChatID).
		Str("chatType", string(msg.ChatType)).
		Msg("routing inbound message")

	if r.assistant == nil {
		r.log.Warn().Msg("no assistant configured, dropping message")
		return
	}

	ch, ok := r.channels.Get(msg.ChannelID)
	if !ok {
		r.log.Error().Str("channel", msg.ChannelID).Msg("channel not found for reply")
		return
	}

	conv := ResolveSessionKey(msg, r.scope).String()
	body := strings.TrimSpace(msg.Body)

	var text string
	if strings.EqualFold(body, ResetCommand) {
		if err := r.assistant.Reset(ctx, conv); err != nil {
			r.log.Error().Err(err).Str("conversation", conv).Msg("reset failed")
		}
		text = msgResetDone
	} else {
		reply := r.assistant.Chat(ctx, conv, msg.ChannelID, body)
		text = reply.Text
		if reply.Outcome != booking.OutcomeNone {
			r.log.Info().
				Str("conversation", conv).
				Str("outcome", reply.Outcome.String()).
				Int64("bookingId", reply.BookingID).
				Msg("booking outcome")
		}
	}

	if !ch.Capabilities().Markdown {
		text = PlainText(text)
	}
	out := domain.OutboundMessage{
		ChannelID: msg.ChannelID,
		To:        replyTarget(msg),
		Body:      text,
		ReplyToID: msg.ID,
	}
	if err := ch.Send(ctx, out); err != nil {
		r.log.Error().Err(err).
			Str("channel", msg.ChannelID).
			Str("to", out.To).
			Msg("failed to send reply")
		return
	}

	r.log.Debug().
		Str("channel", msg.ChannelID).
		Str("to", out.To).
		Str("conversation", conv).
		Msg("reply sent")
}

// Wire registers HandleInbound as the message handler on all channels.
// Each message is handled on its own goroutine; the assistant serialises
// turns within a conversation.
func (r *Router) Wire(ctx context.Context) {
	for _, id := range r.channels.List() {
		ch, ok := r.channels.Get(id)
		if !ok {
			continue
		}
		ch.OnMessage(func(msg domain.InboundMessage) {
			go r.HandleInbound(ctx, msg)
		})
		r.log.Debug().Str("channel", id).Msg("wired message handler")
	}
}

// replyTarget determines where to send the response.
func replyTarget(msg domain.InboundMessage) string {
	if msg.ChatType == domain.ChatTypeDM {
		return msg.From
	}
	return msg.ChatID
}

// PlainText strips the markdown emphasis used in assistant replies for
// channels that show text verbatim.
func PlainText(s string) string {
	return strings.ReplaceAll(s, "**", "")
}
