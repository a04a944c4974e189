package routing

import "github.com/soyeahso/clinicbot/internal/domain"

// ResolveSessionKey maps a channel message to its booking conversation.
// Scope "global" gives everyone in a chat one shared conversation; any
// other value keeps one conversation per sender.
func ResolveSessionKey(msg domain.InboundMessage, scope string) domain.SessionKey {
	key := domain.SessionKey{ChannelID: msg.ChannelID, ChatID: msg.ChatID}
	if scope != "global" {
		key.SenderID = msg.From
	}
	return key
}
