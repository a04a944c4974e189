package domain

import "time"

// SessionKey names the booking conversation a channel message belongs to.
// SenderID is empty when everyone in a chat shares one conversation.
type SessionKey struct {
	ChannelID string `json:"channelId"`
	ChatID    string `json:"chatId"`
	SenderID  string `json:"senderId,omitempty"`
}

// String renders the key as channel:chat[:sender]. The result is used as
// the conversation ID.
func (k SessionKey) String() string {
	if k.SenderID == "" {
		return k.ChannelID + ":" + k.ChatID
	}
	return k.ChannelID + ":" + k.ChatID + ":" + k.SenderID
}

// Conversation is the summary row of a stored transcript.
type Conversation struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel,omitempty"`
	Messages  int       `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is one transcript entry. Role is "user" or "assistant".
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
