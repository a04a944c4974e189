package domain

import "time"

// ChatType says whether a customer is talking to the assistant alone or
// in a shared room.
type ChatType string

const (
	ChatTypeDM    ChatType = "dm"
	ChatTypeGroup ChatType = "group"
)

// InboundMessage is one customer message taken off a channel.
type InboundMessage struct {
	ID        string    `json:"id,omitempty"`
	ChannelID string    `json:"channelId"`
	From      string    `json:"from"`
	FromName  string    `json:"fromName,omitempty"`
	ChatID    string    `json:"chatId"`
	ChatType  ChatType  `json:"chatType"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// OutboundMessage is an assistant reply addressed to a chat or a user.
type OutboundMessage struct {
	ChannelID string `json:"channelId"`
	To        string `json:"to"`
	Body      string `json:"body"`
	ReplyToID string `json:"replyToId,omitempty"`
}
