package domain

import "context"

// ChannelCapabilities tells the router how to shape replies for a channel.
type ChannelCapabilities struct {
	ChatTypes []ChatType `json:"chatTypes"`
	// Markdown is set when the channel renders **bold** and similar
	// markup. Replies to other channels are flattened to plain text.
	Markdown bool `json:"markdown"`
	// MaxMessageBytes is the longest single line the channel accepts;
	// zero means no limit.
	MaxMessageBytes int `json:"maxMessageBytes,omitempty"`
}

// ChannelStatus is a point-in-time view of a channel connection.
type ChannelStatus struct {
	ChannelID string `json:"channelId"`
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

// Channel is a chat network the assistant can be reached on.
type Channel interface {
	ID() string
	Capabilities() ChannelCapabilities
	Status() ChannelStatus

	// Start connects and blocks until the connection ends or ctx is done.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	Send(ctx context.Context, msg OutboundMessage) error

	// OnMessage sets the handler for customer messages. It is called
	// before Start.
	OnMessage(handler func(msg InboundMessage))
}
