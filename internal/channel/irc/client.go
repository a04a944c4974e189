// Package irc exposes the booking assistant over IRC using the girc library.
// Private messages are always handled; channel messages only when they
// mention the bot's nick.
package irc

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/girc"

	"github.com/soyeahso/clinicbot/internal/config"
	"github.com/soyeahso/clinicbot/internal/domain"
	"github.com/soyeahso/clinicbot/internal/logging"
	"github.com/soyeahso/clinicbot/internal/version"
)

// maxLineBytes keeps each PRIVMSG well under the 512-byte IRC line limit.
const maxLineBytes = 400

// Channel implements domain.Channel for IRC.
type Channel struct {
	cfg    config.IRCConfig
	client *girc.Client
	log    *logging.Logger

	mu      sync.RWMutex
	handler func(msg domain.InboundMessage)
	running bool
	lastErr string
}

// New creates an IRC channel from configuration.
func New(cfg config.IRCConfig, log *logging.Logger) *Channel {
	return &Channel{
		cfg: cfg,
		log: log.Sub("irc"),
	}
}

func (c *Channel) ID() string { return "irc" }

func (c *Channel) Capabilities() domain.ChannelCapabilities {
	return domain.ChannelCapabilities{
		ChatTypes:       []domain.ChatType{domain.ChatTypeDM, domain.ChatTypeGroup},
		MaxMessageBytes: maxLineBytes,
	}
}

func (c *Channel) OnMessage(handler func(msg domain.InboundMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: "irc",
		Connected: c.client != nil && c.client.IsConnected(),
		Running:   c.running,
		LastError: c.lastErr,
	}
}

func (c *Channel) port() int {
	switch {
	case c.cfg.Port != 0:
		return c.cfg.Port
	case c.cfg.UseTLS:
		return 6697
	default:
		return 6667
	}
}

// Start connects to the IRC server and blocks until the connection ends or
// ctx is cancelled.
func (c *Channel) Start(ctx context.Context) error {
	gircCfg := girc.Config{
		Server:  c.cfg.Server,
		Port:    c.port(),
		Nick:    c.cfg.Nick,
		User:    c.cfg.Nick,
		Name:    "Clinic booking assistant",
		SSL:     c.cfg.UseTLS,
		Version: version.UserAgent(),
	}
	if c.cfg.UseTLS {
		gircCfg.TLSConfig = &tls.Config{ServerName: c.cfg.Server}
	}
	if c.cfg.SASL && c.cfg.Password != "" {
		gircCfg.SASL = &girc.SASLPlain{User: c.cfg.Nick, Pass: c.cfg.Password}
	} else if c.cfg.Password != "" {
		gircCfg.ServerPass = c.cfg.Password
	}

	client := girc.New(gircCfg)
	client.Handlers.Add(girc.CONNECTED, c.onConnected)
	client.Handlers.Add(girc.PRIVMSG, c.onPrivmsg)
	client.Handlers.Add(girc.DISCONNECTED, c.onDisconnected)

	c.mu.Lock()
	c.client = client
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()

	c.log.Info().
		Str("server", c.cfg.Server).
		Int("port", c.port()).
		Str("nick", c.cfg.Nick).
		Strs("channels", c.cfg.Channels).
		Bool("tls", c.cfg.UseTLS).
		Msg("connecting to IRC")

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	select {
	case err := <-errCh:
		c.mu.Lock()
		c.running = false
		if err != nil {
			c.lastErr = err.Error()
		}
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Stop gracefully disconnects from the IRC server.
func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.client.IsConnected() {
		c.log.Info().Msg("disconnecting from IRC")
		c.client.Quit("clinic closed for now")
	}
	c.running = false
	return nil
}

// Send delivers a reply line by line.
func (c *Channel) Send(ctx context.Context, msg domain.OutboundMessage) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil || !client.IsConnected() {
		return fmt.Errorf("irc: not connected")
	}
	if msg.To == "" {
		return fmt.Errorf("irc: no target specified")
	}

	lines := splitMessage(msg.Body, maxLineBytes)
	for _, line := range lines {
		client.Cmd.Message(msg.To, line)
	}

	c.log.Debug().
		Str("to", msg.To).
		Int("lines", len(lines)).
		Msg("sent IRC message")
	return nil
}

func (c *Channel) onConnected(client *girc.Client, _ girc.Event) {
	c.log.Info().Str("nick", client.GetNick()).Msg("connected to IRC")
	for _, ch := range c.cfg.Channels {
		client.Cmd.Join(ch)
		c.log.Info().Str("channel", ch).Msg("joined channel")
	}
}

func (c *Channel) onPrivmsg(client *girc.Client, e girc.Event) {
	if msg, ok := c.inbound(client.GetNick(), e); ok {
		c.deliverInbound(msg)
	}
}

// inbound converts a PRIVMSG into an inbound message. Channel messages are
// dropped unless they mention self; the mention prefix is trimmed.
func (c *Channel) inbound(self string, e girc.Event) (domain.InboundMessage, bool) {
	if e.Source == nil || len(e.Params) == 0 || strings.EqualFold(e.Source.Name, self) {
		return domain.InboundMessage{}, false
	}

	body := e.Last()
	if e.IsAction() {
		body = e.StripAction()
	}

	msg := domain.InboundMessage{
		ID:        uuid.New().String(),
		ChannelID: "irc",
		From:      e.Source.Name,
		FromName:  e.Source.Name,
		ChatID:    e.Source.Name,
		ChatType:  domain.ChatTypeDM,
		Timestamp: time.Now(),
	}
	if e.IsFromChannel() {
		if !mentions(body, self) {
			return domain.InboundMessage{}, false
		}
		body = stripMention(body, self)
		msg.ChatID = e.Params[0]
		msg.ChatType = domain.ChatTypeGroup
	}

	msg.Body = strings.TrimSpace(body)
	if msg.Body == "" {
		return domain.InboundMessage{}, false
	}
	return msg, true
}

func (c *Channel) deliverInbound(msg domain.InboundMessage) {
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler != nil {
		handler(msg)
	}
}

func (c *Channel) onDisconnected(_ *girc.Client, _ girc.Event) {
	c.log.Warn().Msg("disconnected from IRC")
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

func mentions(body, nick string) bool {
	return nick != "" && strings.Contains(strings.ToLower(body), strings.ToLower(nick))
}

// stripMention removes a leading "nick:" or "nick," address.
func stripMention(body, nick string) string {
	if len(body) < len(nick) || !strings.EqualFold(body[:len(nick)], nick) {
		return body
	}
	rest := body[len(nick):]
	rest = strings.TrimLeft(rest, ":, ")
	return rest
}

// splitMessage breaks text into PRIVMSG-sized lines. Each input line is
// sent separately and blank lines are dropped. Long lines are cut at a
// space when one is available, never inside a UTF-8 sequence.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \r")
		for len(line) > maxLen {
			cut := strings.LastIndexByte(line[:maxLen], ' ')
			if cut <= 0 {
				cut = maxLen
				for cut > 0 && !utf8Start(line[cut]) {
					cut--
				}
			}
			chunks = append(chunks, line[:cut])
			line = strings.TrimLeft(line[cut:], " ")
		}
		if line != "" {
			chunks = append(chunks, line)
		}
	}
	return chunks
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
