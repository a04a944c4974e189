package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/soyeahso/clinicbot/internal/config"
)

// Archiver appends a copy of each sent confirmation to an IMAP mailbox,
// creating the mailbox on first use.
type Archiver struct {
	addr     string
	username string
	password string
	mailbox  string
	dial     func(addr string) (*client.Client, error)
	now      func() time.Time
}

// NewArchiver returns nil when archiving is disabled.
func NewArchiver(cfg config.MailConfig) *Archiver {
	if !cfg.Archive.Enabled {
		return nil
	}
	user := cfg.SMTP.Username
	if user == "" {
		user = cfg.Sender
	}
	host := cfg.Archive.IMAPHost
	return &Archiver{
		addr:     net.JoinHostPort(host, strconv.Itoa(cfg.Archive.IMAPPort)),
		username: user,
		password: cfg.SMTP.Password,
		mailbox:  cfg.Archive.Mailbox,
		dial: func(addr string) (*client.Client, error) {
			return client.DialTLS(addr, &tls.Config{ServerName: host})
		},
		now: time.Now,
	}
}

// Archive stores m, marked as read, in the configured mailbox.
func (a *Archiver) Archive(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := a.dial(a.addr)
	if err != nil {
		return fmt.Errorf("imap connect: %w", err)
	}
	defer c.Logout()

	if deadline, ok := ctx.Deadline(); ok {
		c.Timeout = time.Until(deadline)
	}
	if err := c.Login(a.username, a.password); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}

	if _, err := c.Status(a.mailbox, []imap.StatusItem{imap.StatusMessages}); err != nil {
		if err := c.Create(a.mailbox); err != nil {
			return fmt.Errorf("imap create %s: %w", a.mailbox, err)
		}
	}

	now := a.now()
	if err := c.Append(a.mailbox, []string{imap.SeenFlag}, now, bytes.NewBuffer(m.Bytes(now))); err != nil {
		return fmt.Errorf("imap append %s: %w", a.mailbox, err)
	}
	return nil
}
