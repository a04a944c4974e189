package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/soyeahso/clinicbot/internal/config"
)

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SMTPSender delivers through an authenticated relay, upgrading to TLS when
// the server offers STARTTLS.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	now      func() time.Time
}

// NewSMTPSender creates a sender from the mail config. The SMTP username
// defaults to the sender address.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	user := cfg.SMTP.Username
	if user == "" {
		user = cfg.Sender
	}
	return &SMTPSender{
		host:     cfg.SMTP.Host,
		port:     cfg.SMTP.Port,
		username: user,
		password: cfg.SMTP.Password,
		from:     cfg.Sender,
		now:      time.Now,
	}
}

func (s *SMTPSender) configured() bool {
	for _, v := range []string{s.host, s.username, s.password, s.from} {
		if v == "" || config.Unresolved(v) {
			return false
		}
	}
	return true
}

// Send delivers m. Failures are *SendError.
func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if !s.configured() {
		return &SendError{Kind: KindConfig}
	}
	if m.From == "" {
		m.From = s.from
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		return &SendError{Kind: KindGeneric, Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return classify(err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return &SendError{Kind: KindProtocol, Err: err}
		}
	}
	if err := c.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
		return &SendError{Kind: KindAuth, Err: err}
	}
	if err := c.Mail(s.from); err != nil {
		return classify(err)
	}
	if err := c.Rcpt(m.To); err != nil {
		return classify(err)
	}
	w, err := c.Data()
	if err != nil {
		return classify(err)
	}
	if _, err := w.Write(m.Bytes(s.now())); err != nil {
		return classify(err)
	}
	if err := w.Close(); err != nil {
		return classify(err)
	}
	return classify(c.Quit())
}

// classify maps a server reply to KindProtocol and anything else to
// KindGeneric.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var tp *textproto.Error
	if errors.As(err, &tp) {
		if tp.Code == 535 {
			return &SendError{Kind: KindAuth, Err: err}
		}
		return &SendError{Kind: KindProtocol, Err: err}
	}
	return &SendError{Kind: KindGeneric, Err: err}
}
