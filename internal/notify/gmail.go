package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/soyeahso/clinicbot/internal/config"
)

// GmailSender delivers through the Gmail API as the authorised user.
type GmailSender struct {
	svc  *gmail.Service
	from string
	now  func() time.Time
}

// OAuthConfig reads the OAuth client credentials file with the send scope.
func OAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	return cfg, nil
}

// NewGmailSender builds a sender from the OAuth credentials and the cached
// token written by "clinicbot mail auth".
func NewGmailSender(ctx context.Context, cfg config.MailConfig) (*GmailSender, error) {
	oc, err := OAuthConfig(cfg.Gmail.CredentialsFile)
	if err != nil {
		return nil, err
	}
	tok, err := TokenFromFile(cfg.Gmail.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("no auth token found at %s, run 'clinicbot mail auth' first: %w", cfg.Gmail.TokenFile, err)
	}
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(oc.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return NewGmailSenderWithService(svc, cfg.Sender), nil
}

// NewGmailSenderWithService wraps an existing Gmail service.
func NewGmailSenderWithService(svc *gmail.Service, from string) *GmailSender {
	return &GmailSender{svc: svc, from: from, now: time.Now}
}

// Send delivers m. Failures are *SendError.
func (g *GmailSender) Send(ctx context.Context, m Message) error {
	if m.From == "" {
		m.From = g.from
	}
	raw := base64.URLEncoding.EncodeToString(m.Bytes(g.now()))
	_, err := g.svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == 401 || gerr.Code == 403 {
			return &SendError{Kind: KindAuth, Err: err}
		}
		return &SendError{Kind: KindProtocol, Err: err}
	}
	return &SendError{Kind: KindGeneric, Err: err}
}

// TokenFromFile loads a cached OAuth token.
func TokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// SaveToken caches an OAuth token with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}
