package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func newTestGmail(t *testing.T, h http.HandlerFunc) *GmailSender {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return NewGmailSenderWithService(svc, "clinic@x.com")
}

func TestGmailSender_Send(t *testing.T) {
	var raw string
	g := newTestGmail(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/users/me/messages/send"), r.URL.Path)

		var msg gmail.Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		raw = msg.Raw
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"abc123"}`))
	})

	m, err := Confirmation("", 7, jane)
	require.NoError(t, err)
	require.NoError(t, g.Send(context.Background(), m))

	decoded, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "From: clinic@x.com\r\n")
	assert.Contains(t, string(decoded), "To: jane@x.com\r\n")
	assert.Contains(t, string(decoded), "Booking #7")
}

func TestGmailSender_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Kind
	}{
		{"unauthorized", http.StatusUnauthorized, KindAuth},
		{"forbidden", http.StatusForbidden, KindAuth},
		{"bad request", http.StatusBadRequest, KindProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGmail(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprintf(w, `{"error":{"code":%d,"message":"nope"}}`, tt.status)
			})

			err := g.Send(context.Background(), Message{To: "jane@x.com"})
			var se *SendError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.want, se.Kind)
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	path := t.TempDir() + "/token.json"
	_, err := TokenFromFile(path)
	require.Error(t, err)

	require.NoError(t, SaveToken(path, &oauth2.Token{AccessToken: "access", RefreshToken: "refresh"}))
	tok, err := TokenFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "access", tok.AccessToken)
	assert.Equal(t, "refresh", tok.RefreshToken)
}

func TestOAuthConfig(t *testing.T) {
	_, err := OAuthConfig(t.TempDir() + "/missing.json")
	assert.ErrorContains(t, err, "unable to read credentials file")
}
