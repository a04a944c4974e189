package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/clinicbot/internal/assistant"
	"github.com/soyeahso/clinicbot/internal/booking"
	"github.com/soyeahso/clinicbot/internal/config"
	"github.com/soyeahso/clinicbot/internal/hooks"
	"github.com/soyeahso/clinicbot/internal/rag"
	"github.com/soyeahso/clinicbot/internal/store"
)

const testToken = "test-token-123"

var manualTurns = []string{
	"I'd like to book an appointment manually",
	"Jane Doe",
	"jane@x.com",
	"5551234567",
	"Dental",
	"2026-02-01",
	"10:00",
}

// testEnv is a gateway wired to an assistant over an in-memory database.
type testEnv struct {
	srv      *Server
	ts       *httptest.Server
	bookings *store.BookingStore
	hooks    *hooks.Manager
}

type envOption func(cfg *config.Config, opts *[]ServerOption)

func withoutAssistant() envOption {
	return func(_ *config.Config, opts *[]ServerOption) {
		*opts = (*opts)[:1]
	}
}

func withAuthMode(mode string) envOption {
	return func(cfg *config.Config, _ *[]ServerOption) {
		cfg.Gateway.Auth.Mode = mode
	}
}

func withRateLimit(perMinute, burst int) envOption {
	return func(cfg *config.Config, _ *[]ServerOption) {
		cfg.Gateway.RateLimit = config.RateLimitConfig{PerMinute: perMinute, Burst: burst}
	}
}

func newTestEnv(t *testing.T, options ...envOption) *testEnv {
	t.Helper()
	log := testLog()

	cfg := config.Defaults()
	cfg.Gateway.Auth.Mode = "token"
	cfg.Gateway.Auth.Token = testToken
	cfg.Gateway.RateLimit = config.RateLimitConfig{}

	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bookings := store.NewBookingStore(db)
	pipeline, err := rag.NewPipeline(store.NewDocumentStore(db), nil, "", config.RAGConfig{ChunkSize: 200, ChunkOverlap: 20, TopK: 5}, log)
	require.NoError(t, err)

	v, err := booking.NewValidator(booking.Rules{
		Catalog:    config.DefaultCatalog,
		OpenAt:     "09:00",
		CloseAt:    "18:00",
		WindowDays: 90,
		Location:   time.UTC,
		Now:        func() time.Time { return time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	hm := hooks.NewManager(log)
	ctrl := booking.NewController(v, booking.ControllerOptions{Saver: bookings, Retriever: pipeline}, log)
	a := assistant.New(assistant.Options{
		Controller:  ctrl,
		Documents:   pipeline,
		Transcripts: store.NewTranscriptStore(db),
		Hooks:       hm,
	}, log)

	raw := map[string]any{
		"gateway": map[string]any{"port": 18790, "bind": "loopback"},
		"llm":     map[string]any{"providers": map[string]any{"openai": map[string]any{"apiKey": "sk-secret"}}},
	}
	opts := []ServerOption{WithConfigRaw(raw), WithAssistant(a), WithBookings(bookings), WithHooks(hm)}
	for _, o := range options {
		o(&cfg, &opts)
	}

	srv := New(cfg, log, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, ts: ts, bookings: bookings, hooks: hm}
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws"
}

// connect completes the handshake and returns the socket and hello payload.
func (e *testEnv) connect(t *testing.T, auth *ConnectAuth) (*websocket.Conn, HelloOK) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	require.Equal(t, "connect.challenge", challenge.Event)

	req, err := NewRequest("auth-req", "connect", ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "front-desk", Version: "1.0.0", Platform: "linux"},
		Auth:        auth,
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.OK)
	require.True(t, *resp.OK, "handshake should succeed")

	var hello HelloOK
	require.NoError(t, json.Unmarshal(resp.Payload, &hello))
	return conn, hello
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _ := e.connect(t, &ConnectAuth{Token: testToken})
	return conn
}

var reqSeq int

// call sends a request and returns its response, skipping broadcast events.
func call(t *testing.T, conn *websocket.Conn, method string, params any) Frame {
	t.Helper()
	reqSeq++
	id := fmt.Sprintf("req-%d", reqSeq)
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == FrameTypeResponse && f.ID == id {
			return f
		}
	}
}

func requireOK(t *testing.T, f Frame, out any) {
	t.Helper()
	require.NotNil(t, f.OK)
	require.True(t, *f.OK, "unexpected error: %+v", f.Error)
	if out != nil {
		require.NoError(t, json.Unmarshal(f.Payload, out))
	}
}

func requireErr(t *testing.T, f Frame, code string) *RPCError {
	t.Helper()
	require.NotNil(t, f.OK)
	require.False(t, *f.OK)
	require.NotNil(t, f.Error)
	assert.Equal(t, code, f.Error.Code)
	return f.Error
}

func chat(t *testing.T, conn *websocket.Conn, msg string) ChatSendResult {
	t.Helper()
	var res ChatSendResult
	requireOK(t, call(t, conn, "chat.send", ChatSendParams{Message: msg}), &res)
	return res
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Empty(t, health.Version, "public endpoint only reports status")
}

func TestNotFoundEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body apiError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "/nonexistent", body.Path)
}

func TestHandshake_Token(t *testing.T) {
	env := newTestEnv(t, withRateLimit(30, 5))
	_, hello := env.connect(t, &ConnectAuth{Token: testToken})

	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Contains(t, hello.Features.Methods, "chat.send")
	assert.Contains(t, hello.Features.Methods, "document.upload")
	assert.Contains(t, hello.Features.Events, "booking.confirmed")
	assert.Equal(t, maxPayload, hello.Policy.MaxPayload)
	assert.Equal(t, 30, hello.Policy.ChatPerMinute)
	assert.Equal(t, 5, hello.Policy.ChatBurst)
	assert.Equal(t, 30000, hello.Policy.TickIntervalMs)
}

func TestHandshake_WrongToken(t *testing.T) {
	env := newTestEnv(t)

	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL(), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, _ := NewRequest("req-1", "connect", ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "front-desk"},
		Auth:        &ConnectAuth{Token: "wrong-token"},
	})
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	e := requireErr(t, resp, "unauthorized")
	assert.Equal(t, "token_mismatch", e.Message)
}

func TestHandshake_NotConnectFirst(t *testing.T) {
	env := newTestEnv(t)

	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL(), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))

	req, _ := NewRequest("req-1", "chat.send", ChatSendParams{Message: "hi"})
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	requireErr(t, resp, "protocol_error")
}

func TestHandshake_NoneModeNeedsNoCredentials(t *testing.T) {
	env := newTestEnv(t, withAuthMode("none"))
	conn, hello := env.connect(t, nil)
	assert.NotEmpty(t, hello.Server.ConnID)

	var health HealthResponse
	requireOK(t, call(t, conn, "health", nil), &health)
	assert.Equal(t, "ok", health.Status)
}

func TestChatSend_ManualBookingFlow(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	var res ChatSendResult
	for _, turn := range manualTurns {
		res = chat(t, conn, turn)
	}
	assert.Contains(t, res.Response, "Is this information correct?")
	assert.True(t, res.State.AwaitingConfirmation)
	assert.Empty(t, res.State.Missing)

	res = chat(t, conn, "yes")
	assert.Equal(t, "confirmed", res.Outcome)
	assert.Equal(t, "confirm_yes", res.Intent)
	require.Positive(t, res.BookingID)
	assert.Contains(t, res.Response, fmt.Sprintf("#%d", res.BookingID))
	assert.False(t, res.Emailed, "no notifier configured")
	assert.Equal(t, "unset", res.State.Mode)

	saved, err := env.bookings.Get(context.Background(), res.BookingID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", saved.Customer.Name)
	assert.Equal(t, "10:00", saved.Time)
}

func TestChatSend_BroadcastsConfirmedBooking(t *testing.T) {
	env := newTestEnv(t)
	desk := env.dial(t)
	watcher := env.dial(t)
	requireOK(t, call(t, watcher, "health", nil), nil)

	var res ChatSendResult
	for _, turn := range append(manualTurns, "yes") {
		res = chat(t, desk, turn)
	}
	require.Equal(t, "confirmed", res.Outcome)
	env.hooks.Wait()

	watcher.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev Frame
	require.NoError(t, watcher.ReadJSON(&ev))
	assert.Equal(t, FrameTypeEvent, ev.Type)
	assert.Equal(t, "booking.confirmed", ev.Event)

	var payload BookingEvent
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, res.BookingID, payload.BookingID)
	assert.Equal(t, res.ConversationID, payload.ConversationID)
	assert.Equal(t, "Dental", payload.BookingType)
	assert.NotContains(t, string(ev.Payload), "jane@x.com")
}

func TestChatSend_ExplicitConversationID(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	var res ChatSendResult
	requireOK(t, call(t, conn, "chat.send", ChatSendParams{Message: manualTurns[0], ConversationID: "kiosk-1"}), &res)
	assert.Equal(t, "kiosk-1", res.ConversationID)
	assert.Equal(t, "manual", res.State.Mode)

	other := chat(t, conn, "hello")
	assert.NotEqual(t, "kiosk-1", other.ConversationID)
	assert.Equal(t, "unset", other.State.Mode)
}

func TestChatSend_Validation(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	requireErr(t, call(t, conn, "chat.send", ChatSendParams{Message: "   "}), "invalid_params")
	requireErr(t, call(t, conn, "chat.send", json.RawMessage(`"not an object"`)), "invalid_params")
}

func TestChatSend_NoAssistant(t *testing.T) {
	env := newTestEnv(t, withoutAssistant())
	conn := env.dial(t)

	requireErr(t, call(t, conn, "chat.send", ChatSendParams{Message: "hello"}), "unavailable")
	requireErr(t, call(t, conn, "bookings.stats", nil), "unavailable")
}

func TestChatSend_RateLimited(t *testing.T) {
	env := newTestEnv(t, withRateLimit(1, 2))
	conn := env.dial(t)

	chat(t, conn, "hello")
	chat(t, conn, "hello again")

	e := requireErr(t, call(t, conn, "chat.send", ChatSendParams{Message: "and again"}), "rate_limited")
	assert.True(t, e.Retryable)
	assert.Equal(t, 60000, e.RetryAfterMs)
}

func TestDocumentUpload_BookingDocument(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	doc := "Name: Jane Doe\nEmail: jane@x.com\nPhone: 5551234567\nType: Dental\nDate: 2026-02-01\nTime: 10:00"
	var res DocumentUploadResult
	requireOK(t, call(t, conn, "document.upload", DocumentUploadParams{
		Documents: []UploadDocument{{Name: "booking.txt", MimeType: "text/plain", ContentBase64: b64(doc)}},
	}), &res)

	assert.True(t, res.BookingDocument)
	assert.Equal(t, []string{"booking.txt"}, res.Ingested)
	assert.True(t, strings.HasPrefix(res.Response, "✅ **PDF processed successfully!**"))
	assert.Equal(t, "document", res.State.Mode)
	assert.True(t, res.State.DocumentIngested)
	assert.True(t, res.State.AwaitingConfirmation)
	assert.Equal(t, "jane@x.com", res.State.Slots["email"])

	confirmed := chat(t, conn, "yes")
	assert.Equal(t, "confirmed", confirmed.Outcome)
}

func TestDocumentUpload_ReferenceDocument(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	var res DocumentUploadResult
	requireOK(t, call(t, conn, "document.upload", DocumentUploadParams{
		Documents: []UploadDocument{{Name: "hours.txt", ContentBase64: b64("We are open Monday through Friday.")}},
	}), &res)
	assert.False(t, res.BookingDocument)
	assert.Contains(t, res.Response, "general reference")
	assert.False(t, res.State.DocumentIngested)
}

func TestDocumentUpload_Errors(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	requireErr(t, call(t, conn, "document.upload", DocumentUploadParams{}), "invalid_params")
	requireErr(t, call(t, conn, "document.upload", DocumentUploadParams{
		Documents: []UploadDocument{{Name: "x.txt", ContentBase64: "!!not base64!!"}},
	}), "invalid_params")

	e := requireErr(t, call(t, conn, "document.upload", DocumentUploadParams{
		Documents: []UploadDocument{{Name: "blob.bin", ContentBase64: "AAECAw=="}},
	}), "no_text")
	assert.NotNil(t, e.Details)
}

func TestSessionStateResetAndList(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	first := chat(t, conn, manualTurns[0])
	chat(t, conn, manualTurns[1])

	var st booking.State
	requireOK(t, call(t, conn, "session.state", ConversationParams{}), &st)
	assert.Equal(t, "manual", st.Mode)
	assert.Equal(t, "Jane Doe", st.Slots["name"])

	var list struct {
		Sessions []string `json:"sessions"`
	}
	requireOK(t, call(t, conn, "session.list", nil), &list)
	assert.Contains(t, list.Sessions, first.ConversationID)

	var reset struct {
		ConversationID string        `json:"conversationId"`
		State          booking.State `json:"state"`
	}
	requireOK(t, call(t, conn, "session.reset", ConversationParams{}), &reset)
	assert.Equal(t, first.ConversationID, reset.ConversationID)
	assert.Equal(t, "unset", reset.State.Mode)
	assert.Empty(t, reset.State.Slots)
}

func TestServerStart(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gateway.Port = 0
	cfg.Gateway.Auth.Mode = "token"
	cfg.Gateway.Auth.Token = testToken

	hm := hooks.NewManager(testLog())
	var started, stopped atomic.Bool
	hm.On(hooks.EventGatewayStart, "test", func(context.Context, hooks.Payload) error { started.Store(true); return nil })
	hm.On(hooks.EventGatewayStop, "test", func(context.Context, hooks.Payload) error { stopped.Store(true); return nil })

	srv := New(cfg, testLog(), WithHooks(hm))
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	assert.NoError(t, <-errCh)
	assert.True(t, started.Load())
	assert.Eventually(t, stopped.Load, time.Second, 10*time.Millisecond)
}
