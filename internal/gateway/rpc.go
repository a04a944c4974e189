package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/soyeahso/clinicbot/internal/config"
	"github.com/soyeahso/clinicbot/internal/domain"
	"github.com/soyeahso/clinicbot/internal/rag"
	"github.com/soyeahso/clinicbot/internal/store"
)

// Method serves one RPC. A returned *RPCError reaches the client as is;
// any other error is logged and reported as code "internal".
type Method func(ctx context.Context, c *Conn, params json.RawMessage) (any, error)

// turnTimeout bounds a chat turn or upload, model calls included.
const turnTimeout = 2 * time.Minute

// Handle registers m under name, replacing any earlier registration.
func (s *Server) Handle(name string, m Method) {
	s.methods[name] = m
}

// Methods lists the registered method names in sorted order.
func (s *Server) Methods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *Server) registerMethods() {
	s.Handle("health", func(context.Context, *Conn, json.RawMessage) (any, error) { return s.health(), nil })
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("config.set", s.rpcConfigSet)
	s.Handle("channels.status", s.rpcChannelsStatus)

	s.Handle("chat.send", s.rpcChatSend)
	s.Handle("document.upload", s.rpcDocumentUpload)
	s.Handle("session.reset", s.rpcSessionReset)
	s.Handle("session.state", s.rpcSessionState)
	s.Handle("session.list", s.rpcSessionList)

	s.Handle("bookings.list", s.rpcBookingsList)
	s.Handle("bookings.search", s.rpcBookingsSearch)
	s.Handle("bookings.get", s.rpcBookingsGet)
	s.Handle("bookings.stats", s.rpcBookingsStats)
}

// call runs the method a request names and builds its response frame.
func (s *Server) call(ctx context.Context, c *Conn, req Frame) Frame {
	m, ok := s.methods[req.Method]
	if !ok {
		return errorFrame(req.ID, rpcErr("method_not_found", "unknown method: %s", req.Method))
	}

	result, err := m(ctx, c, req.Params)
	if err != nil {
		var re *RPCError
		if !errors.As(err, &re) {
			c.log.Error().Err(err).Str("method", req.Method).Msg("rpc failed")
			re = rpcErr("internal", "internal error")
		}
		return errorFrame(req.ID, re)
	}
	f, err := resultFrame(req.ID, result)
	if err != nil {
		return errorFrame(req.ID, rpcErr("internal", "encoding result: %v", err))
	}
	return f
}

// decode unmarshals params into a T. Absent params leave T zero.
func decode[T any](params json.RawMessage) (T, error) {
	var v T
	if len(params) == 0 || string(params) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(params, &v); err != nil {
		return v, rpcErr("invalid_params", "%v", err)
	}
	return v, nil
}

// configRPCPrefixes are the config keys clients may read and write.
// Secrets, TLS, storage and provider settings stay server side.
var configRPCPrefixes = []string{
	"gateway.port",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.controlUi",
	"gateway.rateLimit",
	"logging",
	"session",
	"booking",
	"rag",
}

func isAllowedConfigPath(key string) bool {
	return slices.ContainsFunc(configRPCPrefixes, func(p string) bool {
		return key == p || strings.HasPrefix(key, p+".")
	})
}

type configGetParams struct {
	Key string `json:"key"`
}

type configSetParams struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type configEntry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func configPath(key string) ([]string, error) {
	if key == "" {
		return nil, rpcErr("invalid_params", "key is required")
	}
	if !isAllowedConfigPath(key) {
		return nil, rpcErr("forbidden", "config path not available over rpc: %s", key)
	}
	path, err := config.ParseConfigPath(key)
	if err != nil {
		return nil, rpcErr("invalid_params", "%v", err)
	}
	return path, nil
}

func (s *Server) rpcConfigGet(_ context.Context, _ *Conn, params json.RawMessage) (any, error) {
	p, err := decode[configGetParams](params)
	if err != nil {
		return nil, err
	}
	path, err := configPath(p.Key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	val, ok := config.GetValueAtPath(s.configRaw, path)
	s.mu.RUnlock()
	if !ok {
		return nil, rpcErr("not_found", "key not found: %s", p.Key)
	}
	return configEntry{Key: p.Key, Value: val}, nil
}

// rpcConfigSet edits the in-memory document only; the file on disk is
// changed with "clinicbot config set".
func (s *Server) rpcConfigSet(_ context.Context, _ *Conn, params json.RawMessage) (any, error) {
	p, err := decode[configSetParams](params)
	if err != nil {
		return nil, err
	}
	path, err := configPath(p.Key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	config.SetValueAtPath(s.configRaw, path, p.Value)
	s.mu.Unlock()
	return configEntry(p), nil
}

func (s *Server) rpcChannelsStatus(context.Context, *Conn, json.RawMessage) (any, error) {
	statuses := []domain.ChannelStatus{}
	if s.channels != nil {
		statuses = s.channels.Status()
	}
	return map[string]any{"channels": statuses}, nil
}

// admitTurn applies the connection's chat rate limit.
func (s *Server) admitTurn(c *Conn) error {
	if c.allowTurn() {
		return nil
	}
	e := rpcErr("rate_limited", "too many messages, slow down")
	e.Retryable = true
	if per := s.cfg.Gateway.RateLimit.PerMinute; per > 0 {
		e.RetryAfterMs = int((time.Minute / time.Duration(per)).Milliseconds())
	}
	return e
}

var (
	errNoAssistant = rpcErr("unavailable", "assistant not configured")
	errNoStore     = rpcErr("unavailable", "booking store not configured")
)

func (s *Server) rpcChatSend(ctx context.Context, c *Conn, params json.RawMessage) (any, error) {
	if s.assistant == nil {
		return nil, errNoAssistant
	}
	p, err := decode[ChatSendParams](params)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Message) == "" {
		return nil, rpcErr("invalid_params", "message is required")
	}
	if err := s.admitTurn(c); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	conv := c.conversation(p.ConversationID)
	reply := s.assistant.Chat(ctx, conv, "gateway", p.Message)
	return ChatSendResult{
		Response:       reply.Text,
		ConversationID: conv,
		Intent:         reply.Intent.String(),
		Outcome:        reply.Outcome.String(),
		BookingID:      reply.BookingID,
		Emailed:        reply.Emailed,
		State:          s.assistant.State(conv),
	}, nil
}

func uploadFiles(docs []UploadDocument) ([]rag.File, error) {
	if len(docs) == 0 {
		return nil, rpcErr("invalid_params", "at least one document is required")
	}
	files := make([]rag.File, len(docs))
	for i, d := range docs {
		data, err := base64.StdEncoding.DecodeString(d.ContentBase64)
		if err != nil {
			return nil, rpcErr("invalid_params", "documents[%d]: invalid base64: %v", i, err)
		}
		name := d.Name
		if name == "" {
			name = fmt.Sprintf("document-%d", i+1)
		}
		files[i] = rag.File{Name: name, MimeType: d.MimeType, Data: data}
	}
	return files, nil
}

func (s *Server) rpcDocumentUpload(ctx context.Context, c *Conn, params json.RawMessage) (any, error) {
	if s.assistant == nil {
		return nil, errNoAssistant
	}
	p, err := decode[DocumentUploadParams](params)
	if err != nil {
		return nil, err
	}
	files, err := uploadFiles(p.Documents)
	if err != nil {
		return nil, err
	}
	if err := s.admitTurn(c); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	conv := c.conversation(p.ConversationID)
	res, err := s.assistant.Upload(ctx, conv, "gateway", files)
	switch {
	case errors.Is(err, rag.ErrNoText):
		e := rpcErr("no_text", "no readable text found in the uploaded documents")
		if res != nil {
			e.Details = res.Skipped
		}
		return nil, e
	case err != nil:
		return nil, rpcErr("upload_failed", "%v", err)
	}
	return DocumentUploadResult{
		Response:        res.Reply.Text,
		ConversationID:  conv,
		Ingested:        res.Ingested,
		Skipped:         res.Skipped,
		BookingDocument: res.BookingDocument,
		State:           s.assistant.State(conv),
	}, nil
}

func (s *Server) rpcSessionReset(ctx context.Context, c *Conn, params json.RawMessage) (any, error) {
	if s.assistant == nil {
		return nil, errNoAssistant
	}
	p, err := decode[ConversationParams](params)
	if err != nil {
		return nil, err
	}
	conv := c.conversation(p.ConversationID)
	if err := s.assistant.Reset(ctx, conv); err != nil {
		return nil, rpcErr("reset_failed", "%v", err)
	}
	return map[string]any{"conversationId": conv, "state": s.assistant.State(conv)}, nil
}

func (s *Server) rpcSessionState(_ context.Context, c *Conn, params json.RawMessage) (any, error) {
	if s.assistant == nil {
		return nil, errNoAssistant
	}
	p, err := decode[ConversationParams](params)
	if err != nil {
		return nil, err
	}
	return s.assistant.State(c.conversation(p.ConversationID)), nil
}

func (s *Server) rpcSessionList(context.Context, *Conn, json.RawMessage) (any, error) {
	ids := []string{}
	if s.assistant != nil {
		ids = append(ids, s.assistant.Conversations()...)
		slices.Sort(ids)
	}
	return map[string]any{"sessions": ids}, nil
}

type bookingsListParams struct {
	Limit int `json:"limit,omitempty"`
}

type bookingsSearchParams struct {
	Query string `json:"query"`
}

type bookingsGetParams struct {
	ID int64 `json:"id"`
}

func storeErr(err error) error {
	return rpcErr("store_error", "%v", err)
}

func (s *Server) rpcBookingsList(ctx context.Context, _ *Conn, params json.RawMessage) (any, error) {
	if s.bookings == nil {
		return nil, errNoStore
	}
	p, err := decode[bookingsListParams](params)
	if err != nil {
		return nil, err
	}
	list, err := s.bookings.List(ctx, p.Limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return bookingList{Bookings: nonNil(list)}, nil
}

func (s *Server) rpcBookingsSearch(ctx context.Context, _ *Conn, params json.RawMessage) (any, error) {
	if s.bookings == nil {
		return nil, errNoStore
	}
	p, err := decode[bookingsSearchParams](params)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Query) == "" {
		return nil, rpcErr("invalid_params", "query is required")
	}
	list, err := s.bookings.Search(ctx, p.Query)
	if err != nil {
		return nil, storeErr(err)
	}
	return bookingList{Bookings: nonNil(list)}, nil
}

func (s *Server) rpcBookingsGet(ctx context.Context, _ *Conn, params json.RawMessage) (any, error) {
	if s.bookings == nil {
		return nil, errNoStore
	}
	p, err := decode[bookingsGetParams](params)
	if err != nil {
		return nil, err
	}
	b, err := s.bookings.Get(ctx, p.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, rpcErr("not_found", "booking %d not found", p.ID)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return b, nil
}

func (s *Server) rpcBookingsStats(ctx context.Context, _ *Conn, _ json.RawMessage) (any, error) {
	if s.bookings == nil {
		return nil, errNoStore
	}
	st, err := s.bookings.Stats(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return st, nil
}
