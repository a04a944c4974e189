// Package assistant keeps one booking conversation per key and runs chat
// turns and document uploads against it.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/clinicbot/internal/booking"
	"github.com/soyeahso/clinicbot/internal/domain"
	"github.com/soyeahso/clinicbot/internal/hooks"
	"github.com/soyeahso/clinicbot/internal/llm"
	"github.com/soyeahso/clinicbot/internal/logging"
	"github.com/soyeahso/clinicbot/internal/rag"
)

// bookingQuery is sent to the document index to pull the booking details
// out of an uploaded file.
const bookingQuery = "booking appointment patient name email phone date time"

// minAnswerLength is the shortest retrieval answer treated as usable text;
// anything shorter falls back to the raw document text.
const minAnswerLength = 20

const msgReferenceOnly = "📚 Document processed for general reference (not booking data). Ask me anything about it!"

var bookingDocumentKeywords = []string{
	"email", "phone", "dental", "cardiology", "appointment",
	"pediatric", "dermatology", "orthopedic", "consultation",
	"booking", "patient", "name", "contact", "mail", "mobile",
	"@", "date", "time",
}

// Documents is the document pipeline the assistant drives.
type Documents interface {
	Ingest(ctx context.Context, conversationID string, files []rag.File) (*rag.IngestResult, error)
	Query(ctx context.Context, conversationID, question string, history []llm.Message) (string, error)
	RawText(ctx context.Context, conversationID string) (string, error)
	Reset(ctx context.Context, conversationID string) error
}

// Transcripts persists chat history across restarts.
type Transcripts interface {
	Append(ctx context.Context, conversationID, channel string, msg domain.Message) error
	History(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
	Clear(ctx context.Context, conversationID string) error
}

// Options wires the assistant. Documents, Transcripts and Hooks are optional.
type Options struct {
	Controller   *booking.Controller
	Documents    Documents
	Transcripts  Transcripts
	Hooks        *hooks.Manager
	HistoryLimit int
}

// Assistant owns every conversation's booking session and chat history.
// Turns on one conversation run one at a time; different conversations run
// independently.
type Assistant struct {
	controller  *booking.Controller
	documents   Documents
	transcripts Transcripts
	hooks       *hooks.Manager
	maxHistory  int
	log         *logging.Logger

	mu    sync.Mutex
	convs map[string]*conversation
}

type conversation struct {
	mu       sync.Mutex
	id       string
	channel  string
	session  *booking.Session
	history  []llm.Message
	restored bool
}

// New creates an Assistant.
func New(opts Options, log *logging.Logger) *Assistant {
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = 20
	}
	return &Assistant{
		controller:  opts.Controller,
		documents:   opts.Documents,
		transcripts: opts.Transcripts,
		hooks:       opts.Hooks,
		maxHistory:  limit * 2,
		log:         log.Sub("assistant"),
		convs:       make(map[string]*conversation),
	}
}

// conversation returns the record for id, creating it on first use.
func (a *Assistant) conversation(id, channel string) *conversation {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.convs[id]
	if !ok {
		c = &conversation{id: id, channel: channel, session: booking.NewSession(id)}
		a.convs[id] = c
	}
	if c.channel == "" {
		c.channel = channel
	}
	return c
}

// restore loads the persisted transcript the first time a conversation is
// touched in this process. Caller holds c.mu.
func (a *Assistant) restore(ctx context.Context, c *conversation) {
	if c.restored || a.transcripts == nil {
		c.restored = true
		return
	}
	c.restored = true
	msgs, err := a.transcripts.History(ctx, c.id, a.maxHistory)
	if err != nil {
		a.log.Warn().Err(err).Str("conversation", c.id).Msg("restoring transcript")
		return
	}
	for _, m := range msgs {
		c.history = append(c.history, llm.Message{Role: m.Role, Content: m.Content})
	}
	if len(msgs) > 0 {
		a.log.Debug().Str("conversation", c.id).Int("messages", len(msgs)).Msg("transcript restored")
	}
}

// record appends a message to the in-memory history, trims it to the cap
// and persists it.
func (a *Assistant) record(ctx context.Context, c *conversation, role, content string) {
	c.history = append(c.history, llm.Message{Role: role, Content: content})
	if over := len(c.history) - a.maxHistory; over > 0 {
		c.history = append([]llm.Message(nil), c.history[over:]...)
	}
	if a.transcripts == nil {
		return
	}
	msg := domain.Message{Role: role, Content: content, Timestamp: time.Now()}
	if err := a.transcripts.Append(ctx, c.id, c.channel, msg); err != nil {
		a.log.Warn().Err(err).Str("conversation", c.id).Msg("saving transcript")
	}
}

// Chat runs one user turn and returns the assistant's reply.
func (a *Assistant) Chat(ctx context.Context, conversationID, channel, text string) booking.Reply {
	c := a.conversation(conversationID, channel)
	c.mu.Lock()
	defer c.mu.Unlock()
	a.restore(ctx, c)

	a.emit(ctx, hooks.Payload{
		Event:          hooks.EventMessageReceived,
		ConversationID: c.id,
		Channel:        c.channel,
		Data:           map[string]any{"text": text},
	})

	history := append([]llm.Message(nil), c.history...)
	reply := a.controller.Handle(ctx, c.session, text, history)

	a.record(ctx, c, llm.RoleUser, text)
	a.record(ctx, c, llm.RoleAssistant, reply.Text)

	a.emit(ctx, hooks.Payload{
		Event:          hooks.EventReplySent,
		ConversationID: c.id,
		Channel:        c.channel,
		Data:           map[string]any{"intent": reply.Intent.String()},
	})
	a.emitOutcome(ctx, c, reply)
	return reply
}

// UploadResult describes what an upload did.
type UploadResult struct {
	Reply           booking.Reply
	Ingested        []string
	Skipped         map[string]string
	BookingDocument bool
}

// Upload ingests documents into the conversation. When their text looks
// like booking data the details are extracted and merged into the session;
// otherwise the documents are kept for questions only. When no file yields
// text the result still lists why each was skipped.
func (a *Assistant) Upload(ctx context.Context, conversationID, channel string, files []rag.File) (*UploadResult, error) {
	if a.documents == nil {
		return nil, fmt.Errorf("document uploads are not configured")
	}

	c := a.conversation(conversationID, channel)
	c.mu.Lock()
	defer c.mu.Unlock()
	a.restore(ctx, c)

	res, err := a.documents.Ingest(ctx, c.id, files)
	if err != nil {
		if res != nil {
			return &UploadResult{Skipped: res.Skipped}, err
		}
		return nil, err
	}

	out := &UploadResult{Skipped: res.Skipped}
	for _, d := range res.Documents {
		out.Ingested = append(out.Ingested, d.Name)
	}
	out.BookingDocument = IsBookingDocument(res.Text)

	a.log.Info().
		Str("conversation", c.id).
		Strs("documents", out.Ingested).
		Bool("booking", out.BookingDocument).
		Msg("documents uploaded")

	if !out.BookingDocument {
		out.Reply = booking.Reply{Text: msgReferenceOnly}
		a.record(ctx, c, llm.RoleAssistant, out.Reply.Text)
		return out, nil
	}

	text := a.bookingText(ctx, c)
	ext := a.controller.Extract(ctx, text)
	out.Reply = a.controller.IngestExtraction(c.session, ext, text)
	a.record(ctx, c, llm.RoleAssistant, out.Reply.Text)

	fields := make([]string, 0, len(ext.Fields))
	for _, f := range booking.Fields {
		if _, ok := ext.Fields[f]; ok {
			fields = append(fields, string(f))
		}
	}
	a.emit(ctx, hooks.Payload{
		Event:          hooks.EventDocumentIngested,
		ConversationID: c.id,
		Channel:        c.channel,
		Data: map[string]any{
			"documents": out.Ingested,
			"fields":    fields,
			"dateError": ext.DateError,
		},
	})
	return out, nil
}

// bookingText asks the index for the booking details and falls back to the
// raw document text when the answer is too short or empty-handed.
func (a *Assistant) bookingText(ctx context.Context, c *conversation) string {
	answer, err := a.documents.Query(ctx, c.id, bookingQuery, nil)
	if err != nil {
		a.log.Warn().Err(err).Str("conversation", c.id).Msg("querying booking details")
	}
	if err == nil && len(strings.TrimSpace(answer)) >= minAnswerLength &&
		!strings.Contains(strings.ToLower(answer), booking.NoAnswerMarker) {
		return answer
	}
	raw, err := a.documents.RawText(ctx, c.id)
	if err != nil {
		a.log.Warn().Err(err).Str("conversation", c.id).Msg("reading raw document text")
	}
	return raw
}

// IsBookingDocument reports whether document text mentions any booking
// detail.
func IsBookingDocument(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range bookingDocumentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Reset clears the conversation: booking session, chat history, uploaded
// documents and the stored transcript.
func (a *Assistant) Reset(ctx context.Context, conversationID string) error {
	c := a.conversation(conversationID, "")
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session.Reset()
	c.history = nil
	c.restored = true

	var errs []string
	if a.documents != nil {
		if err := a.documents.Reset(ctx, c.id); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if a.transcripts != nil {
		if err := a.transcripts.Clear(ctx, c.id); err != nil {
			errs = append(errs, err.Error())
		}
	}

	a.emit(ctx, hooks.Payload{Event: hooks.EventSessionReset, ConversationID: c.id, Channel: c.channel})
	a.log.Info().Str("conversation", c.id).Msg("conversation reset")

	if len(errs) > 0 {
		return fmt.Errorf("resetting conversation %s: %s", c.id, strings.Join(errs, "; "))
	}
	return nil
}

// State returns a snapshot of the conversation's booking session.
func (a *Assistant) State(conversationID string) booking.State {
	c := a.conversation(conversationID, "")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Snapshot()
}

// History returns a copy of the conversation's chat history.
func (a *Assistant) History(conversationID string) []llm.Message {
	c := a.conversation(conversationID, "")
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Message(nil), c.history...)
}

// Conversations lists the ids of the conversations held in memory.
func (a *Assistant) Conversations() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.convs))
	for id := range a.convs {
		ids = append(ids, id)
	}
	return ids
}

func (a *Assistant) emitOutcome(ctx context.Context, c *conversation, reply booking.Reply) {
	event, ok := hooks.ForReply(reply)
	if !ok {
		return
	}
	p := hooks.Payload{Event: event, ConversationID: c.id, Channel: c.channel, BookingID: reply.BookingID}
	if reply.Outcome != booking.OutcomeCancelled {
		d := reply.Booking
		p.Booking = &d
		p.Data = map[string]any{"emailed": reply.Emailed}
	}
	a.emit(ctx, p)
}

func (a *Assistant) emit(ctx context.Context, p hooks.Payload) {
	if a.hooks == nil {
		return
	}
	a.hooks.EmitAsync(context.WithoutCancel(ctx), p)
}
