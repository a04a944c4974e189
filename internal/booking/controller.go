package booking

import (
	"context"
	"errors"
	"strings"

	"github.com/soyeahso/clinicbot/internal/llm"
	"github.com/soyeahso/clinicbot/internal/logging"
)

// NoAnswerMarker appears in a retrieval answer when the documents did not
// contain anything relevant.
const NoAnswerMarker = "couldn't find"

const assistantSystemPrompt = "You are a helpful medical appointment booking assistant."

// Retriever answers questions from the documents uploaded to a conversation.
type Retriever interface {
	Query(ctx context.Context, conversationID, question string, history []llm.Message) (string, error)
}

// BookingSaver persists a confirmed booking and returns its identifier.
type BookingSaver interface {
	SaveBooking(ctx context.Context, d Details) (int64, error)
}

// Notifier delivers the confirmation for a saved booking.
type Notifier interface {
	SendConfirmation(ctx context.Context, bookingID int64, d Details) error
}

// Outcome tells the caller what a turn did beyond producing text.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeConfirmed
	OutcomeCancelled
	OutcomeSaveFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeSaveFailed:
		return "save_failed"
	}
	return ""
}

// Reply is the result of one turn. Text is always set.
type Reply struct {
	Text      string
	Intent    Intent
	Outcome   Outcome
	BookingID int64
	Booking   Details
	Emailed   bool
}

// ControllerOptions wires the collaborators. Any of them may be nil; the
// controller then degrades the same way it does when the collaborator fails.
type ControllerOptions struct {
	Completer    Completer
	Retriever    Retriever
	Saver        BookingSaver
	Notifier     Notifier
	Model        string
	HistoryLimit int
}

// Controller drives a Session through collection, confirmation and reset.
// It holds no per-conversation state, so one Controller serves every session.
type Controller struct {
	validator    *Validator
	text         *TextExtractor
	docs         *DocumentExtractor
	completer    Completer
	retriever    Retriever
	saver        BookingSaver
	notifier     Notifier
	model        string
	historyLimit int
	log          *logging.Logger
}

// NewController creates a Controller around a validator and its collaborators.
func NewController(v *Validator, opts ControllerOptions, log *logging.Logger) *Controller {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	return &Controller{
		validator:    v,
		text:         NewTextExtractor(v),
		docs:         NewDocumentExtractor(opts.Completer, v, opts.Model, log),
		completer:    opts.Completer,
		retriever:    opts.Retriever,
		saver:        opts.Saver,
		notifier:     opts.Notifier,
		model:        opts.Model,
		historyLimit: opts.HistoryLimit,
		log:          log.Sub("booking"),
	}
}

// Validator returns the validator the controller checks slots with.
func (c *Controller) Validator() *Validator { return c.validator }

// Handle processes one user utterance. history holds the conversation so far,
// excluding the utterance itself.
func (c *Controller) Handle(ctx context.Context, s *Session, utterance string, history []llm.Message) Reply {
	intent := DetectIntent(s, utterance, len(history))
	c.log.Debug().
		Str("conversation", s.ID()).
		Str("intent", intent.String()).
		Str("mode", string(s.Mode())).
		Msg("handling turn")

	reply := Reply{Intent: intent}
	switch intent {
	case IntentUndecided:
		reply.Text = msgConfirmYesNo
	case IntentGreeting:
		reply.Text = c.greetingMessage()
	case IntentConfirmYes:
		return c.confirm(ctx, s)
	case IntentConfirmNo:
		s.Reset()
		reply.Text = msgCancelled
		reply.Outcome = OutcomeCancelled
	case IntentBooking:
		reply.Text = c.handleBooking(s, utterance)
	case IntentQuestion:
		reply.Text = c.answer(ctx, s, utterance, history)
	default:
		reply.Text = c.converse(ctx, utterance, history)
	}
	return reply
}

func (c *Controller) handleBooking(s *Session, utterance string) string {
	switch s.Mode() {
	case ModeUnset:
		lower := strings.ToLower(utterance)
		switch {
		case containsAny(lower, documentKeywords):
			s.mode = ModeDocument
			s.choosingMode = false
			return msgDocumentStart
		case containsAny(lower, manualKeywords):
			s.mode = ModeManual
			s.choosingMode = false
			return msgManualStart
		default:
			s.choosingMode = true
			return msgChooseMode
		}

	case ModeDocument:
		if !s.DocumentIngested() {
			return msgAwaitingUpload
		}
		ext := c.reconcile(s, c.text.Extract(utterance))
		filled := c.merge(s, ext.Fields)
		if msg, ok := c.rejection(ext); ok {
			return msg
		}
		if len(filled) > 0 {
			return "Got it! " + c.promptOrConfirm(s)
		}
		return c.promptOrConfirm(s)

	default:
		ext := c.reconcile(s, c.text.Extract(utterance))
		filled := c.merge(s, ext.Fields)
		if msg, ok := c.firstInvalid(s, ext); ok {
			return msg
		}
		if s.Complete() {
			return c.promptOrConfirm(s)
		}
		return acknowledgment(filled) + c.nextPrompt(s)
	}
}

// reconcile drops a guessed name when the session already holds one; only
// an explicit "my name is" phrase replaces a held name.
func (c *Controller) reconcile(s *Session, ext Extraction) Extraction {
	if !ext.NameGuessed {
		return ext
	}
	if _, held := s.Get(FieldName); held {
		delete(ext.Fields, FieldName)
		ext.NameGuessed = false
	}
	return ext
}

// merge writes validated values into the session and returns what changed.
// Values are re-validated here so nothing can bypass the validator.
func (c *Controller) merge(s *Session, fields map[Field]string) map[Field]string {
	filled := make(map[Field]string, len(fields))
	for _, f := range Fields {
		raw, ok := fields[f]
		if !ok {
			continue
		}
		value, err := c.validator.Validate(f, raw)
		if err != nil {
			c.log.Debug().Str("field", string(f)).Err(err).Msg("refusing invalid slot value")
			continue
		}
		s.slots[f] = value
		filled[f] = value
	}
	return filled
}

// firstInvalid re-validates the whole slot state together with any values
// the extractor rejected, reporting the first problem in schema order. A held
// value that has become invalid is reported but kept.
func (c *Controller) firstInvalid(s *Session, ext Extraction) (string, bool) {
	for _, f := range Fields {
		if verr, ok := ext.Rejected[f]; ok {
			return c.describe(verr), true
		}
		value, ok := s.slots[f]
		if !ok {
			continue
		}
		if _, err := c.validator.Validate(f, value); err != nil {
			return c.describe(err), true
		}
	}
	return "", false
}

func (c *Controller) rejection(ext Extraction) (string, bool) {
	for _, f := range Fields {
		if verr, ok := ext.Rejected[f]; ok {
			return c.describe(verr), true
		}
	}
	return "", false
}

// describe turns a validation failure into the user-facing message, adding
// the valid window to date problems.
func (c *Controller) describe(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) && verr.Field == FieldDate {
		return verr.Message + c.dateRangeHint()
	}
	return err.Error()
}

// promptOrConfirm asks for the next missing field, or arms confirmation once
// all six are held.
func (c *Controller) promptOrConfirm(s *Session) string {
	if next := c.nextPrompt(s); next != "" {
		return next
	}
	s.awaitingConfirmation = true
	return confirmationMessage(s.Details())
}

func (c *Controller) confirm(ctx context.Context, s *Session) Reply {
	s.awaitingConfirmation = false
	details := s.Details()
	reply := Reply{Intent: IntentConfirmYes, Booking: details}

	if c.saver == nil {
		c.log.Error().Str("conversation", s.ID()).Msg("no booking store configured")
		return c.saveFailed(s, reply)
	}
	id, err := c.saver.SaveBooking(ctx, details)
	if err != nil {
		c.log.Error().Err(err).Str("conversation", s.ID()).Msg("saving booking")
		return c.saveFailed(s, reply)
	}

	reply.BookingID = id
	reply.Outcome = OutcomeConfirmed
	if c.notifier != nil {
		if err := c.notifier.SendConfirmation(ctx, id, details); err != nil {
			c.log.Warn().Err(err).Int64("booking", id).Msg("confirmation email failed")
		} else {
			reply.Emailed = true
		}
	}

	c.log.Info().Int64("booking", id).Str("conversation", s.ID()).Bool("emailed", reply.Emailed).Msg("booking confirmed")
	reply.Text = bookedMessage(id, reply.Emailed)
	s.Reset()
	return reply
}

// saveFailed keeps the slots and re-arms confirmation so "yes" retries.
func (c *Controller) saveFailed(s *Session, reply Reply) Reply {
	s.awaitingConfirmation = true
	reply.Outcome = OutcomeSaveFailed
	reply.Text = saveFailedMessage(msgSaveFailed)
	return reply
}

// answer tries the uploaded documents first and falls back to the model.
func (c *Controller) answer(ctx context.Context, s *Session, question string, history []llm.Message) string {
	if c.retriever != nil {
		resp, err := c.retriever.Query(ctx, s.ID(), question, history)
		switch {
		case err != nil:
			c.log.Warn().Err(err).Msg("document query failed")
		case strings.TrimSpace(resp) != "" && !strings.Contains(strings.ToLower(resp), NoAnswerMarker):
			return resp
		}
	}
	return c.converse(ctx, question, history)
}

// converse is the open-domain reply over a bounded window of history.
func (c *Controller) converse(ctx context.Context, utterance string, history []llm.Message) string {
	if c.completer == nil {
		return msgLLMUnavailable
	}
	if len(history) > c.historyLimit {
		history = history[len(history)-c.historyLimit:]
	}
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: utterance})

	temp := 0.7
	resp, err := c.completer.Complete(ctx, llm.CompletionRequest{
		Model:       c.model,
		System:      assistantSystemPrompt,
		Messages:    messages,
		MaxTokens:   500,
		Temperature: &temp,
	})
	if err != nil {
		c.log.Error().Err(err).Msg("completion failed")
		return msgLLMUnavailable
	}
	return resp.Content
}

// Extract runs the document extractor over text from an uploaded document.
func (c *Controller) Extract(ctx context.Context, text string) Extraction {
	return c.docs.Extract(ctx, text)
}

// IngestExtraction merges a document extraction into the session, switches it
// to document mode and reports the result. raw is the document text used for
// the preview when nothing could be extracted.
func (c *Controller) IngestExtraction(s *Session, ext Extraction, raw string) Reply {
	s.mode = ModeDocument
	s.documentIngested = true
	s.choosingMode = false
	reply := Reply{Intent: IntentBooking}

	if ext.Empty() {
		c.log.Info().Str("conversation", s.ID()).Msg("document yielded no booking fields")
		reply.Text = uploadFallbackMessage(raw)
		return reply
	}

	filled := c.merge(s, ext.Fields)
	c.log.Info().Str("conversation", s.ID()).Int("fields", len(filled)).Msg("document fields merged")

	if ext.DateError != "" {
		reply.Text = uploadDateErrorMessage(ext.DateError)
		return reply
	}
	if s.Complete() {
		s.awaitingConfirmation = true
	}
	reply.Text = c.uploadSummary(s, filled)
	return reply
}
