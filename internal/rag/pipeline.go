// Package rag ingests uploaded documents into a per-conversation full-text
// index and answers questions from the best matching chunks.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soyeahso/clinicbot/internal/config"
	"github.com/soyeahso/clinicbot/internal/llm"
	"github.com/soyeahso/clinicbot/internal/logging"
	"github.com/soyeahso/clinicbot/internal/store"
)

// DefaultAnswer is returned when no indexed chunk matches a question.
const DefaultAnswer = "I couldn't find an answer in the documents."

// historyWindow is how many recent messages are quoted in a question.
const historyWindow = 6

const qaSystemPrompt = "Use the following pieces of context to answer the question at the end. " +
	"If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\n"

var (
	// ErrNoText is returned when none of the uploaded files yielded text.
	ErrNoText = errors.New("no text extracted from documents")

	errNoCompleter = errors.New("no completion client configured")
)

// Index stores and searches document chunks.
type Index interface {
	Add(ctx context.Context, doc store.Document, chunks []string) (*store.Document, error)
	Search(ctx context.Context, conversationID, query string, limit int) ([]store.Chunk, error)
	RawText(ctx context.Context, conversationID string) (string, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// Completer is the part of an LLM client the pipeline needs.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Pipeline ties extraction, chunking, indexing and answering together.
type Pipeline struct {
	index     Index
	completer Completer
	splitter  Splitter
	model     string
	topK      int
	log       *logging.Logger
}

// NewPipeline creates a Pipeline from the rag config section.
func NewPipeline(index Index, completer Completer, model string, cfg config.RAGConfig, log *logging.Logger) (*Pipeline, error) {
	splitter, err := NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("rag: %w", err)
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	return &Pipeline{
		index:     index,
		completer: completer,
		splitter:  splitter,
		model:     model,
		topK:      topK,
		log:       log.Sub("rag"),
	}, nil
}

// IngestResult describes one upload.
type IngestResult struct {
	Documents []store.Document
	Skipped   map[string]string // file name → reason
	Text      string            // combined text of the ingested files
}

// Ingest extracts, chunks and indexes files into a conversation. Files that
// cannot be read are skipped; ErrNoText is returned if none could be.
func (p *Pipeline) Ingest(ctx context.Context, conversationID string, files []File) (*IngestResult, error) {
	res := &IngestResult{Skipped: make(map[string]string)}
	var texts []string

	for _, f := range files {
		text, err := ExtractText(f)
		if err != nil {
			p.log.Warn().Err(err).Str("file", f.Name).Msg("skipping document")
			res.Skipped[f.Name] = err.Error()
			continue
		}
		if strings.TrimSpace(text) == "" {
			res.Skipped[f.Name] = "no text"
			continue
		}

		chunks := p.splitter.Split(text)
		doc, err := p.index.Add(ctx, store.Document{
			ConversationID: conversationID,
			Name:           f.Name,
			Content:        text,
		}, chunks)
		if err != nil {
			return res, fmt.Errorf("indexing %s: %w", f.Name, err)
		}

		p.log.Info().
			Str("conversation", conversationID).
			Str("file", f.Name).
			Int("chars", len(text)).
			Int("chunks", len(chunks)).
			Msg("document ingested")
		res.Documents = append(res.Documents, *doc)
		texts = append(texts, text)
	}

	if len(res.Documents) == 0 {
		return res, ErrNoText
	}
	res.Text = strings.Join(texts, "\n\n")
	return res, nil
}

// Query answers a question from the conversation's documents. history is
// the conversation so far; its last few messages give the question context.
func (p *Pipeline) Query(ctx context.Context, conversationID, question string, history []llm.Message) (string, error) {
	chunks, err := p.index.Search(ctx, conversationID, question, p.topK)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return DefaultAnswer, nil
	}
	if p.completer == nil {
		return "", errNoCompleter
	}

	var ctxText strings.Builder
	for i, c := range chunks {
		if i > 0 {
			ctxText.WriteString("\n\n")
		}
		ctxText.WriteString(c.Content)
	}

	temp := 0.1
	resp, err := p.completer.Complete(ctx, llm.CompletionRequest{
		Model:       p.model,
		System:      qaSystemPrompt + ctxText.String(),
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: questionPrompt(question, history)}},
		Temperature: &temp,
	})
	if err != nil {
		return "", fmt.Errorf("answering from documents: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return DefaultAnswer, nil
	}
	return resp.Content, nil
}

func questionPrompt(question string, history []llm.Message) string {
	var b strings.Builder
	if len(history) > 0 {
		if len(history) > historyWindow {
			history = history[len(history)-historyWindow:]
		}
		b.WriteString("Recent conversation:\n")
		for _, m := range history {
			b.WriteString(titleRole(m.Role))
			b.WriteString(": ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

func titleRole(role string) string {
	if role == "" {
		return role
	}
	return strings.ToUpper(role[:1]) + role[1:]
}

// RawText returns the full text of every document in the conversation.
func (p *Pipeline) RawText(ctx context.Context, conversationID string) (string, error) {
	return p.index.RawText(ctx, conversationID)
}

// Reset forgets every document of the conversation.
func (p *Pipeline) Reset(ctx context.Context, conversationID string) error {
	return p.index.DeleteConversation(ctx, conversationID)
}
