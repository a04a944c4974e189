package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/soyeahso/clinicbot/internal/config"
	"github.com/soyeahso/clinicbot/internal/llm"
	"github.com/soyeahso/clinicbot/internal/logging"
	"github.com/soyeahso/clinicbot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPipeline(t *testing.T, completer Completer) *Pipeline {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p, err := NewPipeline(store.NewDocumentStore(db), completer, "test-model", config.Defaults().RAG, log)
	require.NoError(t, err)
	return p
}

func answering(content string) *llm.MockClient {
	return &llm.MockClient{
		ProviderName: "test",
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: content}, nil
		},
	}
}

var faq = File{
	Name:     "faq.txt",
	MimeType: "text/plain",
	Data:     []byte("The clinic is open Monday to Friday.\n\nParking is free for patients."),
}

func TestNewPipeline_InvalidGeometry(t *testing.T) {
	_, err := NewPipeline(nil, nil, "", config.RAGConfig{ChunkSize: 10, ChunkOverlap: 20}, logging.New(nil, "silent"))
	assert.Error(t, err)
}

func TestPipeline_Ingest(t *testing.T) {
	p := testPipeline(t, nil)
	ctx := context.Background()

	res, err := p.Ingest(ctx, "conv-1", []File{
		faq,
		{Name: "scan.bin", MimeType: "application/octet-stream", Data: []byte{0x00, 0xff}},
		{Name: "blank.txt", Data: []byte("   ")},
	})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "faq.txt", res.Documents[0].Name)
	assert.Equal(t, 1, res.Documents[0].Chunks)
	assert.Contains(t, res.Skipped, "scan.bin")
	assert.Equal(t, "no text", res.Skipped["blank.txt"])
	assert.Equal(t, string(faq.Data), res.Text)

	raw, err := p.RawText(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, string(faq.Data), raw)
}

func TestPipeline_IngestNothingReadable(t *testing.T) {
	p := testPipeline(t, nil)
	res, err := p.Ingest(context.Background(), "conv-1", []File{{Name: "blank.txt", Data: []byte("\n")}})
	assert.ErrorIs(t, err, ErrNoText)
	assert.Empty(t, res.Documents)
}

func TestPipeline_QueryAnswersFromChunks(t *testing.T) {
	mock := answering("The clinic is open on weekdays.")
	p := testPipeline(t, mock)
	ctx := context.Background()
	_, err := p.Ingest(ctx, "conv-1", []File{faq})
	require.NoError(t, err)

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
	}
	got, err := p.Query(ctx, "conv-1", "Is the clinic open on Friday?", history)
	require.NoError(t, err)
	assert.Equal(t, "The clinic is open on weekdays.", got)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "test-model", reqs[0].Model)
	assert.Contains(t, reqs[0].System, "Monday to Friday")
	require.NotNil(t, reqs[0].Temperature)
	assert.Equal(t, 0.1, *reqs[0].Temperature)
	require.Len(t, reqs[0].Messages, 1)
	assert.Equal(t,
		"Recent conversation:\nUser: hi\nAssistant: hello\n\nQuestion: Is the clinic open on Friday?",
		reqs[0].Messages[0].Content)
}

func TestPipeline_QueryNoMatch(t *testing.T) {
	mock := answering("unused")
	p := testPipeline(t, mock)
	ctx := context.Background()
	_, err := p.Ingest(ctx, "conv-1", []File{faq})
	require.NoError(t, err)

	got, err := p.Query(ctx, "conv-1", "dermatology?", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultAnswer, got)
	assert.Empty(t, mock.Requests())

	got, err = p.Query(ctx, "other-conv", "clinic", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultAnswer, got)
}

func TestPipeline_QueryCompletionFails(t *testing.T) {
	mock := &llm.MockClient{CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, errors.New("boom")
	}}
	p := testPipeline(t, mock)
	ctx := context.Background()
	_, err := p.Ingest(ctx, "conv-1", []File{faq})
	require.NoError(t, err)

	_, err = p.Query(ctx, "conv-1", "parking", nil)
	assert.Error(t, err)
}

func TestPipeline_QueryEmptyAnswer(t *testing.T) {
	p := testPipeline(t, answering("  "))
	ctx := context.Background()
	_, err := p.Ingest(ctx, "conv-1", []File{faq})
	require.NoError(t, err)

	got, err := p.Query(ctx, "conv-1", "parking", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultAnswer, got)
}

func TestPipeline_Reset(t *testing.T) {
	p := testPipeline(t, answering("x"))
	ctx := context.Background()
	_, err := p.Ingest(ctx, "conv-1", []File{faq})
	require.NoError(t, err)

	require.NoError(t, p.Reset(ctx, "conv-1"))
	raw, err := p.RawText(ctx, "conv-1")
	require.NoError(t, err)
	assert.Empty(t, raw)
	got, err := p.Query(ctx, "conv-1", "parking", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultAnswer, got)
}

func TestQuestionPrompt_HistoryWindow(t *testing.T) {
	var history []llm.Message
	for i := 0; i < 8; i++ {
		history = append(history, llm.Message{Role: llm.RoleUser, Content: string(rune('a' + i))})
	}
	got := questionPrompt("q", history)
	assert.NotContains(t, got, "User: a\n")
	assert.NotContains(t, got, "User: b\n")
	assert.Contains(t, got, "User: c\n")
	assert.Contains(t, got, "User: h\n")

	assert.Equal(t, "Question: q", questionPrompt("q", nil))
}
