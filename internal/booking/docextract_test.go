package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/soyeahso/clinicbot/internal/llm"
	"github.com/soyeahso/clinicbot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDocument = "Name: Jane Doe\nEmail: jane@x.com\nPhone: 5551234567\nType: Dental\nDate: 2026-02-01\nTime: 10:00"

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func replying(content string) *llm.MockClient {
	return &llm.MockClient{
		ProviderName: "test",
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: content}, nil
		},
	}
}

func failing() *llm.MockClient {
	return &llm.MockClient{
		ProviderName: "test",
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, &llm.ProviderError{Provider: "test", Message: "unavailable", Code: 503}
		},
	}
}

var sampleFields = map[Field]string{
	FieldName:        "Jane Doe",
	FieldEmail:       "jane@x.com",
	FieldPhone:       "5551234567",
	FieldBookingType: "Dental",
	FieldDate:        "2026-02-01",
	FieldTime:        "10:00",
}

func TestDocumentExtractor_Structured(t *testing.T) {
	mock := replying(`{"name":"Jane Doe","email":"jane@x.com","phone":"5551234567","booking_type":"Dental","date":"2026-02-01","time":"10:00"}`)
	x := NewDocumentExtractor(mock, testValidator(t, nil), "llama-3.3-70b-versatile", silentLog())

	ext := x.Extract(context.Background(), sampleDocument)
	assert.Equal(t, sampleFields, ext.Fields)
	assert.Empty(t, ext.DateError)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "llama-3.3-70b-versatile", reqs[0].Model)
	assert.Equal(t, extractionSystemPrompt, reqs[0].System)
	assert.Equal(t, 500, reqs[0].MaxTokens)
	require.NotNil(t, reqs[0].Temperature)
	assert.Equal(t, 0.1, *reqs[0].Temperature)
	require.Len(t, reqs[0].Messages, 1)
	assert.Contains(t, reqs[0].Messages[0].Content, "Name: Jane Doe")
}

func TestDocumentExtractor_StructuredVariants(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[Field]string
	}{
		{
			"code fence",
			"```json\n{\"name\": \"jane doe\", \"email\": null}\n```",
			map[Field]string{FieldName: "Jane Doe"},
		},
		{
			"numeric phone and absent markers",
			`{"phone": 5551234567, "time": "N/A", "date": "null", "booking_type": "cardio"}`,
			map[Field]string{FieldPhone: "5551234567", FieldBookingType: "Cardiology"},
		},
		{
			"invalid values dropped, extra keys ignored",
			`{"email": "not-an-email", "time": "7:00", "doctor": "Dr. Who", "time_zone": "UTC"}`,
			map[Field]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := NewDocumentExtractor(replying(tt.content), testValidator(t, nil), "", silentLog())
			ext := x.Extract(context.Background(), "some document")
			if len(tt.want) == 0 {
				assert.Empty(t, ext.Fields)
			} else {
				assert.Equal(t, tt.want, ext.Fields)
			}
		})
	}
}

func TestDocumentExtractor_DateErrors(t *testing.T) {
	v := testValidator(t, nil)

	x := NewDocumentExtractor(replying(`{"name":"Jane Doe","date":"2020-01-01"}`), v, "", silentLog())
	ext := x.Extract(context.Background(), "doc")
	assert.Equal(t, "The date 2020-01-01 has already passed.", ext.DateError)
	assert.NotContains(t, ext.Fields, FieldDate)
	assert.Equal(t, "Jane Doe", ext.Fields[FieldName])

	x = NewDocumentExtractor(replying(`{"date":"2027-01-01"}`), v, "", silentLog())
	ext = x.Extract(context.Background(), "doc")
	assert.Equal(t, "The date 2027-01-01 is too far in the future.", ext.DateError)
}

func TestDocumentExtractor_FallbackPaths(t *testing.T) {
	tests := []struct {
		name      string
		completer Completer
	}{
		{"completion error", failing()},
		{"not json", replying("Sure! Here are the details you asked for.")},
		{"trailing prose", replying("```json\n{\"name\": \"Someone Else\"}\n```\nNote: date missing")},
		{"no completer", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := NewDocumentExtractor(tt.completer, testValidator(t, nil), "", silentLog())
			ext := x.Extract(context.Background(), sampleDocument)
			assert.Equal(t, sampleFields, ext.Fields)
		})
	}
}

func TestDocumentExtractor_FallbackPastDate(t *testing.T) {
	x := NewDocumentExtractor(nil, testValidator(t, nil), "", silentLog())
	ext := x.Extract(context.Background(), "Name: Jane Doe\nDate: 2020-01-01\nTime: 9:30")
	assert.Equal(t, "The date 2020-01-01 has already passed.", ext.DateError)
	assert.Equal(t, "09:30", ext.Fields[FieldTime])
}

func TestDocumentExtractor_FallbackBareName(t *testing.T) {
	x := NewDocumentExtractor(nil, testValidator(t, nil), "", silentLog())
	ext := x.Extract(context.Background(), "APPOINTMENT REQUEST\n\njohn@x.com\nJohn Carter\n555 123 4567")
	assert.Equal(t, "Appointment Request", ext.Fields[FieldName], "first capitalised line wins")
	assert.Equal(t, "john@x.com", ext.Fields[FieldEmail])
	assert.NotContains(t, ext.Fields, FieldPhone, "spaced digits are not a phone number")
}

func TestDocumentExtractor_EmptyText(t *testing.T) {
	mock := replying(`{}`)
	x := NewDocumentExtractor(mock, testValidator(t, nil), "", silentLog())
	ext := x.Extract(context.Background(), "  \n ")
	assert.True(t, ext.Empty())
	assert.Empty(t, mock.Requests())
}

func TestNormalizeDocument(t *testing.T) {
	got := normalizeDocument("**Date:** 2026 - 02 - 01\n__Time__: 10 : 30")
	assert.Equal(t, "Date: 2026-02-01\nTime: 10:30", got)
}

func TestDecodeExtractionJSON(t *testing.T) {
	_, err := decodeExtractionJSON("not json")
	assert.Error(t, err)

	got, err := decodeExtractionJSON("```\n{\"phone\": 5551234567, \"name\": [\"x\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"phone": "5551234567"}, got)

	_, err = decodeExtractionJSON("{\"name\": \"Jane\"}\nNote: date missing")
	assert.Error(t, err)

	_, err = decodeExtractionJSON("{\"name\": \"Jane\"} {\"name\": \"Joe\"}")
	assert.Error(t, err)

	got, err = decodeExtractionJSON("```json\n{\"name\": \"Jane\"}\n```\n")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "Jane"}, got)
}

func TestDocumentExtractor_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mock := &llm.MockClient{CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, errors.Join(ctx.Err())
	}}
	x := NewDocumentExtractor(mock, testValidator(t, nil), "", silentLog())
	ext := x.Extract(ctx, sampleDocument)
	assert.Len(t, ext.Fields, 6, "fallback still runs locally")
}
