package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSplitter(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
		wantErr       bool
	}{
		{"defaults", 1000, 200, false},
		{"no overlap", 10, 0, false},
		{"zero size", 0, 0, true},
		{"overlap equals size", 10, 10, true},
		{"negative overlap", 10, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSplitter(tt.size, tt.overlap)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitter_Words(t *testing.T) {
	s := Splitter{Size: 20, Overlap: 5}
	got := s.Split("aaaa bbbb cccc dddd eeee ffff")
	assert.Equal(t, []string{"aaaa bbbb cccc dddd", "dddd eeee ffff"}, got)
}

func TestSplitter_ShortTextIsOneChunk(t *testing.T) {
	s := Splitter{Size: 1000, Overlap: 200}
	got := s.Split("  Name: Jane Doe\nEmail: jane@x.com  ")
	assert.Equal(t, []string{"Name: Jane Doe\nEmail: jane@x.com"}, got)
}

func TestSplitter_PrefersParagraphs(t *testing.T) {
	s := Splitter{Size: 30, Overlap: 0}
	got := s.Split("first paragraph here\n\nsecond paragraph here")
	assert.Equal(t, []string{"first paragraph here", "second paragraph here"}, got)
}

func TestSplitter_LongWordFallsBackToCharacters(t *testing.T) {
	s := Splitter{Size: 10, Overlap: 0}
	got := s.Split(strings.Repeat("x", 25))
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, got)
}

func TestSplitter_ChunksRespectSize(t *testing.T) {
	s := Splitter{Size: 100, Overlap: 20}
	text := strings.Repeat("The clinic offers dental and cardiology appointments. ", 40)
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 100)
		assert.NotEmpty(t, c)
	}
}

func TestSplitter_Blank(t *testing.T) {
	s := Splitter{Size: 10, Overlap: 2}
	assert.Nil(t, s.Split(" \n\n "))
}
