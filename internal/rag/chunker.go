package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts text into chunks of at most Size characters, preferring
// paragraph, then line, then word boundaries. Consecutive chunks share up to
// Overlap characters.
type Splitter struct {
	Size    int
	Overlap int
}

// NewSplitter validates the chunk geometry.
func NewSplitter(size, overlap int) (Splitter, error) {
	if size <= 0 {
		return Splitter{}, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return Splitter{}, fmt.Errorf("chunk overlap %d must be in [0, %d)", overlap, size)
	}
	return Splitter{Size: size, Overlap: overlap}, nil
}

// Split returns the chunks of text. Blank input yields no chunks.
func (s Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, defaultSeparators)
}

func (s Splitter) split(text string, separators []string) []string {
	sep := ""
	var next []string
	for i, c := range separators {
		if c == "" || strings.Contains(text, c) {
			sep = c
			next = separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
	} else {
		for _, p := range strings.Split(text, sep) {
			if p != "" {
				pieces = append(pieces, p)
			}
		}
	}

	var out, fits []string
	for _, p := range pieces {
		if utf8.RuneCountInString(p) < s.Size {
			fits = append(fits, p)
			continue
		}
		if len(fits) > 0 {
			out = append(out, s.merge(fits, sep)...)
			fits = nil
		}
		if len(next) == 0 {
			out = append(out, p)
		} else {
			out = append(out, s.split(p, next)...)
		}
	}
	if len(fits) > 0 {
		out = append(out, s.merge(fits, sep)...)
	}
	return out
}

// merge packs small pieces into chunks, carrying the tail of each chunk into
// the next one as overlap.
func (s Splitter) merge(pieces []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)
	var chunks, cur []string
	total := 0

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		joinLen := 0
		if len(cur) > 0 {
			joinLen = sepLen
		}
		if total+n+joinLen > s.Size && len(cur) > 0 {
			if c := strings.TrimSpace(strings.Join(cur, sep)); c != "" {
				chunks = append(chunks, c)
			}
			for total > s.Overlap || (total+n+sepLen > s.Size && total > 0) {
				drop := utf8.RuneCountInString(cur[0])
				if len(cur) > 1 {
					drop += sepLen
				}
				total -= drop
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		if len(cur) > 1 {
			total += n + sepLen
		} else {
			total += n
		}
	}
	if c := strings.TrimSpace(strings.Join(cur, sep)); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}
