package rag

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupported is returned for uploads that are neither PDF nor text.
var ErrUnsupported = errors.New("unsupported document type")

// File is an uploaded document.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// IsPDF reports whether the file looks like a PDF by type, extension or
// magic bytes.
func (f File) IsPDF() bool {
	return f.MimeType == "application/pdf" ||
		strings.EqualFold(filepath.Ext(f.Name), ".pdf") ||
		bytes.HasPrefix(f.Data, []byte("%PDF-"))
}

func (f File) isText() bool {
	if strings.HasPrefix(f.MimeType, "text/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(f.Name)) {
	case ".txt", ".md", ".csv":
		return true
	}
	return utf8.Valid(f.Data) && !bytes.ContainsRune(f.Data, 0)
}

// ExtractText returns the plain text of a PDF or text file.
func ExtractText(f File) (string, error) {
	switch {
	case f.IsPDF():
		return pdfText(f.Data)
	case f.isText():
		return string(f.Data), nil
	}
	return "", fmt.Errorf("%s: %w", f.Name, ErrUnsupported)
}

// pdfText reads every page. The pdf package panics on some malformed
// inputs, so that is turned into an error.
func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if pageText != "" {
			b.WriteString(pageText)
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
