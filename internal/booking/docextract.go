package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/soyeahso/clinicbot/internal/llm"
	"github.com/soyeahso/clinicbot/internal/logging"
)

const extractionSystemPrompt = "You are a precise data extraction assistant. Return only valid JSON with null for missing values."

const extractionPrompt = `
You are an information extraction assistant.

The text below contains clinic appointment booking details.
Extract the structured booking information.

Fields to extract:
- name            (patient name)
- email
- phone
- booking_type    (type of consultation or appointment)
- date
- time

Important rules:
- Return ONLY a valid JSON object
- Use null if a field is missing
- Do NOT guess or assume values
- Convert dates to YYYY-MM-DD format
- Convert time to HH:MM (24-hour format)

Field interpretation rules:
- "Mail" or "Email ID" or anything with @ means email
- "Contact number", "Mobile", or "Phone" means phone
- "Consultation", "Appointment", or "Visit" or "Type" means booking_type
- Doctor name is NOT the patient name
- Ignore words like "Preferred" or "Tentative"

Text:
%s

Return ONLY the JSON object, no other text.
`

var (
	docDateSpacing   = regexp.MustCompile(`(\d{4})\s+[-/]\s*(\d{2})\s*[-/]\s*(\d{2})`)
	docTimeSpacing   = regexp.MustCompile(`(\d{1,2})\s*:\s*(\d{2})`)
	docEmailPattern  = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	docPhonePattern  = regexp.MustCompile(`\d{10,}`)
	docDatePattern   = regexp.MustCompile(`(\d{4})\s*[-/]\s*(\d{2})\s*[-/]\s*(\d{2})`)
	docTimePattern   = regexp.MustCompile(`\b([0-2]?[0-9]):([0-5][0-9])\b`)
	docLabeledName   = regexp.MustCompile(`(?im)^\s*(?:patient\s+name|full\s+name|name)\s*[:\-]\s*([A-Za-z][A-Za-z .,'-]*?)\s*$`)
	absentValues     = map[string]bool{"": true, "null": true, "none": true, "n/a": true, "na": true}
	errNoCompleter   = errors.New("no completion client configured")
	extractionFields = map[string]Field{
		"name":         FieldName,
		"email":        FieldEmail,
		"phone":        FieldPhone,
		"booking_type": FieldBookingType,
		"date":         FieldDate,
		"time":         FieldTime,
	}
)

// Completer is the part of an LLM client the engine needs.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// DocumentExtractor turns the text of an uploaded document into slot values.
// It asks the completion service for a JSON object first and falls back to
// pattern matching when that call fails or its output is not JSON.
type DocumentExtractor struct {
	completer Completer
	validator *Validator
	model     string
	log       *logging.Logger
}

// NewDocumentExtractor creates a DocumentExtractor. completer may be nil, in
// which case only the pattern fallback runs.
func NewDocumentExtractor(completer Completer, v *Validator, model string, log *logging.Logger) *DocumentExtractor {
	return &DocumentExtractor{
		completer: completer,
		validator: v,
		model:     model,
		log:       log.Sub("docextract"),
	}
}

// Extract never fails: any internal problem yields fewer fields.
func (d *DocumentExtractor) Extract(ctx context.Context, text string) Extraction {
	cleaned := normalizeDocument(text)
	if strings.TrimSpace(cleaned) == "" {
		return Extraction{}
	}

	ext, err := d.structured(ctx, cleaned)
	if err == nil {
		d.log.Debug().Int("fields", len(ext.Fields)).Msg("structured extraction succeeded")
		return ext
	}

	d.log.Warn().Err(err).Msg("structured extraction failed, using pattern fallback")
	return d.fallback(cleaned)
}

// normalizeDocument strips markdown emphasis and the stray spaces PDF text
// extraction leaves inside dates and times.
func normalizeDocument(text string) string {
	r := strings.NewReplacer("__", "", "**", "", "~~", "", "*", "")
	text = r.Replace(text)
	text = docDateSpacing.ReplaceAllString(text, "$1-$2-$3")
	text = docTimeSpacing.ReplaceAllString(text, "$1:$2")
	return text
}

func (d *DocumentExtractor) structured(ctx context.Context, text string) (Extraction, error) {
	if d.completer == nil {
		return Extraction{}, errNoCompleter
	}

	temp := 0.1
	resp, err := d.completer.Complete(ctx, llm.CompletionRequest{
		Model:       d.model,
		System:      extractionSystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(extractionPrompt, text)}},
		MaxTokens:   500,
		Temperature: &temp,
	})
	if err != nil {
		return Extraction{}, fmt.Errorf("completion: %w", err)
	}

	raw, err := decodeExtractionJSON(resp.Content)
	if err != nil {
		return Extraction{}, err
	}

	var ext Extraction
	for key, field := range extractionFields {
		value, ok := raw[key]
		if !ok {
			continue
		}
		d.accept(&ext, field, value)
	}
	return ext, nil
}

// decodeExtractionJSON strips code fences and decodes a JSON object into
// string values, keeping numbers as their literal text.
func decodeExtractionJSON(content string) (map[string]string, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.ReplaceAll(content, "```json", "")
		content = strings.ReplaceAll(content, "```", "")
		content = strings.TrimSpace(content)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decoding extraction JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decoding extraction JSON: trailing content after object")
	}

	out := make(map[string]string, len(extractionFields))
	for key := range extractionFields {
		switch v := obj[key].(type) {
		case string:
			out[key] = v
		case json.Number:
			out[key] = v.String()
		}
	}
	return out, nil
}

// accept validates a candidate and records it, turning an out-of-window date
// into DateError.
func (d *DocumentExtractor) accept(ext *Extraction, f Field, raw string) {
	raw = strings.TrimSpace(raw)
	if absentValues[strings.ToLower(raw)] {
		return
	}
	value, err := d.validator.Validate(f, raw)
	if err == nil {
		ext.set(f, value)
		return
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		return
	}
	switch verr.Reason {
	case ReasonDatePast:
		ext.DateError = fmt.Sprintf("The date %s has already passed.", verr.Value)
	case ReasonDateTooFar:
		ext.DateError = fmt.Sprintf("The date %s is too far in the future.", verr.Value)
	default:
		d.log.Debug().Str("field", string(f)).Str("reason", string(verr.Reason)).Msg("dropping extracted value")
	}
}

func (d *DocumentExtractor) fallback(text string) Extraction {
	var ext Extraction

	if m := docEmailPattern.FindString(strings.ReplaceAll(text, " ", "")); m != "" {
		d.accept(&ext, FieldEmail, strings.ToLower(m))
	}
	if m := docPhonePattern.FindString(text); m != "" {
		d.accept(&ext, FieldPhone, m)
	}
	if m := docDatePattern.FindStringSubmatch(text); m != nil {
		d.accept(&ext, FieldDate, m[1]+"-"+m[2]+"-"+m[3])
	}
	if m := docTimePattern.FindStringSubmatch(text); m != nil {
		hour := m[1]
		if len(hour) == 1 {
			hour = "0" + hour
		}
		d.accept(&ext, FieldTime, hour+":"+m[2])
	}
	if entry, ok := d.validator.Catalog().Find(text); ok {
		d.accept(&ext, FieldBookingType, entry)
	}
	if name, ok := fallbackName(text); ok {
		d.accept(&ext, FieldName, name)
	}

	d.log.Debug().Int("fields", len(ext.Fields)).Msg("pattern extraction finished")
	return ext
}

// fallbackName prefers a labelled "Name:" line, then the first line that
// looks like a bare name: one to four capitalised alphabetic words.
func fallbackName(text string) (string, bool) {
	if m := docLabeledName.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
		return m[1], true
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if looksLikeName(line) {
			return line, true
		}
	}
	return "", false
}

func looksLikeName(line string) bool {
	words := strings.Fields(line)
	if len(words) < 1 || len(words) > 4 {
		return false
	}
	if !unicode.IsUpper([]rune(line)[0]) || strings.Contains(line, "@") {
		return false
	}
	for _, w := range words {
		w = strings.NewReplacer(".", "", ",", "").Replace(w)
		if w == "" {
			return false
		}
		for _, r := range w {
			if !unicode.IsLetter(r) {
				return false
			}
		}
	}
	return true
}
