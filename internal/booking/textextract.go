package booking

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// candidate is a raw value a matcher found for a field.
type candidate struct {
	field Field
	value string
	guess bool
}

// matcher looks for one field in a chat utterance.
type matcher func(text string) (candidate, bool)

var (
	chatEmailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	chatPhonePattern = regexp.MustCompile(`(\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	phoneStrip       = regexp.MustCompile(`[^\d+]`)
	chatDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d{4}[-/]\d{2}[-/]\d{2})\b`),
		regexp.MustCompile(`\b(\d{2}[-/]\d{2}[-/]\d{4})\b`),
	}
	chatDateLayouts  = []string{"2006-01-02", "2006/01/02", "02-01-2006", "02/01/2006"}
	chatTimePattern  = regexp.MustCompile(`\b([0-1]?[0-9]|2[0-3]):([0-5][0-9])\b`)
	nameIsPattern    = regexp.MustCompile(`(?i)name is (.+?)(?:\.|$)`)
	selfIntroPattern = regexp.MustCompile(`(?i)(?:i'm|i am) (.+?)(?:\.|$)`)
)

// nameStopwords rule out the bare-utterance name guess.
var nameStopwords = []string{"book", "appointment", "email", "@", "phone", "time", "date", ":", "http"}

// TextExtractor pulls slot values out of a single chat utterance.
type TextExtractor struct {
	validator *Validator
	matchers  []matcher
}

// NewTextExtractor builds the matcher pipeline for the validator's catalog.
func NewTextExtractor(v *Validator) *TextExtractor {
	return &TextExtractor{
		validator: v,
		matchers: []matcher{
			matchEmail,
			matchPhone,
			matchDate,
			matchTime,
			catalogMatcher(v.Catalog()),
			matchName,
		},
	}
}

// Extract runs every matcher and keeps the candidates that validate.
// Values that parse but fall outside their allowed range are returned in
// Rejected so the caller can explain them.
func (x *TextExtractor) Extract(utterance string) Extraction {
	var ext Extraction
	var found []candidate
	for _, m := range x.matchers {
		if c, ok := m(utterance); ok {
			found = append(found, c)
		}
	}

	for _, c := range found {
		value, err := x.validator.Validate(c.field, c.value)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) && verr.OutOfRange() {
				ext.reject(verr)
			}
			continue
		}
		ext.set(c.field, value)
		if c.guess {
			ext.NameGuessed = true
		}
	}
	return ext
}

func matchEmail(text string) (candidate, bool) {
	m := chatEmailPattern.FindString(text)
	if m == "" {
		return candidate{}, false
	}
	return candidate{field: FieldEmail, value: m}, true
}

func matchPhone(text string) (candidate, bool) {
	m := chatPhonePattern.FindString(text)
	if m == "" {
		return candidate{}, false
	}
	return candidate{field: FieldPhone, value: phoneStrip.ReplaceAllString(m, "")}, true
}

func matchDate(text string) (candidate, bool) {
	for _, p := range chatDatePatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		for _, layout := range chatDateLayouts {
			if d, err := time.Parse(layout, m[1]); err == nil {
				return candidate{field: FieldDate, value: d.Format(dateLayout)}, true
			}
		}
	}
	return candidate{}, false
}

func matchTime(text string) (candidate, bool) {
	m := chatTimePattern.FindString(text)
	if m == "" {
		return candidate{}, false
	}
	return candidate{field: FieldTime, value: m}, true
}

func catalogMatcher(c Catalog) matcher {
	return func(text string) (candidate, bool) {
		entry, ok := c.Find(text)
		if !ok {
			return candidate{}, false
		}
		return candidate{field: FieldBookingType, value: entry}, true
	}
}

// matchName tries "name is X", then "I'm X" / "I am X", then treats a short
// capitalised utterance free of booking keywords as the name itself.
func matchName(text string) (candidate, bool) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "name is"):
		if m := nameIsPattern.FindStringSubmatch(text); m != nil {
			return candidate{field: FieldName, value: strings.TrimSpace(m[1])}, true
		}
	case strings.Contains(lower, "i'm") || strings.Contains(lower, "i am"):
		if m := selfIntroPattern.FindStringSubmatch(text); m != nil {
			return candidate{field: FieldName, value: strings.TrimSpace(m[1])}, true
		}
	default:
		words := strings.Fields(text)
		if len(words) < 1 || len(words) > 4 {
			return candidate{}, false
		}
		first := []rune(words[0])[0]
		if !unicode.IsUpper(first) {
			return candidate{}, false
		}
		for _, kw := range nameStopwords {
			if strings.Contains(lower, kw) {
				return candidate{}, false
			}
		}
		return candidate{field: FieldName, value: strings.TrimSpace(text), guess: true}, true
	}
	return candidate{}, false
}
