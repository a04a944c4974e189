package booking

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/soyeahso/clinicbot/internal/config"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Reason classifies why a candidate value was refused.
type Reason string

const (
	ReasonEmpty        Reason = "empty"
	ReasonFormat       Reason = "format"
	ReasonTooShort     Reason = "too_short"
	ReasonNotInCatalog Reason = "not_in_catalog"
	ReasonDatePast     Reason = "date_past"
	ReasonDateTooFar   Reason = "date_too_far"
	ReasonOutsideHours Reason = "outside_hours"
)

// ValidationError is a field-level failure carrying the message shown to the user.
type ValidationError struct {
	Field   Field
	Reason  Reason
	Value   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// OutOfRange reports whether the value was well-formed but outside a window.
func (e *ValidationError) OutOfRange() bool {
	switch e.Reason {
	case ReasonDatePast, ReasonDateTooFar, ReasonOutsideHours:
		return true
	}
	return false
}

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// Rules configures a Validator.
type Rules struct {
	Catalog    []string
	OpenAt     string // HH:MM, inclusive
	CloseAt    string // HH:MM, inclusive
	WindowDays int
	Location   *time.Location
	Now        func() time.Time
}

// RulesFromConfig converts the booking section of the config file.
func RulesFromConfig(c config.BookingConfig) (Rules, error) {
	loc := time.Local
	if c.Timezone != "" {
		l, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return Rules{}, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
		}
		loc = l
	}
	return Rules{
		Catalog:    c.Catalog,
		OpenAt:     c.WorkingHours.Start,
		CloseAt:    c.WorkingHours.End,
		WindowDays: c.WindowDays,
		Location:   loc,
	}, nil
}

// Validator checks and normalizes slot values. It has no side effects.
type Validator struct {
	catalog    Catalog
	openAt     string
	closeAt    string
	open       int // minutes after midnight
	close      int
	windowDays int
	loc        *time.Location
	now        func() time.Time
}

// NewValidator builds a Validator, falling back to 09:00-18:00, a 90 day
// window and local time for zero-valued rules.
func NewValidator(r Rules) (*Validator, error) {
	if len(r.Catalog) == 0 {
		return nil, fmt.Errorf("booking catalog is empty")
	}
	if r.OpenAt == "" {
		r.OpenAt = "09:00"
	}
	if r.CloseAt == "" {
		r.CloseAt = "18:00"
	}
	if r.WindowDays == 0 {
		r.WindowDays = 90
	}
	if r.Location == nil {
		r.Location = time.Local
	}
	if r.Now == nil {
		r.Now = time.Now
	}

	open, err := time.Parse(timeLayout, r.OpenAt)
	if err != nil {
		return nil, fmt.Errorf("parsing opening time %q: %w", r.OpenAt, err)
	}
	closing, err := time.Parse(timeLayout, r.CloseAt)
	if err != nil {
		return nil, fmt.Errorf("parsing closing time %q: %w", r.CloseAt, err)
	}
	if closing.Before(open) {
		return nil, fmt.Errorf("closing time %s is before opening time %s", r.CloseAt, r.OpenAt)
	}

	return &Validator{
		catalog:    Catalog(append([]string(nil), r.Catalog...)),
		openAt:     open.Format(timeLayout),
		closeAt:    closing.Format(timeLayout),
		open:       open.Hour()*60 + open.Minute(),
		close:      closing.Hour()*60 + closing.Minute(),
		windowDays: r.WindowDays,
		loc:        r.Location,
		now:        r.Now,
	}, nil
}

// Catalog returns the appointment categories.
func (v *Validator) Catalog() Catalog { return v.catalog }

// Hours returns the inclusive working-hours window as HH:MM strings.
func (v *Validator) Hours() (string, string) { return v.openAt, v.closeAt }

// WindowDays is how far ahead bookings may be made.
func (v *Validator) WindowDays() int { return v.windowDays }

// Window returns the first and last bookable dates as YYYY-MM-DD.
func (v *Validator) Window() (string, string) {
	today := v.today()
	return today.Format(dateLayout), today.AddDate(0, 0, v.windowDays).Format(dateLayout)
}

func (v *Validator) today() time.Time {
	now := v.now().In(v.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, v.loc)
}

// Validate checks raw against the rules for f and returns the normalized value.
// Any returned error is a *ValidationError.
func (v *Validator) Validate(f Field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &ValidationError{
			Field:   f,
			Reason:  ReasonEmpty,
			Message: emptyMessage(f),
		}
	}

	switch f {
	case FieldName:
		return titleCase(raw), nil
	case FieldEmail:
		return v.validateEmail(raw)
	case FieldPhone:
		return v.validatePhone(raw)
	case FieldBookingType:
		return v.validateBookingType(raw)
	case FieldDate:
		return v.validateDate(raw)
	case FieldTime:
		return v.validateTime(raw)
	}
	return "", &ValidationError{Field: f, Reason: ReasonFormat, Value: raw, Message: "Unknown booking field."}
}

// ValidateAll re-checks every held value in schema order and returns the
// first failure.
func (v *Validator) ValidateAll(slots map[Field]string) error {
	for _, f := range Fields {
		value, ok := slots[f]
		if !ok {
			continue
		}
		if _, err := v.Validate(f, value); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateEmail(raw string) (string, error) {
	if !emailPattern.MatchString(raw) {
		return "", &ValidationError{
			Field:   FieldEmail,
			Reason:  ReasonFormat,
			Value:   raw,
			Message: "Please provide a valid email address.",
		}
	}
	return strings.ToLower(raw), nil
}

func (v *Validator) validatePhone(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() < 10 {
		return "", &ValidationError{
			Field:   FieldPhone,
			Reason:  ReasonTooShort,
			Value:   raw,
			Message: "Please provide a valid phone number (at least 10 digits).",
		}
	}
	if strings.HasPrefix(raw, "+") {
		return "+" + digits.String(), nil
	}
	return digits.String(), nil
}

func (v *Validator) validateBookingType(raw string) (string, error) {
	entry, ok := v.catalog.Match(raw)
	if !ok {
		return "", &ValidationError{
			Field:   FieldBookingType,
			Reason:  ReasonNotInCatalog,
			Value:   raw,
			Message: "Please choose one of our appointment types: " + v.catalog.String() + ".",
		}
	}
	return entry, nil
}

func (v *Validator) validateDate(raw string) (string, error) {
	d, err := time.ParseInLocation(dateLayout, raw, v.loc)
	if err != nil {
		return "", &ValidationError{
			Field:   FieldDate,
			Reason:  ReasonFormat,
			Value:   raw,
			Message: "Please provide date in YYYY-MM-DD format.",
		}
	}
	today := v.today()
	last := today.AddDate(0, 0, v.windowDays)
	value := d.Format(dateLayout)
	switch {
	case d.Before(today):
		return "", &ValidationError{
			Field:   FieldDate,
			Reason:  ReasonDatePast,
			Value:   value,
			Message: fmt.Sprintf("❌ Booking date cannot be in the past.\n\nThe date %s has already passed.", value),
		}
	case d.After(last):
		msg := fmt.Sprintf("❌ Booking date is too far in the future.\n\n"+
			"Bookings can only be made up to %d days in advance.\n"+
			"The date %s is beyond our booking window.", v.windowDays, value)
		return "", &ValidationError{
			Field:   FieldDate,
			Reason:  ReasonDateTooFar,
			Value:   value,
			Message: msg,
		}
	}
	return value, nil
}

func (v *Validator) validateTime(raw string) (string, error) {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return "", &ValidationError{
			Field:   FieldTime,
			Reason:  ReasonFormat,
			Value:   raw,
			Message: "Please provide time in HH:MM format (e.g., 14:30).",
		}
	}
	value := t.Format(timeLayout)
	minutes := t.Hour()*60 + t.Minute()
	if minutes < v.open || minutes > v.close {
		return "", &ValidationError{
			Field:   FieldTime,
			Reason:  ReasonOutsideHours,
			Value:   value,
			Message: fmt.Sprintf("Please select a time between %s and %s.", v.openAt, v.closeAt),
		}
	}
	return value, nil
}

func emptyMessage(f Field) string {
	switch f {
	case FieldName:
		return "Please provide your full name."
	case FieldEmail:
		return "Please provide a valid email address."
	case FieldPhone:
		return "Please provide a valid phone number (at least 10 digits)."
	case FieldBookingType:
		return "Please tell me which type of appointment you need."
	case FieldDate:
		return "Please provide date in YYYY-MM-DD format."
	case FieldTime:
		return "Please provide time in HH:MM format (e.g., 14:30)."
	}
	return "Please provide a value."
}

// titleCase upper-cases the first letter of every run of letters and
// lower-cases the rest, so "o'brien mary-jane" becomes "O'Brien Mary-Jane".
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}
