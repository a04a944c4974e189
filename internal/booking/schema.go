// Package booking implements the appointment slot-filling dialogue engine:
// the six-field schema and its validator, the chat and document extractors,
// per-conversation session state, intent detection and the controller that
// drives a conversation to confirmation or cancellation.
package booking

// Field identifies one of the six booking slots.
type Field string

const (
	FieldName        Field = "name"
	FieldEmail       Field = "email"
	FieldPhone       Field = "phone"
	FieldBookingType Field = "booking_type"
	FieldDate        Field = "date"
	FieldTime        Field = "time"
)

// Fields is the slot schema. The order decides which missing field is
// prompted for next and must never change.
var Fields = []Field{
	FieldName,
	FieldEmail,
	FieldPhone,
	FieldBookingType,
	FieldDate,
	FieldTime,
}

// ParseField maps a slot identifier to its Field.
func ParseField(s string) (Field, bool) {
	for _, f := range Fields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// Title is the human name of the field used in "still missing" lists.
func (f Field) Title() string {
	switch f {
	case FieldName:
		return "Full Name"
	case FieldEmail:
		return "Email"
	case FieldPhone:
		return "Phone"
	case FieldBookingType:
		return "Appointment Type"
	case FieldDate:
		return "Date"
	case FieldTime:
		return "Time"
	}
	return string(f)
}

func (f Field) icon() string {
	switch f {
	case FieldName:
		return "👤"
	case FieldEmail:
		return "📧"
	case FieldPhone:
		return "📱"
	case FieldBookingType:
		return "🏥"
	case FieldDate:
		return "📅"
	case FieldTime:
		return "🕐"
	}
	return "•"
}

// Details is a complete, validated booking ready to be persisted.
type Details struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	BookingType string `json:"bookingType"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

// Extraction is the partial slot map produced by an extractor.
//
// Fields only ever holds validated values. DateError explains a date that was
// present in the source but outside the booking window. Rejected carries
// values that parsed but failed a range rule so the caller can report them.
// NameGuessed marks a name taken from a bare capitalised utterance rather
// than an explicit "my name is" phrase.
type Extraction struct {
	Fields      map[Field]string
	DateError   string
	Rejected    map[Field]*ValidationError
	NameGuessed bool
}

// Empty reports whether no field was extracted.
func (e Extraction) Empty() bool { return len(e.Fields) == 0 }

func (e *Extraction) set(f Field, v string) {
	if e.Fields == nil {
		e.Fields = make(map[Field]string)
	}
	e.Fields[f] = v
}

func (e *Extraction) reject(err *ValidationError) {
	if e.Rejected == nil {
		e.Rejected = make(map[Field]*ValidationError)
	}
	e.Rejected[err.Field] = err
}
