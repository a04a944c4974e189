package booking

// Mode records how the current booking is being filled.
type Mode string

const (
	ModeUnset    Mode = ""
	ModeManual   Mode = "manual"
	ModeDocument Mode = "document"
)

// Session is the mutable state of one conversation's booking in progress.
//
// Only the Controller writes to a Session, and every slot it writes has been
// through the Validator. A Session is not safe for concurrent use; callers
// serialize turns per conversation.
type Session struct {
	id                   string
	slots                map[Field]string
	mode                 Mode
	awaitingConfirmation bool
	documentIngested     bool
	choosingMode         bool
}

// NewSession returns an empty session for the given conversation.
func NewSession(id string) *Session {
	return &Session{id: id, slots: make(map[Field]string)}
}

// ID is the conversation the session belongs to.
func (s *Session) ID() string { return s.id }

// Mode reports how the booking is being filled.
func (s *Session) Mode() Mode { return s.mode }

// AwaitingConfirmation reports whether a yes/no answer is expected.
func (s *Session) AwaitingConfirmation() bool { return s.awaitingConfirmation }

// DocumentIngested reports whether a booking document has been processed.
func (s *Session) DocumentIngested() bool { return s.documentIngested }

// Get returns the value held for a field.
func (s *Session) Get(f Field) (string, bool) {
	v, ok := s.slots[f]
	return v, ok
}

// Slots returns a copy of the filled slots.
func (s *Session) Slots() map[Field]string {
	out := make(map[Field]string, len(s.slots))
	for k, v := range s.slots {
		out[k] = v
	}
	return out
}

// Missing lists unfilled fields in schema order.
func (s *Session) Missing() []Field {
	var missing []Field
	for _, f := range Fields {
		if _, ok := s.slots[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// Complete reports whether all six fields are filled.
func (s *Session) Complete() bool { return len(s.Missing()) == 0 }

// InProgress reports whether the next utterance continues a booking: at
// least one field is held, the mode choice is pending, or manual entry was
// chosen and is waiting for its first field. Document mode with nothing held
// does not count, so questions asked while an upload is pending are answered.
func (s *Session) InProgress() bool {
	return len(s.slots) > 0 || s.choosingMode || s.mode == ModeManual
}

// Details returns the held slots as a booking record.
func (s *Session) Details() Details {
	return Details{
		Name:        s.slots[FieldName],
		Email:       s.slots[FieldEmail],
		Phone:       s.slots[FieldPhone],
		BookingType: s.slots[FieldBookingType],
		Date:        s.slots[FieldDate],
		Time:        s.slots[FieldTime],
	}
}

// Reset empties the session back to its initial state.
func (s *Session) Reset() {
	s.slots = make(map[Field]string)
	s.mode = ModeUnset
	s.awaitingConfirmation = false
	s.documentIngested = false
	s.choosingMode = false
}

// State is a read-only snapshot of a session.
type State struct {
	ConversationID       string            `json:"conversationId"`
	Slots                map[string]string `json:"slots"`
	Missing              []string          `json:"missing"`
	Mode                 string            `json:"mode"`
	AwaitingConfirmation bool              `json:"awaitingConfirmation"`
	DocumentIngested     bool              `json:"documentIngested"`
}

// Snapshot copies the session into a State.
func (s *Session) Snapshot() State {
	st := State{
		ConversationID:       s.id,
		Slots:                make(map[string]string, len(s.slots)),
		Missing:              []string{},
		Mode:                 string(s.mode),
		AwaitingConfirmation: s.awaitingConfirmation,
		DocumentIngested:     s.documentIngested,
	}
	if st.Mode == "" {
		st.Mode = "unset"
	}
	for f, v := range s.slots {
		st.Slots[string(f)] = v
	}
	for _, f := range s.Missing() {
		st.Missing = append(st.Missing, string(f))
	}
	return st
}
