package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/soyeahso/clinicbot/internal/booking"
)

// ProtocolVersion is the only protocol revision the gateway speaks.
const ProtocolVersion = 1

const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Frame is one WebSocket message. Requests carry ID, Method and Params;
// responses carry ID, OK and either Payload or Error; events carry Event,
// Seq and Payload.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Event   string          `json:"event,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error half of a response frame.
type RPCError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	Retryable    bool   `json:"retryable,omitempty"`
	RetryAfterMs int    `json:"retryAfterMs,omitempty"`
}

func (e *RPCError) Error() string { return e.Code + ": " + e.Message }

func rpcErr(code, format string, args ...any) *RPCError {
	return &RPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewRequest builds a request frame. Clients and tests use it; the server
// only answers requests.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, nil
}

func resultFrame(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Payload: raw}, nil
}

func errorFrame(id string, e *RPCError) Frame {
	ok := false
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: e}
}

func eventFrame(name string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: name, Seq: seq, Payload: raw}, nil
}

// ConnectParams open every connection.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
	Locale      string       `json:"locale,omitempty"`
}

// ClientInfo describes the front-end that connected, e.g. a reception
// desk or a patient kiosk.
type ClientInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Platform    string `json:"platform,omitempty"`
}

type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// HelloOK answers a successful connect.
type HelloOK struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	Features Features     `json:"features"`
	Policy   ServerPolicy `json:"policy"`
}

type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ServerPolicy tells the client the limits it is held to. The server pings
// every TickIntervalMs and drops connections that stop answering.
type ServerPolicy struct {
	MaxPayload     int `json:"maxPayload"`
	ChatPerMinute  int `json:"chatPerMinute,omitempty"`
	ChatBurst      int `json:"chatBurst,omitempty"`
	TickIntervalMs int `json:"tickIntervalMs"`
}

// ChatSendParams drive one chat turn. ConversationID defaults to the
// connection ID.
type ChatSendParams struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

type ChatSendResult struct {
	Response       string        `json:"response"`
	ConversationID string        `json:"conversationId"`
	Intent         string        `json:"intent"`
	Outcome        string        `json:"outcome,omitempty"`
	BookingID      int64         `json:"bookingId,omitempty"`
	Emailed        bool          `json:"emailed,omitempty"`
	State          booking.State `json:"state"`
}

// UploadDocument carries one file, base64 encoded.
type UploadDocument struct {
	Name          string `json:"name"`
	MimeType      string `json:"mimeType,omitempty"`
	ContentBase64 string `json:"contentBase64"`
}

type DocumentUploadParams struct {
	ConversationID string           `json:"conversationId,omitempty"`
	Documents      []UploadDocument `json:"documents"`
}

type DocumentUploadResult struct {
	Response        string            `json:"response"`
	ConversationID  string            `json:"conversationId"`
	Ingested        []string          `json:"ingested"`
	Skipped         map[string]string `json:"skipped,omitempty"`
	BookingDocument bool              `json:"bookingDocument"`
	State           booking.State     `json:"state"`
}

// ConversationParams select a conversation for the session.* methods.
type ConversationParams struct {
	ConversationID string `json:"conversationId,omitempty"`
}

// BookingEvent is pushed to every connection when a booking is confirmed
// or cancelled. It carries no contact details.
type BookingEvent struct {
	ConversationID string `json:"conversationId"`
	BookingID      int64  `json:"bookingId,omitempty"`
	BookingType    string `json:"bookingType,omitempty"`
	Date           string `json:"date,omitempty"`
	Time           string `json:"time,omitempty"`
}

// Pushed event names.
const (
	eventChallenge        = "connect.challenge"
	eventBookingConfirmed = "booking.confirmed"
	eventBookingCancelled = "booking.cancelled"
)
