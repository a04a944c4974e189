package notify

import "fmt"

// Kind classifies a delivery failure.
type Kind int

const (
	KindGeneric Kind = iota
	KindConfig
	KindAuth
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindAuth:
		return "auth"
	case KindProtocol:
		return "protocol"
	}
	return "generic"
}

// SendError is returned by every Sender.
type SendError struct {
	Kind Kind
	Err  error
}

func (e *SendError) Error() string {
	switch e.Kind {
	case KindConfig:
		return "Email credentials not configured"
	case KindAuth:
		return "Email authentication failed. Please check credentials."
	case KindProtocol:
		return fmt.Sprintf("SMTP error: %v", e.Err)
	}
	return fmt.Sprintf("Email error: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
