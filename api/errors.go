package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrMissingToken = errors.New("bearer token required")

type Kind int

const (
	KindTransport Kind = iota + 1
	KindStatus
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	}
	return "unknown"
}

// Error is returned by every Client call that reached the network.
type Error struct {
	Op     string
	Kind   Kind
	Status int
	// Message is the server's own explanation, when it sent one.
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Op, e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, " %d %s", e.Status, http.StatusText(e.Status))
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ServerMessage returns the message of a rejected request, or "" when the server gave none.
func ServerMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindStatus {
		return e.Message
	}
	return ""
}

func serverMessage(body []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, k := range []string{"detail", "message"} {
		if s, ok := payload[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
