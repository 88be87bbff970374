package ipc

import (
	"encoding/json"
	"fmt"
	"strings"

	"nopg/internal/nopgerr"
)

// MaxBodyBytes is the largest request body the server accepts.
const MaxBodyBytes = 1_000_000

// Request is the body of every RPC.
type Request struct {
	Content json.RawMessage `json:"content"`
}

// Response is the body of a successful RPC.
type Response struct {
	Content json.RawMessage `json:"content"`
}

// ErrorContent carries the taxonomy code of a failed RPC.
type ErrorContent struct {
	Code    nopgerr.Code `json:"code"`
	Message string       `json:"message"`
}

// ErrorEnvelope is the body of a failed RPC.
type ErrorEnvelope struct {
	Title   string        `json:"title"`
	Content *ErrorContent `json:"content,omitempty"`
	Stack   string        `json:"stack,omitempty"`
}

// RemoteError is an application error returned by the daemon. It unwraps to
// the nopgerr sentinel named by its code, so errors.Is works across the socket.
type RemoteError struct {
	Status  int
	Title   string
	Code    nopgerr.Code
	Message string
	Stack   string
}

func (e *RemoteError) Error() string {
	if e.Title != "" {
		return e.Title
	}
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("daemon returned status %d", e.Status)
}

func (e *RemoteError) Unwrap() error {
	if sentinel, ok := nopgerr.Lookup(e.Code); ok {
		return sentinel
	}
	return nil
}

// Detail renders the full structured error for verbose output.
func (e *RemoteError) Detail() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (status %d", e.Error(), e.Status)
	if e.Code != "" {
		fmt.Fprintf(&b, ", code %s", e.Code)
	}
	b.WriteString(")")
	if e.Stack != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(e.Stack, "\n"))
	}
	return b.String()
}

// TransportError reports that the daemon could not be reached or answered
// with something other than an RPC envelope.
type TransportError struct {
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("daemon unreachable at %s: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{nopgerr.ErrTransportUnreachable, e.Err}
}
