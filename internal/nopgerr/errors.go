package nopgerr

import (
	"errors"
	"fmt"
	"strings"
)

// Code is the stable identifier an error carries across the RPC boundary.
type Code string

const (
	CodeSessionNotStarted              Code = "SessionNotStarted"
	CodeAlreadyStarted                 Code = "AlreadyStarted"
	CodeSessionClosed                  Code = "SessionClosed"
	CodeInvalidPid                     Code = "InvalidPid"
	CodeTransportUnreachable           Code = "TransportUnreachable"
	CodeUnexpectedDaemonExit           Code = "UnexpectedDaemonExit"
	CodeDaemonReadyTimeout             Code = "DaemonReadyTimeout"
	CodeListenersDisabledInTransaction Code = "ListenersDisabledInTransaction"
	CodeForeignListener                Code = "ForeignListener"
	CodeListenerNotFound               Code = "ListenerNotFound"
	CodeUnknownCommand                 Code = "UnknownCommand"
	CodeInvalidArguments               Code = "InvalidArguments"
	CodeNotFound                       Code = "NotFound"
	CodeStore                          Code = "Store"
)

// Error is a sentinel carrying a Code. Two *Error values match under errors.Is
// when their codes are equal, so a sentinel rebuilt on the client side compares
// equal to the one raised in the daemon.
type Error struct {
	code    Code
	message string
}

func (e *Error) Error() string { return e.message }

// Code returns the wire identifier.
func (e *Error) Code() Code { return e.code }

func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.code == e.code
}

func newError(code Code, message string) *Error {
	err := &Error{code: code, message: message}
	registry[code] = err
	return err
}

var registry = map[Code]*Error{}

var (
	ErrSessionNotStarted              = newError(CodeSessionNotStarted, "transaction not started")
	ErrAlreadyStarted                 = newError(CodeAlreadyStarted, "transaction started already")
	ErrSessionClosed                  = newError(CodeSessionClosed, "session closed")
	ErrInvalidPid                     = newError(CodeInvalidPid, "invalid pid")
	ErrTransportUnreachable           = newError(CodeTransportUnreachable, "daemon unreachable")
	ErrUnexpectedDaemonExit           = newError(CodeUnexpectedDaemonExit, "unexpected daemon exit")
	ErrDaemonReadyTimeout             = newError(CodeDaemonReadyTimeout, "daemon did not become ready")
	ErrListenersDisabledInTransaction = newError(CodeListenersDisabledInTransaction, "listeners are disabled in transactions")
	ErrForeignListener                = newError(CodeForeignListener, "listener belongs to another daemon")
	ErrListenerNotFound               = newError(CodeListenerNotFound, "listener not found")
	ErrUnknownCommand                 = newError(CodeUnknownCommand, "no command")
	ErrInvalidArguments               = newError(CodeInvalidArguments, "invalid arguments")
	ErrNotFound                       = newError(CodeNotFound, "not found")
	ErrStore                          = newError(CodeStore, "store error")
)

// Lookup returns the sentinel registered for code.
func Lookup(code Code) (*Error, bool) {
	err, ok := registry[Code(strings.TrimSpace(string(code)))]
	return err, ok
}

// CodeOf reports the code of the first sentinel in err's chain. Errors outside
// the taxonomy are reported as CodeStore since the daemon forwards store
// failures opaquely.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.code
	}
	return CodeStore
}

// Wrap tags err with marker while keeping both in the chain.
func Wrap(marker *Error, operation string, err error) error {
	if marker == nil {
		marker = ErrStore
	}
	operation = strings.TrimSpace(operation)
	switch {
	case err == nil && operation == "":
		return marker
	case err == nil:
		return fmt.Errorf("%w: %s", marker, operation)
	case operation == "":
		return fmt.Errorf("%w: %w", marker, err)
	default:
		return fmt.Errorf("%w: %s: %w", marker, operation, err)
	}
}

// Invalid builds an ErrInvalidArguments error with a formatted detail.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArguments, fmt.Sprintf(format, args...))
}
