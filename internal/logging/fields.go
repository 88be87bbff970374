package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldPID identifies the daemon process a line belongs to.
	FieldPID = "pid"
	// FieldCommand is the RPC command being served.
	FieldCommand = "command"
	// FieldRequestID correlates the lines of one RPC.
	FieldRequestID = "request_id"
	// FieldListenerID is the pid@id token of a listener registration.
	FieldListenerID = "listener_id"
	// FieldEvent is the store event name.
	FieldEvent = "event"
	// FieldDocumentID is the id of the document an event concerns.
	FieldDocumentID = "doc_id"
	// FieldDocumentType is the type name of the document an event concerns.
	FieldDocumentType = "doc_type"
	// FieldState is the session state.
	FieldState = "state"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step to an operator.
	FieldErrorHint = "error_hint"
	// FieldErrorCode carries the stable error code.
	FieldErrorCode = "error_code"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	commandKey
)

// WithRequestID tags ctx with an RPC correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithCommand tags ctx with the RPC command name.
func WithCommand(ctx context.Context, command string) context.Context {
	return context.WithValue(ctx, commandKey, command)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldRequestID, id))
	}
	if command, ok := ctx.Value(commandKey).(string); ok && command != "" {
		fields = append(fields, slog.String(FieldCommand, command))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
