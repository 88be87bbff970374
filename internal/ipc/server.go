package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nopg/internal/logging"
	"nopg/internal/metrics"
	"nopg/internal/nopgerr"
)

// Handler serves one RPC command. content is the raw request payload; the
// returned value is encoded as the response content.
type Handler func(ctx context.Context, content json.RawMessage) (any, error)

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithRecorder counts requests on rec.
func WithRecorder(rec metrics.Recorder) ServerOption {
	return func(s *Server) {
		if rec != nil {
			s.recorder = rec
		}
	}
}

// WithMetricsHandler serves h at GET /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// WithMaxBodyBytes overrides the request size ceiling.
func WithMaxBodyBytes(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// Server serves RPC commands over HTTP/1.1 on a Unix domain socket.
type Server struct {
	path     string
	handlers map[string]Handler
	logger   *slog.Logger
	recorder metrics.Recorder
	metrics  http.Handler
	maxBody  int64

	listener net.Listener
	http     *http.Server
	seq      atomic.Uint64

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewServer binds the socket at path, replacing any stale socket file, and
// restricts it to the current user.
func NewServer(path string, handlers map[string]Handler, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	if len(handlers) == 0 {
		return nil, errors.New("ipc server requires handlers")
	}
	s := &Server{
		path:     path,
		handlers: handlers,
		logger:   logging.NewComponentLogger(logger, "ipc"),
		recorder: metrics.NoopRecorder{},
		maxBody:  MaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = listener.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}
	s.listener = listener
	s.http = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
	}
	return s, nil
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// Serve starts accepting connections in the background.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.WarnWithContext(s.logger, "ipc server stopped unexpectedly", "ipc_serve_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "clients can no longer reach this daemon"),
				logging.String(logging.FieldErrorHint, "check the socket directory permissions"),
			)
		}
	}()
}

// Close stops accepting requests, waits for in-flight ones briefly, and
// removes the socket file. It is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(ctx); err != nil {
			s.closeErr = err
			_ = s.http.Close()
		}
		s.wg.Wait()
		if err := os.RemoveAll(s.path); err != nil {
			logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
				logging.String("socket", s.path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale socket may confuse clients addressing this pid"),
				logging.String(logging.FieldErrorHint, "remove the socket file manually"),
			)
			if s.closeErr == nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	command, _, _ := strings.Cut(strings.Trim(r.URL.Path, "/"), "/")

	if command == "metrics" && r.Method == http.MethodGet && s.metrics != nil {
		s.metrics.ServeHTTP(w, r)
		return
	}

	started := time.Now()
	requestID := strconv.FormatUint(s.seq.Add(1), 10)
	ctx := logging.WithCommand(logging.WithRequestID(r.Context(), requestID), command)
	logger := logging.WithContext(ctx, s.logger)

	handler, ok := s.handlers[command]
	if !ok {
		logger.Debug("unknown command")
		s.recorder.ObserveRPC(command, metrics.ResultUnknown, time.Since(started))
		writeJSON(w, http.StatusInternalServerError, ErrorEnvelope{
			Title:   nopgerr.ErrUnknownCommand.Error(),
			Content: &ErrorContent{Code: nopgerr.CodeUnknownCommand, Message: fmt.Sprintf("no command %q", command)},
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logging.WarnWithContext(logger, "request body too large; connection aborted", "ipc_body_too_large",
				logging.Int64("limit_bytes", tooLarge.Limit),
				logging.String(logging.FieldImpact, "the request was not executed"),
				logging.String(logging.FieldErrorHint, "send fewer documents per invocation"),
			)
			s.recorder.ObserveRPC(command, metrics.ResultError, time.Since(started))
			panic(http.ErrAbortHandler)
		}
		s.fail(w, logger, command, started, nopgerr.Wrap(nopgerr.ErrInvalidArguments, "read request", err))
		return
	}

	var req Request
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.fail(w, logger, command, started, nopgerr.Wrap(nopgerr.ErrInvalidArguments, "decode request", err))
			return
		}
	}

	result, err := s.invoke(ctx, handler, req.Content)
	if err != nil {
		s.fail(w, logger, command, started, err)
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		s.fail(w, logger, command, started, nopgerr.Wrap(nopgerr.ErrStore, "encode result", err))
		return
	}
	s.recorder.ObserveRPC(command, metrics.ResultSuccess, time.Since(started))
	logger.Debug("command served", logging.Duration("elapsed", time.Since(started)))
	writeJSON(w, http.StatusOK, Response{Content: payload})
}

type handlerPanic struct {
	value any
	stack []byte
}

func (p *handlerPanic) Error() string { return fmt.Sprintf("handler panic: %v", p.value) }

func (s *Server) invoke(ctx context.Context, handler Handler, content json.RawMessage) (result any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &handlerPanic{value: recovered, stack: debug.Stack()}
		}
	}()
	return handler(ctx, content)
}

func (s *Server) fail(w http.ResponseWriter, logger *slog.Logger, command string, started time.Time, err error) {
	s.recorder.ObserveRPC(command, metrics.ResultError, time.Since(started))
	code := nopgerr.CodeOf(err)
	stack := debug.Stack()
	var p *handlerPanic
	if errors.As(err, &p) {
		stack = p.stack
		logging.ErrorWithContext(logger, "command panicked", "ipc_handler_panic", logging.Error(err))
	} else {
		logger.Info("command failed", logging.Error(err), logging.String(logging.FieldErrorCode, string(code)))
	}
	writeJSON(w, http.StatusInternalServerError, ErrorEnvelope{
		Title:   err.Error(),
		Content: &ErrorContent{Code: code, Message: err.Error()},
		Stack:   string(stack),
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
