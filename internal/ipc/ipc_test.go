package ipc_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nopg/internal/ipc"
	"nopg/internal/logging"
	"nopg/internal/nopgerr"
)

func socketPath(t *testing.T) string {
	t.Helper()
	// t.TempDir can exceed the sun_path limit on some hosts.
	dir, err := os.MkdirTemp("", "nopg-ipc")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "1.sock")
}

func startServer(t *testing.T, handlers map[string]ipc.Handler, opts ...ipc.ServerOption) *ipc.Server {
	t.Helper()
	srv, err := ipc.NewServer(socketPath(t), handlers, logging.NewNop(), opts...)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func echoHandlers() map[string]ipc.Handler {
	return map[string]ipc.Handler{
		"echo": func(_ context.Context, content json.RawMessage) (any, error) {
			var args map[string]any
			if err := json.Unmarshal(content, &args); err != nil {
				return nil, err
			}
			return args, nil
		},
		"commit": func(context.Context, json.RawMessage) (any, error) {
			return nil, nopgerr.ErrSessionNotStarted
		},
		"boom": func(context.Context, json.RawMessage) (any, error) {
			panic("kaboom")
		},
	}
}

func TestRoundTrip(t *testing.T) {
	srv := startServer(t, echoHandlers())
	client := ipc.NewClient(srv.Path())

	var out map[string]any
	err := client.Call(context.Background(), "echo", map[string]any{"_": []any{"User"}, "where": map[string]any{"a": 1.0}}, &out)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if where, ok := out["where"].(map[string]any); !ok || where["a"] != 1.0 {
		t.Fatalf("unexpected echo %v", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	srv := startServer(t, echoHandlers())
	_, err := ipc.NewClient(srv.Path()).Send(context.Background(), "nope", nil)

	var remote *ipc.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %T %v", err, err)
	}
	if remote.Status != http.StatusInternalServerError || remote.Title != "no command" {
		t.Fatalf("unexpected remote error %+v", remote)
	}
	if !errors.Is(err, nopgerr.ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestHandlerErrorCarriesCodeAndStack(t *testing.T) {
	srv := startServer(t, echoHandlers())
	_, err := ipc.NewClient(srv.Path()).Send(context.Background(), "commit", map[string]any{})

	if !errors.Is(err, nopgerr.ErrSessionNotStarted) {
		t.Fatalf("expected ErrSessionNotStarted, got %v", err)
	}
	var remote *ipc.RemoteError
	if !errors.As(err, &remote) || remote.Stack == "" {
		t.Fatalf("expected stack on remote error, got %+v", remote)
	}
	if err.Error() != "transaction not started" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestHandlerPanicBecomesError(t *testing.T) {
	srv := startServer(t, echoHandlers())
	_, err := ipc.NewClient(srv.Path()).Send(context.Background(), "boom", nil)

	var remote *ipc.RemoteError
	if !errors.As(err, &remote) || !strings.Contains(remote.Title, "kaboom") {
		t.Fatalf("unexpected error %v", err)
	}
	if !strings.Contains(remote.Stack, "goroutine") {
		t.Fatalf("expected panic stack, got %q", remote.Stack)
	}
}

func TestOversizedBodyAbortsConnection(t *testing.T) {
	srv := startServer(t, echoHandlers(), ipc.WithMaxBodyBytes(1024))
	_, err := ipc.NewClient(srv.Path()).Send(context.Background(), "echo", map[string]any{"blob": strings.Repeat("x", 4096)})
	if !errors.Is(err, nopgerr.ErrTransportUnreachable) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestCloseRemovesSocket(t *testing.T) {
	srv := startServer(t, echoHandlers())
	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(srv.Path()); !os.IsNotExist(err) {
		t.Fatalf("socket still present: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	_, err := ipc.NewClient(srv.Path()).Send(context.Background(), "echo", nil)
	if !errors.Is(err, nopgerr.ErrTransportUnreachable) {
		t.Fatalf("expected ErrTransportUnreachable, got %v", err)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("nopg_up 1\n"))
	})
	srv := startServer(t, echoHandlers(), ipc.WithMetricsHandler(metrics))
	body, err := ipc.NewClient(srv.Path()).Metrics(context.Background())
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if !strings.Contains(body, "nopg_up 1") {
		t.Fatalf("unexpected body %q", body)
	}
}
