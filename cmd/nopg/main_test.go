package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"nopg/internal/daemonctl"
	"nopg/internal/nopgerr"
	"nopg/internal/sockpath"
	"nopg/internal/testsupport"
)

// runMainEnv makes the test binary behave as the nopg executable, which is
// what the launcher re-executes for the daemon subcommand.
const runMainEnv = "NOPG_CLI_TEST_MAIN"

func TestMain(m *testing.M) {
	if os.Getenv(runMainEnv) == "1" {
		main()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	ctx := newCommandContext()
	cmd := newRootCommand(ctx)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := execute(context.Background(), cmd, ctx, args)
	if err != nil {
		reportError(&stderr, ctx.verbose, err)
	}
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// startDaemon launches a session daemon through the CLI and returns its pid.
func startDaemon(t *testing.T, extra ...string) string {
	t.Helper()
	testsupport.NewConfig(t)
	t.Setenv(runMainEnv, "1")

	out, _, err := runCLI(t, append([]string{"start"}, extra...)...)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping daemon test: %v", err)
		}
		t.Fatalf("start: %v", err)
	}
	pid := strings.TrimSpace(out)
	n, err := strconv.Atoi(pid)
	if err != nil {
		t.Fatalf("start printed %q, want a pid", out)
	}
	t.Cleanup(func() { _, _ = daemonctl.StopProcess(n, time.Second) })
	return pid
}

func socketGone(pid string) func() bool {
	return func() bool {
		n, _ := strconv.Atoi(pid)
		path, err := sockpath.SocketPath(n)
		if err != nil {
			return true
		}
		_, err = os.Stat(path)
		return os.IsNotExist(err)
	}
}

func TestSessionLifecycleThroughCLI(t *testing.T) {
	pid := startDaemon(t)

	if _, _, err := runCLI(t, pid, "create", "User", "--set-name=alice", "--set-profile-age", "3"); err != nil {
		t.Fatalf("create: %v", err)
	}
	out, _, err := runCLI(t, pid, "-b", "search", "User", "--where-name", "alice")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	requireContains(t, out, "profile.age")
	requireContains(t, out, "alice\t3")

	quiet, _, err := runCLI(t, pid, "-b", "-q", "search", "User")
	if err != nil {
		t.Fatalf("quiet search: %v", err)
	}
	if strings.Contains(quiet, "profile.age") {
		t.Fatalf("quiet output kept the header: %q", quiet)
	}

	count, _, err := runCLI(t, pid, "count", "User")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if strings.TrimSpace(count) != "1" {
		t.Fatalf("count printed %q", count)
	}

	if _, _, err := runCLI(t, pid, "commit"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	testsupport.WaitFor(t, 5*time.Second, "daemon socket removal", socketGone(pid))

	_, stderr, err := runCLI(t, pid, "search")
	if !errors.Is(err, nopgerr.ErrTransportUnreachable) {
		t.Fatalf("expected ErrTransportUnreachable after commit, got %v", err)
	}
	requireContains(t, stderr, "Error: ")
}

func TestTypedFlagsFollowDeclaredSchema(t *testing.T) {
	pid := startDaemon(t)

	schema := filepath.Join(t.TempDir(), "post.yaml")
	testsupport.WriteFile(t, schema, []byte(`type: object
properties:
  published:
    type: boolean
  tags:
    type: array
  title:
    type: string
`))
	if _, _, err := runCLI(t, pid, "declare", "Post", "--schema", schema, "--set-label", "Posts"); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if _, _, err := runCLI(t, pid, "create", "Post", "--set-published", "--set-tags=a,b", "--set-title", "42"); err != nil {
		t.Fatalf("create: %v", err)
	}

	out, _, err := runCLI(t, pid, "--format", "json", "search", "Post")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var docs []map[string]any
	if err := json.Unmarshal([]byte(out), &docs); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected one post, got %v", docs)
	}
	doc := docs[0]
	if doc["published"] != true || doc["title"] != "42" {
		t.Fatalf("typed decoding lost: %v", doc)
	}
	tags, _ := doc["tags"].([]any)
	if len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Fatalf("tags = %v", doc["tags"])
	}

	typ, _, err := runCLI(t, pid, "--format", "yaml", "type", "post")
	if err != nil {
		t.Fatalf("type: %v", err)
	}
	requireContains(t, typ, "label: Posts")

	if _, _, err := runCLI(t, pid, "rollback"); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	testsupport.WaitFor(t, 5*time.Second, "daemon socket removal", socketGone(pid))
}

func TestListenerCommandsThroughCLI(t *testing.T) {
	pid := startDaemon(t)

	if _, _, err := runCLI(t, pid, "on", "create", "true"); !errors.Is(err, nopgerr.ErrListenersDisabledInTransaction) {
		t.Fatalf("expected ErrListenersDisabledInTransaction, got %v", err)
	}
	if _, _, err := runCLI(t, pid, "stop", "1@1"); !errors.Is(err, nopgerr.ErrForeignListener) {
		t.Fatalf("expected ErrForeignListener, got %v", err)
	}
	if _, _, err := runCLI(t, pid, "exit"); err != nil {
		t.Fatalf("exit: %v", err)
	}
	testsupport.WaitFor(t, 5*time.Second, "daemon socket removal", socketGone(pid))
}

func TestTimeoutFlagClosesDaemon(t *testing.T) {
	pid := startDaemon(t, "--timeout", "100")
	testsupport.WaitFor(t, 5*time.Second, "timeout rollback", socketGone(pid))
}

func TestFailedFirstCommandRetiresLaunchedDaemon(t *testing.T) {
	testsupport.NewConfig(t)
	t.Setenv(runMainEnv, "1")

	_, stderr, err := runCLI(t, "search")
	if err != nil && strings.Contains(err.Error(), "operation not permitted") {
		t.Skipf("skipping daemon test: %v", err)
	}
	if !errors.Is(err, nopgerr.ErrSessionNotStarted) {
		t.Fatalf("expected ErrSessionNotStarted, got %v", err)
	}
	requireContains(t, stderr, "Error: transaction not started")

	testsupport.WaitFor(t, 5*time.Second, "launched daemon exit", func() bool {
		matches, _ := filepath.Glob(filepath.Join(sockpath.AppDir(), "*.sock"))
		return len(matches) == 0
	})
}

func TestMetricsCommand(t *testing.T) {
	pid := startDaemon(t)

	out, _, err := runCLI(t, pid, "metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	requireContains(t, out, `nopg_rpc_requests_total{command="start",result="success"}`)

	logged, _, err := runCLI(t, pid, "logs", "-n", "50")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, logged, "daemon_ready")

	if _, _, err := runCLI(t, pid, "exit"); err != nil {
		t.Fatalf("exit: %v", err)
	}
}

func TestKillRequiresPID(t *testing.T) {
	testsupport.NewConfig(t)
	if _, _, err := runCLI(t, "kill"); !errors.Is(err, nopgerr.ErrInvalidArguments) {
		t.Fatalf("expected ErrInvalidArguments, got %v", err)
	}
}

func TestUnknownFormatRejected(t *testing.T) {
	testsupport.NewConfig(t)
	_, stderr, err := runCLI(t, "--format", "xml", "status")
	if !errors.Is(err, nopgerr.ErrInvalidArguments) {
		t.Fatalf("expected ErrInvalidArguments, got %v", err)
	}
	requireContains(t, stderr, `unknown output format "xml"`)
}
