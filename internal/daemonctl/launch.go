package daemonctl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"nopg/internal/nopgerr"
)

// ReadyFDEnv names the environment variable carrying the readiness fd.
const ReadyFDEnv = "NOPG_READY_FD"

// DefaultReadyTimeout bounds the readiness wait when LaunchOptions leaves it unset.
const DefaultReadyTimeout = 10 * time.Second

// readyFD is the child's descriptor for the first ExtraFiles entry.
const readyFD = 3

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	// Executable defaults to the running binary.
	Executable string
	// Args defaults to ["daemon"].
	Args         []string
	ConfigPath   string
	ReadyTimeout time.Duration
	// Env is appended to the inherited environment.
	Env []string
}

type readyResult struct {
	pid int
	err error
}

// Launch starts a detached daemon and waits until it reports readiness.
// It returns the daemon's pid. The child runs in its own session with its
// standard streams discarded; readiness arrives over an inherited pipe.
func Launch(ctx context.Context, opts LaunchOptions) (int, error) {
	executable := strings.TrimSpace(opts.Executable)
	if executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return 0, fmt.Errorf("resolve executable: %w", err)
		}
		executable = exe
	}
	args := opts.Args
	if len(args) == 0 {
		args = []string{"daemon"}
	}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(append([]string(nil), args...), "--config", cfg)
	}
	timeout := opts.ReadyTimeout
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}

	reader, writer, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("create readiness pipe: %w", err)
	}
	defer reader.Close()

	proc := exec.Command(executable, args...)
	proc.ExtraFiles = []*os.File{writer}
	proc.Env = append(append(os.Environ(), opts.Env...), fmt.Sprintf("%s=%d", ReadyFDEnv, readyFD))
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		_ = writer.Close()
		return 0, fmt.Errorf("launch daemon: %w", err)
	}
	// Only the child may hold the write end, so EOF means the child let go.
	_ = writer.Close()

	ready := make(chan readyResult, 1)
	go func() {
		line, err := bufio.NewReader(reader).ReadString('\n')
		if err != nil && line == "" {
			ready <- readyResult{err: err}
			return
		}
		pid, err := ParseReady(line)
		ready <- readyResult{pid: pid, err: err}
	}()

	exited := make(chan error, 1)
	go func() { exited <- proc.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case res := <-ready:
			if res.err == nil {
				return res.pid, nil
			}
			// Pipe closed without a readiness line; the exit status decides.
			ready = nil
		case err := <-exited:
			if err == nil {
				err = errors.New("exit status 0")
			}
			return 0, nopgerr.Wrap(nopgerr.ErrUnexpectedDaemonExit, "launch", err)
		case <-timer.C:
			_ = proc.Process.Kill()
			return 0, nopgerr.Wrap(nopgerr.ErrDaemonReadyTimeout, "launch", fmt.Errorf("no readiness signal after %s", timeout))
		case <-ctx.Done():
			_ = proc.Process.Kill()
			return 0, ctx.Err()
		}
	}
}

// ParseReady decodes a "ready <pid>" line.
func ParseReady(line string) (int, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != "ready" {
		return 0, fmt.Errorf("malformed readiness line %q", strings.TrimSpace(line))
	}
	pid, err := strconv.Atoi(fields[1])
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed readiness pid %q", fields[1])
	}
	return pid, nil
}
