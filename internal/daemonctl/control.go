package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"nopg/internal/nopgerr"
	"nopg/internal/sockpath"
)

// Probe reports whether a live daemon owns the socket for pid. A socket whose
// lock is free or whose process is gone is stale; Probe removes it and
// reports ErrTransportUnreachable.
func Probe(pid int) error {
	socket, err := sockpath.SocketPath(pid)
	if err != nil {
		return err
	}
	lockPath, err := sockpath.LockPath(pid)
	if err != nil {
		return err
	}
	if _, err := os.Stat(socket); err != nil {
		return nopgerr.Wrap(nopgerr.ErrTransportUnreachable, "probe", fmt.Errorf("no socket for pid %d", pid))
	}

	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nopgerr.Wrap(nopgerr.ErrTransportUnreachable, "probe lock", err)
	}
	if locked {
		_ = lock.Unlock()
		removeStale(socket, lockPath)
		return nopgerr.Wrap(nopgerr.ErrTransportUnreachable, "probe", fmt.Errorf("stale socket for pid %d removed", pid))
	}

	if !processAlive(pid) {
		removeStale(socket, lockPath)
		return nopgerr.Wrap(nopgerr.ErrTransportUnreachable, "probe", fmt.Errorf("process %d is gone", pid))
	}
	return nil
}

// StopProcess sends SIGTERM to a daemon that no longer answers RPC and
// escalates to SIGKILL after grace. It reports whether the kill was forced.
// The daemon's socket and lock files are removed either way.
func StopProcess(pid int, grace time.Duration) (bool, error) {
	if pid <= 0 {
		return false, nopgerr.ErrInvalidPid
	}
	if pid == os.Getpid() {
		return false, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	defer cleanupFiles(pid)

	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return false, nil
		}
		return false, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return false, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return false, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	return true, nil
}

func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func cleanupFiles(pid int) {
	socket, err := sockpath.SocketPath(pid)
	if err != nil {
		return
	}
	lockPath, _ := sockpath.LockPath(pid)
	removeStale(socket, lockPath)
}

func removeStale(paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		_ = os.Remove(path)
	}
}
