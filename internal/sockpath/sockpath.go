package sockpath

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"nopg/internal/nopgerr"
)

// DirName is the per-user application directory under the home directory.
const DirName = ".nopg"

// HomeDir returns $HOME, falling back to the working directory when unset.
func HomeDir() string {
	if home := strings.TrimSpace(os.Getenv("HOME")); home != "" {
		if abs, err := filepath.Abs(home); err == nil {
			return abs
		}
		return home
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// AppDir returns the directory holding daemon sockets, locks and logs.
func AppDir() string {
	return filepath.Join(HomeDir(), DirName)
}

// EnsureAppDir creates the application directory if missing and verifies the
// current user can create sockets in it.
func EnsureAppDir() (string, error) {
	dir := AppDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create app directory %q: %w", dir, err)
	}
	if err := unix.Access(dir, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return "", fmt.Errorf("app directory %q not writable: %w", dir, err)
	}
	return dir, nil
}

// SocketPath returns the control socket for the daemon with the given pid.
func SocketPath(pid int) (string, error) {
	return pidFile(pid, ".sock")
}

// LockPath returns the lock file the daemon holds while it is alive.
func LockPath(pid int) (string, error) {
	return pidFile(pid, ".lock")
}

// LogPath returns the daemon log file.
func LogPath(pid int) (string, error) {
	return pidFile(pid, ".log")
}

func pidFile(pid int, suffix string) (string, error) {
	if pid <= 0 {
		return "", fmt.Errorf("%w: %d", nopgerr.ErrInvalidPid, pid)
	}
	return filepath.Join(AppDir(), strconv.Itoa(pid)+suffix), nil
}

// ParsePID parses a positive integer pid.
func ParsePID(value string) (int, error) {
	pid, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %q", nopgerr.ErrInvalidPid, value)
	}
	return pid, nil
}
