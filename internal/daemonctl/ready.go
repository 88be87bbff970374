package daemonctl

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

var readyOnce sync.Once

// NotifyReady tells the launching process that the daemon is serving, then
// closes the channel so the parent can exit independently. It runs at most
// once per process and is a no-op when the daemon was started without a
// readiness fd.
func NotifyReady() error {
	var err error
	readyOnce.Do(func() {
		value := strings.TrimSpace(os.Getenv(ReadyFDEnv))
		if value == "" {
			return
		}
		_ = os.Unsetenv(ReadyFDEnv)
		fd, convErr := strconv.Atoi(value)
		if convErr != nil || fd < 0 {
			err = fmt.Errorf("invalid %s %q", ReadyFDEnv, value)
			return
		}
		file := os.NewFile(uintptr(fd), "nopg-ready")
		if file == nil {
			err = fmt.Errorf("readiness fd %d is not open", fd)
			return
		}
		defer file.Close()
		err = WriteReady(file, os.Getpid())
	})
	return err
}

// WriteReady writes the readiness line for pid.
func WriteReady(w io.Writer, pid int) error {
	if _, err := fmt.Fprintf(w, "ready %d\n", pid); err != nil {
		return fmt.Errorf("signal readiness: %w", err)
	}
	return nil
}
