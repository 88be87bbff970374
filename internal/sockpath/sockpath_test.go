package sockpath

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"nopg/internal/nopgerr"
)

func TestSocketPathDeterministic(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	first, err := SocketPath(4242)
	if err != nil {
		t.Fatalf("SocketPath: %v", err)
	}
	second, err := SocketPath(4242)
	if err != nil {
		t.Fatalf("SocketPath: %v", err)
	}
	if first != second {
		t.Fatalf("expected stable path, got %q and %q", first, second)
	}
	want := filepath.Join(home, ".nopg", "4242.sock")
	if first != want {
		t.Fatalf("SocketPath = %q, want %q", first, want)
	}
}

func TestSocketPathRejectsInvalidPid(t *testing.T) {
	for _, pid := range []int{0, -1} {
		if _, err := SocketPath(pid); !errors.Is(err, nopgerr.ErrInvalidPid) {
			t.Fatalf("SocketPath(%d) err = %v", pid, err)
		}
	}
}

func TestAppDirFallsBackToWorkingDirectory(t *testing.T) {
	t.Setenv("HOME", "")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if got := AppDir(); got != filepath.Join(wd, ".nopg") {
		t.Fatalf("AppDir = %q", got)
	}
}

func TestEnsureAppDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir, err := EnsureAppDir()
	if err != nil {
		t.Fatalf("EnsureAppDir: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected directory at %s: %v", dir, err)
	}
}

func TestParsePID(t *testing.T) {
	if pid, err := ParsePID(" 17 "); err != nil || pid != 17 {
		t.Fatalf("ParsePID = %d, %v", pid, err)
	}
	for _, bad := range []string{"", "abc", "0", "-3"} {
		if _, err := ParsePID(bad); !errors.Is(err, nopgerr.ErrInvalidPid) {
			t.Fatalf("ParsePID(%q) err = %v", bad, err)
		}
	}
}
