package daemonrun

import (
	"os"
	"strconv"
	"testing"
)

func TestDaemonAlive(t *testing.T) {
	self := strconv.Itoa(os.Getpid()) + ".log"
	if !daemonAlive(self) {
		t.Fatalf("own log %s should be kept", self)
	}
	if daemonAlive("not-a-pid.log") {
		t.Fatal("unparseable log name should not be kept")
	}
	if daemonAlive("999999999.log") {
		t.Fatal("log of a missing process should not be kept")
	}
}
