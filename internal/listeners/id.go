package listeners

import (
	"fmt"
	"strconv"
	"strings"

	"nopg/internal/nopgerr"
)

// ID addresses a listener registration: the owning daemon's pid and the
// registration number local to that daemon.
type ID struct {
	PID   int
	Local int64
}

// String renders the external "<pid>@<local>" token.
func (id ID) String() string {
	return fmt.Sprintf("%d@%d", id.PID, id.Local)
}

// MarshalText lets IDs travel as their token form in JSON.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// ParseID decodes a "<pid>@<local>" token.
func ParseID(token string) (ID, error) {
	pidPart, localPart, ok := strings.Cut(strings.TrimSpace(token), "@")
	if !ok {
		return ID{}, nopgerr.Invalid("listener id %q must look like PID@ID", token)
	}
	pid, err := strconv.Atoi(pidPart)
	if err != nil || pid <= 0 {
		return ID{}, nopgerr.Invalid("listener id %q has an invalid pid", token)
	}
	local, err := strconv.ParseInt(localPart, 10, 64)
	if err != nil || local <= 0 {
		return ID{}, nopgerr.Invalid("listener id %q has an invalid local id", token)
	}
	return ID{PID: pid, Local: local}, nil
}
