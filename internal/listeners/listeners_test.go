package listeners_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"nopg/internal/listeners"
	"nopg/internal/logging"
	"nopg/internal/nopgerr"
	"nopg/internal/store"
	"nopg/internal/testsupport"
)

type fakeSubscriber struct {
	mu   sync.Mutex
	next store.SubscriptionID
	subs map[store.SubscriptionID]fakeSub
}

type fakeSub struct {
	event string
	fn    store.Listener
	once  bool
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subs: make(map[store.SubscriptionID]fakeSub)}
}

func (f *fakeSubscriber) add(event string, fn store.Listener, once bool) store.SubscriptionID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.subs[f.next] = fakeSub{event: event, fn: fn, once: once}
	return f.next
}

func (f *fakeSubscriber) On(event string, fn store.Listener) store.SubscriptionID {
	return f.add(event, fn, false)
}

func (f *fakeSubscriber) Once(event string, fn store.Listener) store.SubscriptionID {
	return f.add(event, fn, true)
}

func (f *fakeSubscriber) RemoveListener(id store.SubscriptionID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[id]
	delete(f.subs, id)
	return ok
}

func (f *fakeSubscriber) emit(ev store.Event) {
	f.mu.Lock()
	var fns []store.Listener
	for id, sub := range f.subs {
		if sub.event == ev.Name {
			fns = append(fns, sub.fn)
			if sub.once {
				delete(f.subs, id)
			}
		}
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *fakeSubscriber) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func closeSpawner(t *testing.T, s *listeners.Spawner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Close(ctx)
}

func TestParseID(t *testing.T) {
	tests := []struct {
		token   string
		want    listeners.ID
		wantErr bool
	}{
		{token: "123@4", want: listeners.ID{PID: 123, Local: 4}},
		{token: " 9@1 ", want: listeners.ID{PID: 9, Local: 1}},
		{token: "123", wantErr: true},
		{token: "x@1", wantErr: true},
		{token: "1@0", wantErr: true},
		{token: "-1@2", wantErr: true},
	}
	for _, tt := range tests {
		got, err := listeners.ParseID(tt.token)
		if tt.wantErr {
			if !errors.Is(err, nopgerr.ErrInvalidArguments) {
				t.Fatalf("ParseID(%q) err = %v", tt.token, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseID(%q) = %+v, %v", tt.token, got, err)
		}
		if got.String() != strings.TrimSpace(tt.token) {
			t.Fatalf("String() = %q", got.String())
		}
	}
}

func TestRegisterRefusedInTransaction(t *testing.T) {
	spawner := listeners.NewSpawner(1, 1, logging.NewNop())
	defer closeSpawner(t, spawner)
	reg := listeners.NewRegistry(100, spawner, logging.NewNop(), nil)

	_, err := reg.Register(newFakeSubscriber(), true, "create", "true", nil, false)
	if !errors.Is(err, nopgerr.ErrListenersDisabledInTransaction) {
		t.Fatalf("expected ErrListenersDisabledInTransaction, got %v", err)
	}
}

func TestUnregister(t *testing.T) {
	spawner := listeners.NewSpawner(1, 1, logging.NewNop())
	defer closeSpawner(t, spawner)
	reg := listeners.NewRegistry(100, spawner, logging.NewNop(), nil)
	sub := newFakeSubscriber()

	first, err := reg.Register(sub, false, "create", "true", nil, false)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	second, err := reg.Register(sub, false, "update", "true", nil, false)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if first.String() != "100@1" || second.String() != "100@2" {
		t.Fatalf("ids = %s, %s", first, second)
	}

	if err := reg.Unregister(sub, "200@1"); !errors.Is(err, nopgerr.ErrForeignListener) {
		t.Fatalf("expected ErrForeignListener, got %v", err)
	}
	if err := reg.Unregister(sub, "100@9"); !errors.Is(err, nopgerr.ErrListenerNotFound) {
		t.Fatalf("expected ErrListenerNotFound, got %v", err)
	}
	if err := reg.Unregister(sub, first.String()); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if reg.Count() != 1 || sub.size() != 1 {
		t.Fatalf("count = %d, subs = %d", reg.Count(), sub.size())
	}

	reg.Close(sub)
	if reg.Count() != 0 || sub.size() != 0 {
		t.Fatalf("Close left count = %d, subs = %d", reg.Count(), sub.size())
	}
}

func TestEventSpawnsCommandWithEnvironment(t *testing.T) {
	out := filepath.Join(t.TempDir(), "events.txt")
	spawner := listeners.NewSpawner(2, 4, logging.NewNop())
	reg := listeners.NewRegistry(77, spawner, logging.NewNop(), nil)
	sub := newFakeSubscriber()

	script := `printf '%s %s %s %s\n' "$NOPG_PID" "$NOPG_ID" "$NOPG_EVENT" "$NOPG_TYPE" >> "$1"`
	if _, err := reg.Register(sub, false, "create", "sh", []string{"-c", script, "sh", out}, true); err != nil {
		t.Fatalf("Register: %v", err)
	}

	sub.emit(store.Event{Name: "create", DocumentID: "doc-1", DocumentType: "User"})
	sub.emit(store.Event{Name: "create", DocumentID: "doc-2", DocumentType: "User"})
	closeSpawner(t, spawner)

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "77 doc-1 create User" {
		t.Fatalf("unexpected listener output %q", got)
	}
	if reg.Count() != 0 {
		t.Fatalf("one-shot registration should be gone, count = %d", reg.Count())
	}
}

func TestPersistentListenerFiresForEachEvent(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "seen.txt")
	script := testsupport.WriteScript(t, dir, "on-update.sh", `echo "$NOPG_ID" >> "`+out+`"`)

	spawner := listeners.NewSpawner(1, 4, logging.NewNop())
	defer closeSpawner(t, spawner)
	reg := listeners.NewRegistry(9, spawner, logging.NewNop(), nil)
	sub := newFakeSubscriber()

	id, err := reg.Register(sub, false, "update", script, nil, false)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if id.String() != "9@1" {
		t.Fatalf("id = %s", id)
	}

	sub.emit(store.Event{Name: "update", DocumentID: "a", DocumentType: "User"})
	sub.emit(store.Event{Name: "update", DocumentID: "b", DocumentType: "User"})
	testsupport.WaitFor(t, 2*time.Second, "both listener runs", func() bool {
		data, err := os.ReadFile(out)
		return err == nil && strings.Count(string(data), "\n") == 2
	})
	if reg.Count() != 1 {
		t.Fatalf("persistent registration dropped, count = %d", reg.Count())
	}
}

func TestSubmitBlocksWhenQueueFull(t *testing.T) {
	spawner := listeners.NewSpawner(1, 1, logging.NewNop())
	defer closeSpawner(t, spawner)

	slow := listeners.Job{Command: "sleep", Args: []string{"0.5"}}
	if err := spawner.Submit(context.Background(), slow); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// Let the worker take the first job so the next one fills the queue.
	time.Sleep(100 * time.Millisecond)
	if err := spawner.Submit(context.Background(), slow); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := spawner.Submit(ctx, slow); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected Submit to block until deadline, got %v", err)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	spawner := listeners.NewSpawner(1, 1, logging.NewNop())
	closeSpawner(t, spawner)
	if err := spawner.Submit(context.Background(), listeners.Job{Command: "true"}); !errors.Is(err, listeners.ErrSpawnerClosed) {
		t.Fatalf("expected ErrSpawnerClosed, got %v", err)
	}
}
