package listeners

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"nopg/internal/logging"
	"nopg/internal/metrics"
	"nopg/internal/nopgerr"
	"nopg/internal/store"
)

// Environment variables handed to listener subprocesses.
const (
	EnvPID   = "NOPG_PID"
	EnvID    = "NOPG_ID"
	EnvEvent = "NOPG_EVENT"
	EnvType  = "NOPG_TYPE"
)

// Subscriber is the part of a store session listeners attach to.
type Subscriber interface {
	On(event string, fn store.Listener) store.SubscriptionID
	Once(event string, fn store.Listener) store.SubscriptionID
	RemoveListener(id store.SubscriptionID) bool
}

// Registration describes one active listener.
type Registration struct {
	ID      ID       `json:"id"`
	Event   string   `json:"event"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Once    bool     `json:"once"`

	sub store.SubscriptionID
}

// Registry tracks the listeners of one daemon and forwards their events to
// a Spawner.
type Registry struct {
	pid      int
	spawner  *Spawner
	logger   *slog.Logger
	recorder metrics.Recorder

	mu   sync.Mutex
	next int64
	regs map[int64]*Registration
}

// NewRegistry returns a registry for the daemon with the given pid.
func NewRegistry(pid int, spawner *Spawner, logger *slog.Logger, recorder metrics.Recorder) *Registry {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Registry{
		pid:      pid,
		spawner:  spawner,
		logger:   logging.NewComponentLogger(logger, "listeners"),
		recorder: recorder,
		regs:     make(map[int64]*Registration),
	}
}

// Register subscribes command to event on sub. Registration is refused
// inside a transaction since uncommitted work raises no events.
func (r *Registry) Register(sub Subscriber, inTx bool, event, command string, args []string, once bool) (ID, error) {
	if inTx {
		return ID{}, nopgerr.ErrListenersDisabledInTransaction
	}
	if event == "" {
		return ID{}, nopgerr.Invalid("listener requires an event name")
	}
	if command == "" {
		return ID{}, nopgerr.Invalid("listener requires a command")
	}

	r.mu.Lock()
	r.next++
	reg := &Registration{
		ID:      ID{PID: r.pid, Local: r.next},
		Event:   event,
		Command: command,
		Args:    slices.Clone(args),
		Once:    once,
	}
	r.regs[reg.ID.Local] = reg
	r.mu.Unlock()

	handler := r.forward(reg)
	var subID store.SubscriptionID
	if once {
		subID = sub.Once(event, handler)
	} else {
		subID = sub.On(event, handler)
	}

	r.mu.Lock()
	reg.sub = subID
	count := len(r.regs)
	r.mu.Unlock()
	r.recorder.SetListenersRegistered(count)

	r.logger.Info("listener registered",
		logging.String(logging.FieldListenerID, reg.ID.String()),
		logging.String(logging.FieldEvent, event),
		logging.String("listener_command", command),
		logging.Bool("once", once),
	)
	return reg.ID, nil
}

func (r *Registry) forward(reg *Registration) store.Listener {
	return func(ev store.Event) {
		r.recorder.IncStoreEvent(ev.Name)
		if reg.Once {
			r.forget(reg.ID.Local)
		}
		job := Job{
			Listener: reg.ID,
			Command:  reg.Command,
			Args:     reg.Args,
			Env: []string{
				EnvPID + "=" + strconv.Itoa(r.pid),
				EnvID + "=" + ev.DocumentID,
				EnvEvent + "=" + ev.Name,
				EnvType + "=" + ev.DocumentType,
			},
		}
		if err := r.spawner.Submit(context.Background(), job); err != nil {
			r.logger.Debug("listener event dropped",
				logging.String(logging.FieldListenerID, reg.ID.String()),
				logging.String(logging.FieldEvent, ev.Name),
				logging.Error(err),
			)
		}
	}
}

func (r *Registry) forget(local int64) {
	r.mu.Lock()
	delete(r.regs, local)
	count := len(r.regs)
	r.mu.Unlock()
	r.recorder.SetListenersRegistered(count)
}

// Unregister removes the listener named by token from sub.
func (r *Registry) Unregister(sub Subscriber, token string) error {
	id, err := ParseID(token)
	if err != nil {
		return err
	}
	if id.PID != r.pid {
		return nopgerr.ErrForeignListener
	}

	r.mu.Lock()
	reg, ok := r.regs[id.Local]
	if ok {
		delete(r.regs, id.Local)
	}
	count := len(r.regs)
	r.mu.Unlock()
	if !ok {
		return nopgerr.ErrListenerNotFound
	}
	sub.RemoveListener(reg.sub)
	r.recorder.SetListenersRegistered(count)
	r.logger.Info("listener removed", logging.String(logging.FieldListenerID, id.String()))
	return nil
}

// Close removes every registration from sub.
func (r *Registry) Close(sub Subscriber) {
	r.mu.Lock()
	regs := r.regs
	r.regs = make(map[int64]*Registration)
	r.mu.Unlock()
	if sub != nil {
		for _, reg := range regs {
			sub.RemoveListener(reg.sub)
		}
	}
	r.recorder.SetListenersRegistered(0)
}

// Count reports the number of active registrations.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.regs)
}

// List returns the active registrations ordered by id.
func (r *Registry) List() []Registration {
	r.mu.Lock()
	out := make([]Registration, 0, len(r.regs))
	for _, reg := range r.regs {
		out = append(out, *reg)
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b Registration) int {
		switch {
		case a.ID.Local < b.ID.Local:
			return -1
		case a.ID.Local > b.ID.Local:
			return 1
		}
		return 0
	})
	return out
}
