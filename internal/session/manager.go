package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"nopg/internal/config"
	"nopg/internal/listeners"
	"nopg/internal/logging"
	"nopg/internal/nopgerr"
	"nopg/internal/store"
)

// State is the lifecycle position of the daemon's session.
type State int

const (
	StateIdle State = iota
	StateConnected
	StateInTransaction
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateInTransaction:
		return "transaction"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options wires a Manager.
type Options struct {
	PID      int
	Backend  store.Backend
	Registry *listeners.Registry
	// DSN is used when start/connect name no store.
	DSN string
	// DefaultTimeout applies when start/connect carry no timeout trait.
	DefaultTimeout time.Duration
	Logger         *slog.Logger
}

type result struct {
	value any
	err   error
}

type task struct {
	ctx   context.Context
	fn    func(ctx context.Context) (any, error)
	reply chan result
}

// Manager owns the daemon's single store session. Every command runs as a
// task on one goroutine, so at most one store operation is in flight.
type Manager struct {
	pid            int
	backend        store.Backend
	registry       *listeners.Registry
	dsn            string
	defaultTimeout time.Duration
	logger         *slog.Logger

	tasks    chan task
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// Owned by the actor goroutine.
	state    State
	handle   store.Session
	deadline time.Time
	started  time.Time
}

// New constructs a Manager and starts its actor.
func New(opts Options) (*Manager, error) {
	if opts.Backend == nil {
		return nil, errors.New("session manager requires a store backend")
	}
	if opts.Registry == nil {
		return nil, errors.New("session manager requires a listener registry")
	}
	m := &Manager{
		pid:            opts.PID,
		backend:        opts.Backend,
		registry:       opts.Registry,
		dsn:            opts.DSN,
		defaultTimeout: opts.DefaultTimeout,
		logger:         logging.NewComponentLogger(opts.Logger, "session"),
		tasks:          make(chan task, 1),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	go m.run()
	return m, nil
}

func (m *Manager) run() {
	for {
		select {
		case t := <-m.tasks:
			value, err := t.fn(t.ctx)
			t.reply <- result{value: value, err: err}
		case <-m.stop:
			return
		}
	}
}

// Do runs fn on the actor and waits for its result.
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	t := task{ctx: ctx, fn: fn, reply: make(chan result, 1)}
	select {
	case m.tasks <- t:
	case <-m.stop:
		return nil, nopgerr.ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-t.reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the session reaches Closed.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Stop ends the actor. Pending and later Do calls fail with ErrSessionClosed.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Shutdown closes the session as the exit command does, rolling back any
// open work. The daemon uses it on signals.
func (m *Manager) Shutdown(ctx context.Context) error {
	_, err := m.Do(ctx, m.exit)
	if errors.Is(err, nopgerr.ErrSessionClosed) {
		return nil
	}
	return err
}

// open moves Idle to Connected or InTransaction. Actor only.
func (m *Manager) open(ctx context.Context, transaction bool, pg string, traits map[string]any) (any, error) {
	if m.state != StateIdle {
		return nil, nopgerr.ErrAlreadyStarted
	}
	timeout, err := parseTimeout(traits, m.defaultTimeout)
	if err != nil {
		return nil, err
	}
	dsn := m.dsn
	if pg != "" {
		if dsn, err = config.ResolveDSN(pg); err != nil {
			return nil, nopgerr.Wrap(nopgerr.ErrInvalidArguments, "pg", err)
		}
	}

	cfg := store.Config{DSN: dsn, Timeout: timeout}
	var handle store.Session
	if transaction {
		handle, err = m.backend.Start(ctx, cfg)
	} else {
		handle, err = m.backend.Connect(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}

	m.handle = handle
	m.started = time.Now()
	m.state = StateConnected
	if transaction {
		m.state = StateInTransaction
	}
	if timeout > 0 {
		m.deadline = m.started.Add(timeout)
	}
	// The handle finishes on its own only when the timeout fires. Watching
	// Done instead of the timeout event cannot miss an early expiry.
	go func() {
		<-handle.Done()
		_, _ = m.Do(context.Background(), m.expire)
	}()
	m.logger.Info("session opened",
		logging.String(logging.FieldState, m.state.String()),
		logging.Duration("timeout", timeout),
	)
	return m.pid, nil
}

// require fails unless a handle is open. Actor only.
func (m *Manager) require() (store.Session, error) {
	switch m.state {
	case StateIdle:
		return nil, nopgerr.ErrSessionNotStarted
	case StateClosed:
		return nil, nopgerr.ErrSessionClosed
	}
	return m.handle, nil
}

// finalize commits or rolls back and closes. Actor only.
func (m *Manager) finalize(ctx context.Context, commit bool) (any, error) {
	handle, err := m.require()
	if err != nil {
		return nil, err
	}
	if commit {
		err = handle.Commit(ctx)
	} else {
		err = handle.Rollback(ctx)
	}
	verb := "rolled back"
	if commit {
		verb = "committed"
	}
	m.close("session " + verb)
	if err != nil {
		return nil, err
	}
	return true, nil
}

// exit closes from any state. Actor only.
func (m *Manager) exit(ctx context.Context) (any, error) {
	if m.state == StateClosed {
		return true, nil
	}
	if m.handle != nil {
		if err := m.handle.Rollback(ctx); err != nil && !errors.Is(err, nopgerr.ErrSessionClosed) {
			logging.WarnWithContext(m.logger, "rollback on exit failed", "session_exit_rollback_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "uncommitted work may linger until the database releases it"),
			)
		}
	}
	m.close("session exited")
	return true, nil
}

// expire handles the store's timeout event. Actor only.
func (m *Manager) expire(context.Context) (any, error) {
	if m.state == StateClosed {
		return nil, nil
	}
	m.close("session timed out")
	return nil, nil
}

func (m *Manager) close(msg string) {
	if m.handle != nil {
		m.registry.Close(m.handle)
	}
	m.state = StateClosed
	m.logger.Info(msg, logging.String(logging.FieldState, m.state.String()))
	close(m.done)
}

// Status describes the session for the status command.
type Status struct {
	PID         int                      `json:"pid"`
	State       string                   `json:"state"`
	Transaction bool                     `json:"transaction"`
	Started     string                   `json:"started,omitempty"`
	Deadline    string                   `json:"deadline,omitempty"`
	Listeners   int                      `json:"listeners"`
	Registered  []listeners.Registration `json:"registrations,omitempty"`
}

func (m *Manager) status(context.Context) (any, error) {
	st := Status{
		PID:         m.pid,
		State:       m.state.String(),
		Transaction: m.state == StateInTransaction,
		Listeners:   m.registry.Count(),
		Registered:  m.registry.List(),
	}
	if !m.started.IsZero() {
		st.Started = m.started.UTC().Format(time.RFC3339Nano)
	}
	if !m.deadline.IsZero() {
		st.Deadline = m.deadline.UTC().Format(time.RFC3339Nano)
	}
	return st, nil
}
