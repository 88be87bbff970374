package listeners

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"nopg/internal/logging"
	"nopg/internal/metrics"
)

// ErrSpawnerClosed is returned by Submit after Close.
var ErrSpawnerClosed = errors.New("listener spawner closed")

// Job is one subprocess to run for a delivered event.
type Job struct {
	Listener ID
	Command  string
	Args     []string
	// Env is appended to the daemon's environment.
	Env []string
}

// Spawner runs listener subprocesses on a fixed number of workers fed by a
// bounded queue.
type Spawner struct {
	jobs     chan Job
	quit     chan struct{}
	logger   *slog.Logger
	recorder metrics.Recorder
	stdout   io.Writer
	stderr   io.Writer

	ctx    context.Context
	cancel context.CancelFunc

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// SpawnerOption customizes a Spawner.
type SpawnerOption func(*Spawner)

// WithOutput redirects subprocess stdout and stderr. They default to the
// daemon's own streams.
func WithOutput(stdout, stderr io.Writer) SpawnerOption {
	return func(s *Spawner) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// WithSpawnRecorder counts spawns on rec.
func WithSpawnRecorder(rec metrics.Recorder) SpawnerOption {
	return func(s *Spawner) {
		if rec != nil {
			s.recorder = rec
		}
	}
}

// NewSpawner starts workers goroutines consuming a queue of queueSize jobs.
func NewSpawner(workers, queueSize int, logger *slog.Logger, opts ...SpawnerOption) *Spawner {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Spawner{
		jobs:     make(chan Job, queueSize),
		quit:     make(chan struct{}),
		logger:   logging.NewComponentLogger(logger, "spawner"),
		recorder: metrics.NoopRecorder{},
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.wg.Add(workers)
	for range workers {
		go s.work()
	}
	return s
}

// Submit queues job, blocking while the queue is full. It fails when ctx is
// done or the spawner is closed.
func (s *Spawner) Submit(ctx context.Context, job Job) error {
	select {
	case <-s.quit:
		return ErrSpawnerClosed
	default:
	}
	select {
	case s.jobs <- job:
		s.recorder.SetListenerQueueDepth(len(s.jobs))
		return nil
	case <-s.quit:
		return ErrSpawnerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for queued and running ones. When ctx
// expires first, running subprocesses are killed.
func (s *Spawner) Close(ctx context.Context) {
	s.closeOnce.Do(func() { close(s.quit) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.cancel()
		<-done
	}
	s.cancel()
}

func (s *Spawner) work() {
	defer s.wg.Done()
	for {
		select {
		case job := <-s.jobs:
			s.run(job)
		case <-s.quit:
			for {
				select {
				case job := <-s.jobs:
					s.run(job)
				default:
					return
				}
			}
		}
	}
}

func (s *Spawner) run(job Job) {
	s.recorder.SetListenerQueueDepth(len(s.jobs))
	logger := s.logger.With(logging.String(logging.FieldListenerID, job.Listener.String()))

	cmd := exec.CommandContext(s.ctx, job.Command, job.Args...)
	cmd.Env = append(os.Environ(), job.Env...)
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr

	if err := cmd.Run(); err != nil {
		s.recorder.IncListenerSpawn(metrics.ResultError)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logging.WarnWithContext(logger, "listener command exited non-zero", "listener_exit_nonzero",
				logging.String("listener_command", job.Command),
				logging.Int("exit_code", exitErr.ExitCode()),
				logging.String(logging.FieldImpact, "the event was delivered but its handler failed"),
				logging.String(logging.FieldErrorHint, "run the listener command by hand with the NOPG_* variables set"),
			)
			return
		}
		logging.WarnWithContext(logger, "listener command failed to start", "listener_spawn_failed",
			logging.String("listener_command", job.Command),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the event was not delivered"),
			logging.String(logging.FieldErrorHint, "check that the command exists on the daemon's PATH"),
		)
		return
	}
	s.recorder.IncListenerSpawn(metrics.ResultSuccess)
	logger.Debug("listener command finished", logging.String("listener_command", job.Command))
}
