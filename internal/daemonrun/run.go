package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"nopg/internal/config"
	"nopg/internal/daemonctl"
	"nopg/internal/ipc"
	"nopg/internal/listeners"
	"nopg/internal/logging"
	"nopg/internal/metrics"
	"nopg/internal/session"
	"nopg/internal/sockpath"
	"nopg/internal/store"
)

// shutdownGrace bounds how long queued listener commands may keep the
// daemon alive after the session closes.
const shutdownGrace = 5 * time.Second

// Run hosts one session until it closes or the process is signalled. The
// socket, lock and listener pool are torn down on every return path.
func Run(cmdCtx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	pid := os.Getpid()

	appDir, err := sockpath.EnsureAppDir()
	if err != nil {
		return err
	}
	socketPath, err := sockpath.SocketPath(pid)
	if err != nil {
		return err
	}
	lockPath, _ := sockpath.LockPath(pid)
	logPath, _ := sockpath.LogPath(pid)

	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("daemon lock %s is held by another process", lockPath)
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lockPath)
	}()

	logger, logCloser, err := logging.NewFromConfig(cfg, logPath)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()
	logger = logger.With(logging.Int(logging.FieldPID, pid))

	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     appDir,
		Pattern: "*.log",
		Exclude: []string{logPath},
		Keep:    daemonAlive,
	})

	recorder := metrics.NewPrometheusRecorder(nil)
	backend := store.NewSQLiteBackend(store.Options{
		PollInterval:   cfg.PollInterval(),
		BusyTimeout:    cfg.BusyTimeout(),
		EventRetention: cfg.EventRetention(),
	}, logger)
	spawner := listeners.NewSpawner(cfg.Listeners.Workers, cfg.Listeners.QueueSize, logger,
		listeners.WithSpawnRecorder(recorder))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		spawner.Close(ctx)
	}()
	registry := listeners.NewRegistry(pid, spawner, logger, recorder)

	mgr, err := session.New(session.Options{
		PID:            pid,
		Backend:        backend,
		Registry:       registry,
		DSN:            cfg.Store.DSN,
		DefaultTimeout: cfg.SessionTimeout(),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("create session manager: %w", err)
	}
	defer mgr.Stop()

	server, err := ipc.NewServer(socketPath, mgr.Handlers(), logger,
		ipc.WithRecorder(recorder),
		ipc.WithMetricsHandler(recorder.Handler()),
	)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer server.Close()
	server.Serve()

	logger.Info("nopg daemon ready",
		logging.String(logging.FieldEventType, "daemon_ready"),
		logging.String("socket", socketPath),
		logging.String("store", cfg.Store.DSN),
	)
	if err := daemonctl.NotifyReady(); err != nil {
		logging.WarnWithContext(logger, "readiness signal failed", "daemon_ready_signal_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the launching CLI will time out waiting for this daemon"),
			logging.String(logging.FieldErrorHint, "address the daemon by pid once the CLI gives up"),
		)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	select {
	case <-mgr.Done():
		logger.Info("session closed; nopg daemon shutting down")
	case <-signalCtx.Done():
		logger.Info("signal received; nopg daemon shutting down")
		shutdownSession(logger, mgr)
	}
	return nil
}

func shutdownSession(logger *slog.Logger, mgr *session.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := mgr.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logging.WarnWithContext(logger, "session shutdown failed", "session_shutdown_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "uncommitted work is discarded when the process exits"),
		)
	}
}

// daemonAlive protects the log of a daemon whose process still exists.
func daemonAlive(name string) bool {
	pid, err := sockpath.ParsePID(strings.TrimSuffix(filepath.Base(name), ".log"))
	if err != nil {
		return false
	}
	err = unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
