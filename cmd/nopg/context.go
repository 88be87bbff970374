package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"nopg/internal/cliargs"
	"nopg/internal/config"
	"nopg/internal/daemonctl"
	"nopg/internal/ipc"
	"nopg/internal/logging"
	"nopg/internal/nopgerr"
	"nopg/internal/sockpath"
)

// abandonTimeout bounds the exit request sent to a daemon this invocation
// launched but could not use.
const abandonTimeout = 2 * time.Second

type commandContext struct {
	configFlag  string
	pgFlag      string
	timeoutFlag int
	arrayFSFlag string
	formatFlag  string
	verbose     bool
	quiet       bool
	batch       bool

	// argv is the raw command line, kept for the type-aware second decode.
	argv    []string
	payload cliargs.Decoded
	pids    []int

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	logger *slog.Logger
}

func newCommandContext() *commandContext {
	return &commandContext{logger: logging.NewNop()}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, exists, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		c.config = cfg
		if exists {
			c.configPath = path
		}
	})
	return c.config, c.configErr
}

func (c *commandContext) initLogger(cmd *cobra.Command) error {
	if !c.verbose {
		return nil
	}
	logger, _, err := logging.New(logging.Options{
		Level:       "debug",
		Format:      "console",
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return err
	}
	c.logger = logging.NewComponentLogger(logger, "cli").With(
		logging.String(logging.FieldCommand, cmd.Name()),
	)
	return nil
}

func (c *commandContext) arrayFS(cfg *config.Config) string {
	if c.arrayFSFlag != "" {
		return c.arrayFSFlag
	}
	if cfg != nil && cfg.CLI.ArrayFS != "" {
		return cfg.CLI.ArrayFS
	}
	return cliargs.DefaultFieldSeparator
}

func (c *commandContext) outputFormat(cmd *cobra.Command, cfg *config.Config) string {
	if cmd.Flags().Changed("format") {
		return c.formatFlag
	}
	if c.batch {
		return formatBatch
	}
	if cfg != nil && cfg.CLI.Format != "" {
		return cfg.CLI.Format
	}
	return formatTable
}

// traits returns the decoded --traits-* flags plus --timeout.
func (c *commandContext) traits(cmd *cobra.Command) map[string]any {
	traits := cliargs.Unflatten(c.payload.Traits, nil)
	if cmd.Flags().Changed("timeout") {
		if traits == nil {
			traits = map[string]any{}
		}
		traits["timeout"] = c.timeoutFlag
	}
	if len(traits) == 0 {
		return nil
	}
	return traits
}

// daemonClient returns a client for the addressed daemon, launching a new
// one when no pid was given.
func (c *commandContext) daemonClient(ctx context.Context, cfg *config.Config) (*ipc.Client, bool, error) {
	if len(c.pids) > 0 {
		pid := c.pids[0]
		if err := daemonctl.Probe(pid); err != nil {
			return nil, false, err
		}
		path, err := sockpath.SocketPath(pid)
		if err != nil {
			return nil, false, err
		}
		c.logger.Debug("using daemon", logging.Int(logging.FieldPID, pid))
		return ipc.NewClient(path), false, nil
	}

	pid, err := daemonctl.Launch(ctx, daemonctl.LaunchOptions{
		ConfigPath:   c.configPath,
		ReadyTimeout: cfg.ReadyTimeout(),
	})
	if err != nil {
		return nil, false, err
	}
	path, err := sockpath.SocketPath(pid)
	if err != nil {
		return nil, false, err
	}
	c.logger.Debug("launched daemon", logging.Int(logging.FieldPID, pid))
	return ipc.NewClient(path), true, nil
}

// withDaemon runs fn against the addressed daemon. A daemon launched for
// this invocation is told to exit when fn fails, so failed first commands
// do not leave idle daemons behind.
func (c *commandContext) withDaemon(cmd *cobra.Command, fn func(context.Context, *ipc.Client) (json.RawMessage, error)) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, launched, err := c.daemonClient(ctx, cfg)
	if err != nil {
		return err
	}
	result, err := fn(ctx, client)
	if err != nil {
		if launched {
			c.abandon(client)
		}
		return err
	}
	return render(cmd.OutOrStdout(), c.outputFormat(cmd, cfg), c.quiet, result)
}

func (c *commandContext) abandon(client *ipc.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), abandonTimeout)
	defer cancel()
	if _, err := client.Send(ctx, "exit", nil); err != nil && !errors.Is(err, nopgerr.ErrTransportUnreachable) {
		c.logger.Debug("exit launched daemon", logging.Error(err))
	}
}
