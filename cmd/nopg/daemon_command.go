package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nopg/internal/daemonctl"
	"nopg/internal/daemonrun"
	"nopg/internal/ipc"
	"nopg/internal/nopgerr"
	"nopg/internal/sockpath"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:    "daemon",
		Short:  "Run a nopg session daemon (internal)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg)
		},
	}
}

func newKillCommand(ctx *commandContext) *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Terminate daemons that no longer respond",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(ctx.pids) == 0 {
				return nopgerr.Invalid("kill requires a daemon pid")
			}
			out := cmd.OutOrStdout()
			for _, pid := range ctx.pids {
				forced, err := daemonctl.StopProcess(pid, grace)
				if err != nil {
					return err
				}
				if ctx.quiet {
					continue
				}
				if forced {
					fmt.Fprintf(out, "Daemon %d killed\n", pid)
				} else {
					fmt.Fprintf(out, "Daemon %d stopped\n", pid)
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 5*time.Second, "Wait this long after SIGTERM before SIGKILL")
	return cmd
}

func newMetricsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print a daemon's Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(ctx.pids) == 0 {
				return nopgerr.Invalid("metrics requires a daemon pid")
			}
			pid := ctx.pids[0]
			if err := daemonctl.Probe(pid); err != nil {
				return err
			}
			path, err := sockpath.SocketPath(pid)
			if err != nil {
				return err
			}
			rctx := cmd.Context()
			if rctx == nil {
				rctx = context.Background()
			}
			body, err := ipc.NewClient(path).Metrics(rctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), body)
			return err
		},
	}
}
