package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nopg/internal/logs"
	"nopg/internal/nopgerr"
	"nopg/internal/sockpath"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print a daemon's log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(ctx.pids) == 0 {
				return nopgerr.Invalid("logs requires a daemon pid")
			}
			pid := ctx.pids[0]
			path, err := sockpath.LogPath(pid)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("no log for daemon %d: %w", pid, err)
			}

			out := cmd.OutOrStdout()
			tail, offset, err := logs.Tail(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}

			socket, _ := sockpath.SocketPath(pid)
			rctx := cmd.Context()
			if rctx == nil {
				rctx = context.Background()
			}
			err = logs.Follow(rctx, path, out, logs.FollowOptions{
				Offset: offset,
				Done: func() bool {
					_, err := os.Stat(socket)
					return err != nil
				},
			})
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until the daemon exits")
	return cmd
}
