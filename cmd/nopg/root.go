package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"nopg/internal/cliargs"
	"nopg/internal/ipc"
	"nopg/internal/logging"
	"nopg/internal/nopgerr"
)

func newRootCommand(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "nopg [PID] COMMAND [ARGS] [FLAGS]",
		Short:         "Shared document store transactions across shell commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.initLogger(cmd); err != nil {
				return err
			}
			if cmd.Flags().Changed("format") {
				switch ctx.formatFlag {
				case formatTable, formatBatch, formatJSON, formatYAML:
				default:
					return nopgerr.Invalid("unknown output format %q", ctx.formatFlag)
				}
			}
			ctx.logger.Debug("arguments decoded",
				logging.Any("pids", ctx.pids),
				logging.Any("args", args),
				logging.Any("where", ctx.payload.Where),
				logging.Any("set", ctx.payload.Set),
				logging.Any("traits", ctx.payload.Traits),
			)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path")
	flags.StringVar(&ctx.pgFlag, "pg", "", "Store location for start/connect (alias --pgconfig)")
	flags.IntVar(&ctx.timeoutFlag, "timeout", 0, "Auto-rollback timeout in milliseconds")
	flags.StringVar(&ctx.arrayFSFlag, "array-fs", "", "Separator for array field values")
	flags.StringVar(&ctx.formatFlag, "format", formatTable, "Output format: table, batch, json or yaml")
	flags.BoolVarP(&ctx.verbose, "verbose", "v", false, "Verbose output")
	flags.BoolVarP(&ctx.quiet, "quiet", "q", false, "Omit headers")
	flags.BoolVarP(&ctx.batch, "batch", "b", false, "Tab separated output")
	rootCmd.SetGlobalNormalizationFunc(flagAliases)

	for _, cmd := range newSessionCommands(ctx) {
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(newKillCommand(ctx))
	rootCmd.AddCommand(newMetricsCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newDaemonRunCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

func flagAliases(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if name == "pgconfig" {
		name = "pg"
	}
	return pflag.NormalizedName(name)
}

// execute pulls the payload flags and daemon pid out of argv before cobra
// sees it; cobra cannot declare --where-KEY style flags.
func execute(runCtx context.Context, root *cobra.Command, ctx *commandContext, argv []string) error {
	decoded, err := cliargs.FlattenDecode(argv, nil, cliargs.DefaultFieldSeparator)
	if err != nil {
		return err
	}
	pids, rest := splitPIDs(root.PersistentFlags(), decoded.Rest)
	ctx.argv = argv
	ctx.payload = decoded
	ctx.pids = pids

	root.SetArgs(rest)
	return root.ExecuteContext(runCtx)
}

// reportError prints err as a single line, or the full remote error in
// verbose mode.
func reportError(w io.Writer, verbose bool, err error) {
	var remote *ipc.RemoteError
	if verbose && errors.As(err, &remote) {
		fmt.Fprintf(w, "Error: %s\n", remote.Detail())
		return
	}
	msg, _, _ := strings.Cut(err.Error(), "\n")
	fmt.Fprintf(w, "Error: %s\n", msg)
}
