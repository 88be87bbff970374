package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
)

func main() {
	ctx := newCommandContext()
	cmd := newRootCommand(ctx)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := execute(runCtx, cmd, ctx, os.Args[1:])
	stop()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			reportError(cmd.ErrOrStderr(), ctx.verbose, err)
		}
		os.Exit(1)
	}
}
