package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"nopg/internal/cliargs"
	"nopg/internal/ipc"
	"nopg/internal/logging"
	"nopg/internal/nopgerr"
	"nopg/internal/session"
)

func newSessionCommands(ctx *commandContext) []*cobra.Command {
	cmds := []*cobra.Command{
		simpleCommand(ctx, "start", "Start a daemon and open a transaction", cobra.NoArgs),
		simpleCommand(ctx, "connect", "Start a daemon with a non-transactional session", cobra.NoArgs),
		simpleCommand(ctx, "commit", "Commit the transaction and close the daemon", cobra.NoArgs),
		simpleCommand(ctx, "rollback", "Roll back the transaction and close the daemon", cobra.NoArgs),
		simpleCommand(ctx, "exit", "Close the daemon without committing", cobra.NoArgs),
		simpleCommand(ctx, "status", "Show the daemon session state", cobra.NoArgs),
		simpleCommand(ctx, "types", "Search types", cobra.NoArgs),
		simpleCommand(ctx, "type", "Show a type", cobra.ExactArgs(1)),
		simpleCommand(ctx, "stop", "Remove an event listener", cobra.ExactArgs(1)),
	}
	for _, name := range []string{"count", "search", "update", "delete", "create"} {
		cmds = append(cmds, documentCommand(ctx, name))
	}
	cmds = append(cmds,
		listenCommand(ctx, "on", "Run a command on every matching store event"),
		listenCommand(ctx, "once", "Run a command on the next matching store event"),
		newDeclareCommand(ctx),
	)
	return cmds
}

func simpleCommand(ctx *commandContext, name, short string, args cobra.PositionalArgs) *cobra.Command {
	use := name
	switch name {
	case "type":
		use = "type TYPE"
	case "stop":
		use = "stop PID@ID"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, positional []string) error {
			return ctx.withDaemon(cmd, func(rctx context.Context, client *ipc.Client) (json.RawMessage, error) {
				return client.Send(rctx, name, ctx.sessionArgs(cmd, positional, nil))
			})
		},
	}
}

func documentCommand(ctx *commandContext, name string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " [TYPE]",
		Short: strings.ToUpper(name[:1]) + name[1:] + " documents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			return ctx.withDaemon(cmd, func(rctx context.Context, client *ipc.Client) (json.RawMessage, error) {
				td, err := ctx.describeType(rctx, client, positional)
				if err != nil {
					return nil, err
				}
				if err := ctx.decodeTyped(td); err != nil {
					return nil, err
				}
				return client.Send(rctx, name, ctx.sessionArgs(cmd, positional, td))
			})
		},
	}
}

func listenCommand(ctx *commandContext, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " EVENT COMMAND [ARGS...]",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, positional []string) error {
			return ctx.withDaemon(cmd, func(rctx context.Context, client *ipc.Client) (json.RawMessage, error) {
				return client.Send(rctx, name, session.Args{Positional: positional})
			})
		},
	}
}

func newDeclareCommand(ctx *commandContext) *cobra.Command {
	var schemaPath string
	cmd := &cobra.Command{
		Use:   "declare TYPE --schema FILE",
		Short: "Declare a type with a JSON or YAML schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			schema, err := readSchema(schemaPath)
			if err != nil {
				return err
			}
			return ctx.withDaemon(cmd, func(rctx context.Context, client *ipc.Client) (json.RawMessage, error) {
				args := ctx.sessionArgs(cmd, positional, nil)
				args.Schema = schema
				args.Meta, args.Set = args.Set, nil
				return client.Send(rctx, "declare", args)
			})
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "Schema file (JSON or YAML)")
	return cmd
}

func (c *commandContext) sessionArgs(cmd *cobra.Command, positional []string, td *cliargs.TypeDescriptor) session.Args {
	return session.Args{
		Positional: positional,
		Where:      cliargs.Unflatten(c.payload.Where, td),
		Set:        cliargs.Unflatten(c.payload.Set, td),
		Traits:     c.traits(cmd),
		PG:         c.pgFlag,
	}
}

// describeType fetches the descriptor for the TYPE argument. An undeclared
// type yields a bare descriptor so payload keys are still nested.
func (c *commandContext) describeType(ctx context.Context, client *ipc.Client, positional []string) (*cliargs.TypeDescriptor, error) {
	if len(positional) == 0 {
		return nil, nil
	}
	name := positional[0]
	var td cliargs.TypeDescriptor
	err := client.Call(ctx, "type", session.Args{Positional: []string{name}}, &td)
	switch {
	case errors.Is(err, nopgerr.ErrNotFound):
		c.logger.Debug("type not declared", logging.String("type", name))
		return &cliargs.TypeDescriptor{Name: name}, nil
	case err != nil:
		return nil, err
	}
	if td.Name == "" {
		td.Name = name
	}
	return &td, nil
}

// decodeTyped re-reads the payload flags with the schema of td.
func (c *commandContext) decodeTyped(td *cliargs.TypeDescriptor) error {
	if td == nil || len(td.Schema) == 0 {
		return nil
	}
	schema := cliargs.DeriveArgSchema(td)
	decoded, err := cliargs.FlattenDecode(c.argv, &schema, c.arrayFS(c.config))
	if err != nil {
		return err
	}
	c.payload = decoded
	c.logger.Debug("payload decoded with type schema",
		logging.String("type", td.Name),
		logging.Any("where", decoded.Where),
		logging.Any("set", decoded.Set),
	)
	return nil
}

// readSchema loads a schema document. YAML is a superset of JSON so one
// decoder serves both.
func readSchema(path string) (map[string]any, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nopgerr.Invalid("declare requires --schema FILE")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	var schema map[string]any
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, nopgerr.Wrap(nopgerr.ErrInvalidArguments, "parse schema "+path, err)
	}
	if schema == nil {
		return nil, nopgerr.Invalid("schema %s is empty", path)
	}
	return schema, nil
}
