// Package main hosts the nopg CLI entrypoint and command graph.
//
// Every invocation addresses one session daemon by pid, or launches a new
// one when no pid is given, and issues a single RPC against it. Payload
// flags (--where-*, --set-*, --traits-*) are decoded before cobra parses the
// remaining arguments; when a command names a declared type the payload is
// decoded again against that type's schema. The hidden daemon subcommand is
// what the launcher re-executes.
package main
