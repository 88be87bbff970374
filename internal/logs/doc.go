// Package logs reads daemon log files for the CLI.
//
// Tail returns the last lines of a log with bounded memory; Follow streams
// lines appended afterwards until the daemon goes away or the context ends.
package logs
