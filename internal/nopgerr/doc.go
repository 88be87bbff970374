// Package nopgerr defines the error taxonomy shared by the daemon and the CLI.
//
// Every failure the daemon can surface is tagged with a sentinel carrying a
// stable code. The code travels in the RPC failure envelope so the client can
// rebuild an error that still satisfies errors.Is against the same sentinel.
package nopgerr
