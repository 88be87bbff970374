// Package session implements the daemon's single store session.
//
// A Manager moves Idle to Connected (connect) or InTransaction (start), and
// from either to Closed on commit, rollback, exit, or timeout. Commands run
// one at a time on the Manager's actor goroutine. Handlers exposes the
// commands as ipc handlers; results are published, which strips bookkeeping
// fields and lifts $content and $meta into the top level.
package session
