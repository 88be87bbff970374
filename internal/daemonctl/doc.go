// Package daemonctl starts, probes, and stops nopg daemons from the client
// side.
//
// Launch spawns `nopg daemon` in a new session and waits, for a bounded time,
// for the child to write "ready <pid>" to the pipe it inherits as fd 3. The
// daemon calls NotifyReady once its socket is bound. Probe distinguishes a
// live daemon from a stale socket using the flock the daemon holds on
// <pid>.lock.
package daemonctl
