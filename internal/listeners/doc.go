// Package listeners forwards store events to external commands.
//
// A Registry attaches registrations to a store session and, for every
// delivered event, submits a Job to a Spawner. The Spawner runs jobs on a
// fixed worker pool; Submit blocks while its queue is full, which slows the
// store's event poller instead of forking without bound. Registrations are
// addressed outside the daemon by the "<pid>@<id>" token of their ID.
package listeners
