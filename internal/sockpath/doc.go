// Package sockpath maps daemon process ids to their control socket and
// sibling files under the per-user application directory.
//
// Callers never build these paths by hand: the pid alone identifies a daemon,
// and every file that belongs to it lives at <appDir>/<pid>.<suffix>.
package sockpath
