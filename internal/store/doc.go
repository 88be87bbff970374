// Package store is the document store a daemon session runs against.
//
// Backend opens a Session either inside a transaction (Start) or in
// autocommit mode (Connect). Documents are JSON objects grouped by declared
// type; every insert, update and delete is recorded by triggers in an events
// table, and Connect sessions poll that table to raise create, update, delete,
// "<Type>#<event>" and notification events for listeners, including changes
// committed by other processes. A session armed with a timeout rolls back and
// raises the timeout event when it expires.
//
// The SQLite implementation uses modernc.org/sqlite, so no cgo toolchain is
// required.
package store
