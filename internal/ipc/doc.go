// Package ipc carries nopg commands between the CLI and a daemon over
// HTTP/1.1 on a Unix domain socket.
//
// A request is POST /<command> with body {"content": args}. Success is 200
// with {"content": result}; failure is 500 with {"title", "content", "stack"}
// where content holds the nopgerr code so the client can rebuild the sentinel.
// The server never interprets content itself: it dispatches on the command
// name, enforces the body size ceiling by aborting the connection, and removes
// its socket file on Close. GET /metrics serves the daemon's Prometheus
// registry when one is configured.
package ipc
