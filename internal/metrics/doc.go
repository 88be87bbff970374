// Package metrics records daemon activity (RPC traffic, listener spawns, store
// events) and exposes it through a Prometheus registry served on the control
// socket at GET /metrics.
package metrics
