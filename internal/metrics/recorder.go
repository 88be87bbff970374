package metrics

import "time"

// ResultLabel enumerates outcome categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultError   ResultLabel = "error"
	ResultUnknown ResultLabel = "unknown_command"
)

// Recorder defines observability hooks for the daemon. Implementations may
// forward to Prometheus; NoopRecorder is used when metrics are not wired.
type Recorder interface {
	ObserveRPC(command string, result ResultLabel, d time.Duration)
	IncListenerSpawn(result ResultLabel)
	IncStoreEvent(event string)
	SetListenerQueueDepth(n int)
	SetListenersRegistered(n int)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveRPC(string, ResultLabel, time.Duration) {}
func (NoopRecorder) IncListenerSpawn(ResultLabel)                  {}
func (NoopRecorder) IncStoreEvent(string)                          {}
func (NoopRecorder) SetListenerQueueDepth(int)                     {}
func (NoopRecorder) SetListenersRegistered(int)                    {}
