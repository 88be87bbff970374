package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func gathered(t *testing.T, reg *prom.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metric:
		for _, m := range family.GetMetric() {
			for _, pair := range m.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					continue metric
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prom.NewRegistry()
	rec := NewPrometheusRecorder(reg)
	rec.ObserveRPC("search", ResultSuccess, 5*time.Millisecond)
	rec.ObserveRPC("search", ResultSuccess, 5*time.Millisecond)
	rec.ObserveRPC("nope", ResultUnknown, time.Millisecond)
	rec.IncListenerSpawn(ResultError)
	rec.SetListenerQueueDepth(3)

	if got := gathered(t, reg, "nopg_rpc_requests_total", map[string]string{"command": "search", "result": "success"}); got != 2 {
		t.Fatalf("search success = %v", got)
	}
	if got := gathered(t, reg, "nopg_listener_spawns_total", map[string]string{"result": "error"}); got != 1 {
		t.Fatalf("spawn errors = %v", got)
	}
	if got := gathered(t, reg, "nopg_listener_queue_depth", nil); got != 3 {
		t.Fatalf("queue depth = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	rec := NewPrometheusRecorder(nil)
	rec.IncStoreEvent("create")

	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body := w.Body.String()
	if !strings.Contains(body, `nopg_store_events_total{event="create"} 1`) {
		t.Fatalf("missing store event counter in:\n%s", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Fatal("expected go collector metrics on default registry")
	}
}

func TestNoopRecorderSatisfiesInterface(t *testing.T) {
	var rec Recorder = NoopRecorder{}
	rec.ObserveRPC("x", ResultSuccess, 0)
	rec.SetListenersRegistered(1)
}
