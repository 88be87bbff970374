package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nopg"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry      *prom.Registry
	rpcRequests   *prom.CounterVec
	rpcDuration   *prom.HistogramVec
	spawns        *prom.CounterVec
	storeEvents   *prom.CounterVec
	queueDepth    prom.Gauge
	registrations prom.Gauge
}

// NewPrometheusRecorder constructs and registers daemon metrics on reg, or on
// a fresh registry with Go and process collectors when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
		reg.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	}
	pr := &PrometheusRecorder{
		registry: reg,
		rpcRequests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "RPC requests served by command and result",
		}, []string{"command", "result"}),
		rpcDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "RPC handling latency by command",
			Buckets:   prom.DefBuckets,
		}, []string{"command"}),
		spawns: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "listener_spawns_total",
			Help:      "Listener subprocesses run by exit result",
		}, []string{"result"}),
		storeEvents: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "store_events_total",
			Help:      "Store events delivered to listeners by event name",
		}, []string{"event"}),
		queueDepth: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "listener_queue_depth",
			Help:      "Spawn jobs waiting for a listener worker",
		}),
		registrations: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "listeners_registered",
			Help:      "Active listener registrations",
		}),
	}
	reg.MustRegister(pr.rpcRequests, pr.rpcDuration, pr.spawns, pr.storeEvents, pr.queueDepth, pr.registrations)
	return pr
}

// Handler serves the recorder's registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry exposes the underlying registry.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.registry
}

func (p *PrometheusRecorder) ObserveRPC(command string, result ResultLabel, d time.Duration) {
	if p == nil {
		return
	}
	p.rpcRequests.WithLabelValues(command, string(result)).Inc()
	p.rpcDuration.WithLabelValues(command).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncListenerSpawn(result ResultLabel) {
	if p == nil {
		return
	}
	p.spawns.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncStoreEvent(event string) {
	if p == nil {
		return
	}
	p.storeEvents.WithLabelValues(event).Inc()
}

func (p *PrometheusRecorder) SetListenerQueueDepth(n int) {
	if p == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}

func (p *PrometheusRecorder) SetListenersRegistered(n int) {
	if p == nil {
		return
	}
	p.registrations.Set(float64(n))
}
