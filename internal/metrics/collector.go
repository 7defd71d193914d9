// Package metrics exposes relay counters and stage latencies in Prometheus
// format. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Event outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Collector owns a private registry so tests and multiple hosts never clash
// on the global one.
type Collector struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	stages   *prometheus.HistogramVec
	requests *prometheus.CounterVec
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linerelay_events_total",
			Help: "Webhook events by message kind and outcome.",
		}, []string{"kind", "outcome"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linerelay_stage_duration_seconds",
			Help:    "Latency of each processing stage.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linerelay_webhook_requests_total",
			Help: "Webhook invocations by HTTP status code.",
		}, []string{"code"}),
	}
	reg.MustRegister(c.events, c.stages, c.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Event counts one event with its kind (text, image, other) and outcome.
func (c *Collector) Event(kind, outcome string) {
	if c == nil {
		return
	}
	c.events.WithLabelValues(kind, outcome).Inc()
}

// EventCount returns the counter behind Event for kind and outcome. A nil
// Collector returns a detached counter that stays at zero.
func (c *Collector) EventCount(kind, outcome string) prometheus.Counter {
	if c == nil {
		return detached()
	}
	return c.events.WithLabelValues(kind, outcome)
}

// RequestCount returns the counter behind Request for code.
func (c *Collector) RequestCount(code string) prometheus.Counter {
	if c == nil {
		return detached()
	}
	return c.requests.WithLabelValues(code)
}

func detached() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: "linerelay_detached_total", Help: "Unregistered."})
}

// ObserveStage records how long a stage took.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.stages.WithLabelValues(stage).Observe(d.Seconds())
}

// Request counts one webhook invocation by status code.
func (c *Collector) Request(code string) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(code).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
