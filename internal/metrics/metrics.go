// Package metrics exposes routing and registry metrics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pleiades-agents/pleiades/internal/event"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "pleiades"

// Selection outcomes.
const (
	OutcomeExplicit  = "explicit"
	OutcomeScored    = "scored"
	OutcomeAmbiguous = "ambiguous"
)

// Collector turns bus events into Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	selectionsTotal *prometheus.CounterVec
	plansTotal      *prometheus.CounterVec
	reloadsTotal    *prometheus.CounterVec
	reloadDuration  prometheus.Histogram
	registryAgents  prometheus.Gauge
}

// NewCollector creates a collector with its own Prometheus registry, so several
// collectors can coexist in one process.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{registry: reg}

	c.selectionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Total number of routing decisions",
		},
		[]string{"agent", "outcome"},
	)

	c.plansTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_total",
			Help:      "Total number of plans built",
		},
		[]string{"agent"},
	)

	c.reloadsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_reloads_total",
			Help:      "Total number of registry loads",
		},
		[]string{"result", "trigger"},
	)

	c.reloadDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "registry_load_duration_seconds",
			Help:      "Time to read, validate and index the agent definitions",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	c.registryAgents = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_agents",
			Help:      "Number of agents in the snapshot being served",
		},
	)

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Attach subscribes the collector to bus. The returned function detaches it.
func (c *Collector) Attach(bus *event.Bus) func() {
	return bus.SubscribeAll(c.Observe)
}

// Observe records one event.
func (c *Collector) Observe(e event.Event) {
	switch data := e.Data.(type) {
	case event.RouteSelectedData:
		outcome := OutcomeScored
		if data.Explicit {
			outcome = OutcomeExplicit
		}
		c.selectionsTotal.WithLabelValues(data.Agent, outcome).Inc()
	case event.RouteAmbiguousData:
		c.selectionsTotal.WithLabelValues("", OutcomeAmbiguous).Inc()
	case event.PlanCreatedData:
		c.plansTotal.WithLabelValues(data.Agent).Inc()
	case event.RegistryLoadedData:
		c.reloadsTotal.WithLabelValues("success", data.Trigger).Inc()
		c.reloadDuration.Observe(data.Duration.Seconds())
		c.registryAgents.Set(float64(data.Agents))
	case event.RegistryReloadFailedData:
		c.reloadsTotal.WithLabelValues("failure", data.Trigger).Inc()
	}
}

// Registry returns the Prometheus registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
