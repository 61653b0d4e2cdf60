// Package probe implements the named (name, value, timestamp) statistics
// sink referenced throughout spec.md §9 ("Probes and statistics"). Backed
// by github.com/prometheus/client_golang, following the
// prometheus.NewGaugeVec/describe-then-collect idiom used in
// pkg/exporter/exporter.go (runZeroInc-conniver) in the retrieval pack,
// generalized from fixed TCP-info fields to an open set of named probes
// registered lazily as blocks report them.
package probe

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is the capability every block uses to report a named sample
// (spec.md §9).
type Sink interface {
	Set(name string, labels prometheus.Labels, value float64)
	Inc(name string, labels prometheus.Labels)
}

// Registry is a lazily-populated set of prometheus gauges/counters keyed
// by probe name, registered on first use so blocks don't need to
// pre-declare every metric up front.
type Registry struct {
	mu        sync.Mutex
	namespace string
	registry  *prometheus.Registry
	gauges    map[string]*prometheus.GaugeVec
	counters  map[string]*prometheus.CounterVec
}

// NewRegistry builds a Registry wrapping a fresh prometheus.Registry.
func NewRegistry(namespace string) *Registry {
	return &Registry{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
		gauges:    make(map[string]*prometheus.GaugeVec),
		counters:  make(map[string]*prometheus.CounterVec),
	}
}

// Gatherer exposes the underlying prometheus.Registry for wiring into an
// HTTP /metrics handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.registry }

// Set reports a gauge sample for name, creating and registering the gauge
// vec on first use with whatever label keys this call supplies.
func (r *Registry) Set(name string, labels prometheus.Labels, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gauges[name]
	if !ok {
		g = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: r.namespace,
			Name:      name,
		}, labelNames(labels))
		r.registry.MustRegister(g)
		r.gauges[name] = g
	}
	g.With(labels).Set(value)
}

// Inc increments a named counter by one, creating it on first use.
func (r *Registry) Inc(name string, labels prometheus.Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[name]
	if !ok {
		c = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace,
			Name:      name,
		}, labelNames(labels))
		r.registry.MustRegister(c)
		r.counters[name] = c
	}
	c.With(labels).Inc()
}

func labelNames(labels prometheus.Labels) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	return names
}

// DamaFairnessRatio reports the per-category fair_share value computed by
// a DAMA allocation pass -- supplemented from original_source's dama probe
// registration (see SPEC_FULL.md §5), since spec.md itself only describes
// the probe sink's shape and not its concrete names.
func DamaFairnessRatio(s Sink, category string, fairShare float64) {
	s.Set("dama_fairness_ratio", prometheus.Labels{"category": category}, fairShare)
}
