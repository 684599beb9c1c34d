package cache

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts cache traffic per keyspace.
type Metrics struct {
	hits       *prometheus.CounterVec
	misses     *prometheus.CounterVec
	loads      *prometheus.CounterVec
	loadErrors *prometheus.CounterVec
	evictions  *prometheus.CounterVec
}

// NewMetrics registers the cache counters with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	newVec := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ontology",
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, []string{"keyspace"})
	}
	m := &Metrics{
		hits:       newVec("hits_total", "Lookups answered from the cache."),
		misses:     newVec("misses_total", "Lookups that had to wait for a load."),
		loads:      newVec("loads_total", "Backing-store loads executed."),
		loadErrors: newVec("load_errors_total", "Backing-store loads that failed."),
		evictions:  newVec("invalidations_total", "Entries dropped by invalidation."),
	}
	if reg != nil {
		reg.MustRegister(m.hits, m.misses, m.loads, m.loadErrors, m.evictions)
	}
	return m
}
