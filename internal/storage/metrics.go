package storage

import (
	"net/http"

	"ekv/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// storageMetrics lives in a registry of its own so several servers can share a process.
type storageMetrics struct {
	registry *prometheus.Registry
	ops      *prometheus.CounterVec
	bytes    *prometheus.GaugeVec
	exported prometheus.Counter
}

func newStorageMetrics(server string) *storageMetrics {
	m := &storageMetrics{
		registry: prometheus.NewRegistry(),
		ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "ekv",
				Subsystem:   "storage",
				Name:        "ops_total",
				Help:        "Counter of executed kv operations.",
				ConstLabels: prometheus.Labels{"server": server},
			}, []string{"op"}),
		bytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   "ekv",
				Subsystem:   "storage",
				Name:        "block_bytes",
				Help:        "Bytes held by a block.",
				ConstLabels: prometheus.Labels{"server": server},
			}, []string{"block"}),
		exported: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "ekv",
				Subsystem:   "storage",
				Name:        "exported_keys_total",
				Help:        "Counter of keys moved to other chains.",
				ConstLabels: prometheus.Labels{"server": server},
			}),
	}
	m.registry.MustRegister(m.ops, m.bytes, m.exported)
	return m
}

func (m *storageMetrics) observe(id types.BlockID, op types.OpID, bytes int64) {
	m.ops.WithLabelValues(op.String()).Inc()
	if op.IsMutator() {
		m.bytes.WithLabelValues(id.String()).Set(float64(bytes))
	}
}

func (m *storageMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
