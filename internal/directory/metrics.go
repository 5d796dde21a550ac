package directory

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type directoryMetrics struct {
	registry   *prometheus.Registry
	rebalances *prometheus.CounterVec
	expired    prometheus.Counter
	epochs     prometheus.Counter
}

func newDirectoryMetrics(alloc *BlockAllocator) *directoryMetrics {
	m := &directoryMetrics{
		registry: prometheus.NewRegistry(),
		rebalances: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ekv",
				Subsystem: "directory",
				Name:      "rebalances_total",
				Help:      "Counter of finished slot range splits and merges.",
			}, []string{"kind"}),
		expired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ekv",
				Subsystem: "directory",
				Name:      "expired_files_total",
				Help:      "Counter of files dropped after their lease ran out.",
			}),
		epochs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ekv",
				Subsystem: "directory",
				Name:      "lease_epochs_total",
				Help:      "Counter of lease expiry passes.",
			}),
	}
	blocks := func(name, help string, fn func() int) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "ekv",
			Subsystem: "directory",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(fn()) })
	}
	m.registry.MustRegister(
		m.rebalances, m.expired, m.epochs,
		blocks("free_blocks", "Blocks ready to be allocated.", alloc.NumFree),
		blocks("allocated_blocks", "Blocks serving a file.", alloc.NumAllocated),
		blocks("total_blocks", "Blocks known to the allocator.", alloc.NumTotal),
	)
	return m
}

func (m *directoryMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
