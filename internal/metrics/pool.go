package metrics

import (
	"github.com/BaSui01/dryingassistant/internal/pool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RegisterPool exports the traffic counters of a buffer pool, labelled by
// name. stats is read at scrape time.
func RegisterPool(reg prometheus.Registerer, namespace, name string, stats func() pool.Stats) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"pool": name}

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "buffer_pool_gets_total",
		Help:        "Total number of buffers taken from the pool",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Gets) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "buffer_pool_allocations_total",
		Help:        "Total number of buffers allocated because the pool was empty",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().News) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "buffer_pool_hit_ratio",
		Help:        "Share of gets served without allocating",
		ConstLabels: labels,
	}, func() float64 { return stats().HitRate() })
}
