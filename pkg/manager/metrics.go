package manager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	ranked    prometheus.Gauge
	scanned   prometheus.Gauge
	good      prometheus.Gauge
	dead      prometheus.Gauge
	rebuilds  *prometheus.CounterVec
	pruned    prometheus.Counter
	malformed prometheus.Counter
}

// newMetrics registers the pool collectors on reg. A nil reg leaves them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		ranked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "proxyrank",
			Subsystem: "pool",
			Name:      "ranked",
			Help:      "Proxies in the current working set.",
		}),
		scanned: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "proxyrank",
			Subsystem: "pool",
			Name:      "scanned",
			Help:      "Records scanned by the last successful rebuild.",
		}),
		good: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "proxyrank",
			Subsystem: "feedback",
			Name:      "good",
			Help:      "Proxies currently reported good.",
		}),
		dead: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "proxyrank",
			Subsystem: "feedback",
			Name:      "dead",
			Help:      "Proxies currently reported dead.",
		}),
		rebuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proxyrank",
			Name:      "rebuilds_total",
			Help:      "Pool rebuilds by result.",
		}, []string{"result"}),
		pruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "proxyrank",
			Name:      "pruned_total",
			Help:      "Records deleted by the pruner.",
		}),
		malformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "proxyrank",
			Name:      "malformed_records_total",
			Help:      "Records skipped during a rebuild because a counter was missing or invalid.",
		}),
	}
}

func (m *metrics) setFeedback(good, dead int) {
	m.good.Set(float64(good))
	m.dead.Set(float64(dead))
}
