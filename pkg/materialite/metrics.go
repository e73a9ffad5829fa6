package materialite

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	commits        prometheus.Counter
	rollbacks      prometheus.Counter
	pulls          prometheus.Counter
	version        prometheus.Gauge
	commitDuration prometheus.Histogram
}

// newMetrics creates the coordinator metrics. A nil registerer leaves them unregistered.
func newMetrics(reg prometheus.Registerer, name string) *metrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"coordinator": name}
	return &metrics{
		commits: f.NewCounter(prometheus.CounterOpts{
			Namespace:   "materialite",
			Name:        "commits_total",
			Help:        "Number of committed transactions.",
			ConstLabels: labels,
		}),
		rollbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace:   "materialite",
			Name:        "rollbacks_total",
			Help:        "Number of rolled back transactions.",
			ConstLabels: labels,
		}),
		pulls: f.NewCounter(prometheus.CounterOpts{
			Namespace:   "materialite",
			Name:        "pulls_total",
			Help:        "Number of pull requests issued by views.",
			ConstLabels: labels,
		}),
		version: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   "materialite",
			Name:        "version",
			Help:        "Last committed version.",
			ConstLabels: labels,
		}),
		commitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "materialite",
			Name:        "commit_duration_seconds",
			Help:        "Time spent propagating a commit through the graph.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
	}
}
