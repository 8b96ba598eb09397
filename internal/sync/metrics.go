package sync

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	drainsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_drains_total",
			Help: "Queue drains by result",
		},
		[]string{"result"},
	)
	itemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_items_total",
			Help: "Queue items processed by outcome",
		},
		[]string{"outcome"},
	)
	drainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_drain_duration_seconds",
			Help:    "Duration of queue drains that processed at least one item",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(drainsTotal)
	prometheus.MustRegister(itemsTotal)
	prometheus.MustRegister(drainDuration)
}
