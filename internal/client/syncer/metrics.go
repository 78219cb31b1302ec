package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	replayedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripkeeper",
			Name:      "sync_replayed_total",
			Help:      "Queued changes replayed against the remote API, by outcome.",
		},
		[]string{"outcome"},
	)

	drainPasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tripkeeper",
			Name:      "sync_drain_passes_total",
			Help:      "Completed drain passes over the sync queue.",
		},
	)
)
