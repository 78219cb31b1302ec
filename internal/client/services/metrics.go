package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tripkeeper",
			Subsystem: "sync_queue",
			Name:      "depth",
			Help:      "Operations waiting in the sync queue.",
		},
	)

	queueRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tripkeeper",
			Subsystem: "sync_queue",
			Name:      "retries_total",
			Help:      "Retry count increments recorded by the synchronizer.",
		},
	)

	tilesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripkeeper",
			Subsystem: "tile_cache",
			Name:      "tiles_total",
			Help:      "Tiles handled by caching runs, by outcome.",
		},
		[]string{"result"},
	)

	tileRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tripkeeper",
			Subsystem: "tile_cache",
			Name:      "run_duration_seconds",
			Help:      "Duration of tile caching runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	freedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripkeeper",
			Subsystem: "storage",
			Name:      "freed_bytes_total",
			Help:      "Bytes released by cleanup, by operation.",
		},
		[]string{"op"},
	)
)
