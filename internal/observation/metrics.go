package observation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeObservations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fieldnotes_observations_active",
		Help: "Observations currently registered (pending included)",
	})

	createdTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldnotes_observations_created_total",
		Help: "Observations registered by path",
	}, []string{"path"})

	removedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldnotes_observations_removed_total",
		Help: "Observations removed by reason",
	}, []string{"reason"})

	liveMarkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fieldnotes_markers_live",
		Help: "Markers currently displayed",
	})

	renderFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldnotes_render_failures_total",
		Help: "Marker creations that failed",
	})

	gatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldnotes_gateway_calls_total",
		Help: "Persistence gateway calls by operation and result",
	}, []string{"op", "result"})

	sweepDeactivated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldnotes_sweep_deactivated_total",
		Help: "Records the gateway reported deactivated by expiration sweeps",
	})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fieldnotes_sweep_duration_seconds",
		Help:    "Expiration sweep duration",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})
)
