package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "burnbin_paste_created_total",
		Help: "no. of pastes created",
	})
	ViewOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnbin_view_outcomes_total",
			Help: "no. of consume attempts by outcome (missing, expired, exhausted, ok)",
		},
		[]string{"outcome"},
	)
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burnbin_store_op_duration_seconds",
			Help:    "store round trip duration in seconds",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"backend", "op"},
	)
	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnbin_storage_errors_total",
			Help: "no. of failed store operations",
		},
		[]string{"op"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burnbin_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	StoreUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "burnbin_store_up",
		Help: "1 if the last store ping succeeded",
	})
)

// Init pre-registers the outcome series so dashboards see zeros before the
// first view.
func Init() {
	for _, o := range []string{"missing", "expired", "exhausted", "ok"} {
		ViewOutcomes.WithLabelValues(o)
	}
}
