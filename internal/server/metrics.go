package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weaver_generations_total",
			Help: "Total number of generation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weaver_generation_duration_seconds",
			Help:    "Duration of generation attempts by outcome.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
		},
		[]string{"outcome"},
	)

	staleResultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weaver_stale_results_total",
		Help: "Total number of results dropped because a newer request was dispatched.",
	})

	validationRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weaver_validation_rejections_total",
			Help: "Total number of prompts blocked by local validation, by policy.",
		},
		[]string{"policy"},
	)

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "weaver_ws_sessions_active",
		Help: "Number of open live sessions.",
	})
)

// ObserveOutcome records one Action call. It matches the signature of
// weaver.WithOutcomeObserver.
func ObserveOutcome(outcome string, d time.Duration) {
	generationsTotal.WithLabelValues(outcome).Inc()
	generationDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
