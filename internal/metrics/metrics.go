package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rigctl",
			Subsystem: "setup",
			Name:      "status_transitions_total",
			Help:      "Number of committed status transitions per setup.",
		}, []string{"setup", "from", "to"},
	)
	invalidTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rigctl",
			Subsystem: "setup",
			Name:      "invalid_transitions_total",
			Help:      "Number of rejected status transition requests.",
		}, []string{"setup"},
	)
	heartbeats = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rigctl",
			Subsystem: "setup",
			Name:      "heartbeats_total",
			Help:      "Number of accepted heartbeats per setup.",
		}, []string{"setup"},
	)
	staleHeartbeats = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rigctl",
			Subsystem: "setup",
			Name:      "stale_heartbeats_total",
			Help:      "Number of heartbeats dropped for carrying an older ping time.",
		}, []string{"setup"},
	)
	currentStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rigctl",
			Subsystem: "setup",
			Name:      "current_status",
			Help:      "Current status of setups (1 = active status, 0 = inactive).",
		}, []string{"setup", "status"},
	)
	activityQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rigctl",
			Subsystem: "activity",
			Name:      "query_duration_seconds",
			Help:      "Observed duration of activity snapshot queries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"window"},
	)
	activityEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rigctl",
			Subsystem: "activity",
			Name:      "events_returned_total",
			Help:      "Number of behavior events returned in snapshots, per type.",
		}, []string{"type"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{statusTransitions, invalidTransitions, heartbeats, staleHeartbeats, currentStatus, activityQueryDuration, activityEvents}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func RecordTransition(setup, from, to string) {
	if regOK.Load() {
		statusTransitions.WithLabelValues(setup, from, to).Inc()
	}
}

func IncInvalidTransition(setup string) {
	if regOK.Load() {
		invalidTransitions.WithLabelValues(setup).Inc()
	}
}

func IncHeartbeat(setup string) {
	if regOK.Load() {
		heartbeats.WithLabelValues(setup).Inc()
	}
}

func IncStaleHeartbeat(setup string) {
	if regOK.Load() {
		staleHeartbeats.WithLabelValues(setup).Inc()
	}
}

func SetCurrentStatus(setup, status string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentStatus.WithLabelValues(setup, status).Set(value)
	}
}

func ObserveActivityQuery(window string, seconds float64) {
	if regOK.Load() {
		activityQueryDuration.WithLabelValues(window).Observe(seconds)
	}
}

func AddActivityEvents(eventType string, n int) {
	if regOK.Load() {
		activityEvents.WithLabelValues(eventType).Add(float64(n))
	}
}
