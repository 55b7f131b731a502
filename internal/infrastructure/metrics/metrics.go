// Package metrics exposes Prometheus collectors for the matching engine and
// implements the telemetry interfaces of the application layer.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alem-hub/study-match/internal/domain/matching"
)

const namespace = "study_match"

// ══════════════════════════════════════════════════════════════════════════════
// COLLECTORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// cyclesTotal counts cycle runs.
	// Labels: outcome (completed, skipped, aborted, pool_too_small)
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cycle",
		Name:      "runs_total",
		Help:      "Matching cycle runs by outcome",
	}, []string{"outcome"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "cycle",
		Name:      "duration_seconds",
		Help:      "Matching cycle wall time",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	})

	cyclePoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cycle",
		Name:      "pool_size",
		Help:      "Eligible users in the last cycle",
	})

	cycleSoftErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cycle",
		Name:      "soft_errors_total",
		Help:      "Per-pair failures that did not abort a cycle",
	})

	pairingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cycle",
		Name:      "pairings_total",
		Help:      "Pairings written by matching cycles",
	})

	pairingScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "cycle",
		Name:      "pairing_adjusted_score",
		Help:      "Adjusted compatibility score of created pairings",
		Buckets:   []float64{40, 50, 60, 70, 80, 90, 100, 115},
	})

	// conversationCallouts counts chat service calls.
	// Labels: status (success, error)
	conversationCallouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "conversation",
		Name:      "callouts_total",
		Help:      "Conversation service callouts by status",
	}, []string{"status"})

	statsRecomputedUsers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stats",
		Name:      "recomputed_users_total",
		Help:      "Users whose match stats were recomputed",
	})

	statsFailedUsers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stats",
		Name:      "failed_users_total",
		Help:      "Users whose match stats recompute failed",
	})

	statsDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "stats",
		Name:      "recompute_duration_seconds",
		Help:      "Match stats recompute wall time",
		Buckets:   prometheus.DefBuckets,
	})

	// eventsPublished counts bus events. Labels: event_type
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Events published on the bus",
	}, []string{"event_type"})

	// eventHandlers counts handler runs. Labels: event_type, status
	eventHandlers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "handled_total",
		Help:      "Event handler executions by status",
	}, []string{"event_type", "status"})

	eventHandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "handler_duration_seconds",
		Help:      "Event handler latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// jobRuns counts scheduler job executions. Labels: job, status
	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduled job executions by status",
	}, []string{"job", "status"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "Scheduled job wall time",
		Buckets:   []float64{0.1, 1, 5, 30, 60, 300, 900, 1800},
	}, []string{"job"})

	// httpRequests counts ops API requests. Labels: method, route, code
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code",
	}, []string{"method", "route", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORDER
// ══════════════════════════════════════════════════════════════════════════════

// Recorder writes to the package collectors. The zero value is ready to use.
type Recorder struct{}

// NewRecorder returns a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// ObserveCycle implements command.CycleMetrics. Pairings are counted in
// ObservePairing.
func (Recorder) ObserveCycle(outcome string, poolSize, _, errs int, duration time.Duration) {
	cyclesTotal.WithLabelValues(outcome).Inc()
	cycleDuration.Observe(duration.Seconds())
	cyclePoolSize.Set(float64(poolSize))
	if errs > 0 {
		cycleSoftErrors.Add(float64(errs))
	}
}

// ObservePairing implements command.CycleMetrics.
func (Recorder) ObservePairing(breakdown matching.ScoreBreakdown) {
	pairingsTotal.Inc()
	pairingScore.Observe(float64(breakdown.Adjusted))
}

// ObserveConversationCallout implements command.CycleMetrics.
func (Recorder) ObserveConversationCallout(success bool) {
	conversationCallouts.WithLabelValues(status(success)).Inc()
}

// ObserveStatsRecompute implements command.StatsMetrics.
func (Recorder) ObserveStatsRecompute(users, failed int, duration time.Duration) {
	statsRecomputedUsers.Add(float64(users - failed))
	statsFailedUsers.Add(float64(failed))
	statsDuration.Observe(duration.Seconds())
}

// ObserveEventPublished implements messaging.Observer.
func (Recorder) ObserveEventPublished(eventType string) {
	eventsPublished.WithLabelValues(eventType).Inc()
}

// ObserveEventHandled implements messaging.Observer.
func (Recorder) ObserveEventHandled(eventType string, duration time.Duration, success bool) {
	eventHandlers.WithLabelValues(eventType, status(success)).Inc()
	eventHandlerDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// ObserveJob records a scheduler job run.
func (Recorder) ObserveJob(job string, duration time.Duration, success bool) {
	jobRuns.WithLabelValues(job, status(success)).Inc()
	jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// ObserveHTTPRequest records an ops API request.
func (Recorder) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequests.WithLabelValues(method, route, statusCode(code)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func statusCode(code int) string {
	return strconv.Itoa(code)
}
