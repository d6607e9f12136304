package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "homeclimate_"

	resultSuccess = "success"
	resultError   = "error"

	commandResultApplied = "applied"
	commandResultFailed  = "failed"
)

var (
	registerOnce sync.Once

	loopTicks   *prometheus.CounterVec
	loopLatency prometheus.Histogram

	detectorTransitions *prometheus.CounterVec
	eventsFinalized     *prometheus.CounterVec

	commandResults *prometheus.CounterVec

	learnerRuns    *prometheus.CounterVec
	learnerLatency *prometheus.HistogramVec

	analyticsRequests *prometheus.CounterVec

	alertsEmitted *prometheus.CounterVec
)

// Init registers the metric set once.
func Init() {
	registerOnce.Do(func() {
		loopTicks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "loop_ticks_total",
				Help: "Total control loop ticks by result",
			},
			[]string{"result"},
		)
		loopLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "loop_tick_latency_seconds",
				Help:    "Control loop tick latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)

		detectorTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "detector_transitions_total",
				Help: "Total detector state transitions by target state",
			},
			[]string{"state"},
		)
		eventsFinalized = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_finalized_total",
				Help: "Total finalized usage events by origin",
			},
			[]string{"origin"},
		)

		commandResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_results_total",
				Help: "Total actuator command results by status",
			},
			[]string{"status"},
		)

		learnerRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "learner_runs_total",
				Help: "Total threshold learner runs by result",
			},
			[]string{"result"},
		)
		learnerLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "learner_latency_seconds",
				Help:    "Threshold learner run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		analyticsRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "analytics_requests_total",
				Help: "Total analytics/prediction requests by result",
			},
			[]string{"result"},
		)

		alertsEmitted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_emitted_total",
				Help: "Total alerts emitted by severity",
			},
			[]string{"severity"},
		)

		prometheus.MustRegister(
			loopTicks,
			loopLatency,
			detectorTransitions,
			eventsFinalized,
			commandResults,
			learnerRuns,
			learnerLatency,
			analyticsRequests,
			alertsEmitted,
		)
	})
}

// ObserveLoopTick records one control loop tick.
func ObserveLoopTick(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if loopTicks != nil {
		loopTicks.WithLabelValues(result).Inc()
	}
	if loopLatency != nil {
		loopLatency.Observe(duration.Seconds())
	}
}

// IncDetectorTransition increments the transition counter.
func IncDetectorTransition(state string) {
	if state == "" {
		state = "unknown"
	}
	if detectorTransitions != nil {
		detectorTransitions.WithLabelValues(state).Inc()
	}
}

// IncEventFinalized increments the finalized event counter.
func IncEventFinalized(origin string) {
	if origin == "" {
		origin = "detector"
	}
	if eventsFinalized != nil {
		eventsFinalized.WithLabelValues(origin).Inc()
	}
}

// IncCommandResult increments command result counters.
func IncCommandResult(status string) {
	if status == "" {
		status = "unknown"
	}
	if commandResults != nil {
		commandResults.WithLabelValues(status).Inc()
	}
}

// ObserveLearnerRun records learner latency and result.
func ObserveLearnerRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if learnerRuns != nil {
		learnerRuns.WithLabelValues(result).Inc()
	}
	if learnerLatency != nil {
		learnerLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncAnalyticsRequest increments analytics request counters.
func IncAnalyticsRequest(result string) {
	if result == "" {
		result = resultSuccess
	}
	if analyticsRequests != nil {
		analyticsRequests.WithLabelValues(result).Inc()
	}
}

// IncAlertEmitted increments alert counters by severity.
func IncAlertEmitted(severity string) {
	if severity == "" {
		severity = "unknown"
	}
	if alertsEmitted != nil {
		alertsEmitted.WithLabelValues(severity).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	CommandResultApplied = commandResultApplied
	CommandResultFailed  = commandResultFailed
)
