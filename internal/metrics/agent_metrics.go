package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Investigation lifecycle metrics
	InvestigationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sleuth_investigations_active",
			Help: "Number of investigations currently running",
		},
	)

	InvestigationsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sleuth_investigations_started_total",
			Help: "Total number of investigations started",
		},
	)

	InvestigationsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sleuth_investigations_completed_total",
			Help: "Total number of investigations completed by outcome",
		},
		[]string{"outcome"}, // final, limit, fault
	)

	InvestigationDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sleuth_investigation_duration_seconds",
			Help:    "Wall-clock duration of whole investigations",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	// Command execution metrics
	StepsExecutedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sleuth_steps_executed_total",
			Help: "Total number of executed investigation steps",
		},
	)

	CommandsBlockedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sleuth_commands_blocked_total",
			Help: "Total number of commands rejected by the safety gate",
		},
	)

	CommandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sleuth_command_duration_seconds",
			Help:    "Duration of executed shell commands",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"status"}, // ok, failed
	)

	// Reasoning engine metrics
	ProviderRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sleuth_provider_request_duration_seconds",
			Help:    "Duration of reasoning engine requests by provider",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	ProviderFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sleuth_provider_failures_total",
			Help: "Total number of failed reasoning engine requests by provider",
		},
		[]string{"provider"},
	)
)

// Investigation outcomes used as the completed-total label.
const (
	OutcomeFinal = "final" // engine declared a root cause
	OutcomeLimit = "limit" // step budget exhausted or indecisive stop
	OutcomeFault = "fault" // terminated by a parse or transport fault
)

// RecordInvestigationStarted records the start of an investigation.
func RecordInvestigationStarted() {
	InvestigationsStartedTotal.Inc()
	InvestigationsActive.Inc()
}

// RecordInvestigationCompleted records the end of an investigation.
func RecordInvestigationCompleted(outcome string, duration time.Duration) {
	InvestigationsCompletedTotal.WithLabelValues(outcome).Inc()
	InvestigationsActive.Dec()
	InvestigationDurationSeconds.Observe(duration.Seconds())
}

// RecordStepExecuted records one executed investigation step.
func RecordStepExecuted() {
	StepsExecutedTotal.Inc()
}

// RecordCommandBlocked records a gate rejection.
func RecordCommandBlocked() {
	CommandsBlockedTotal.Inc()
}

// RecordCommandExecuted records a finished shell command.
func RecordCommandExecuted(duration time.Duration, exitCode int) {
	status := "ok"
	if exitCode != 0 {
		status = "failed"
	}
	CommandDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordProviderRequest records one reasoning engine round-trip.
func RecordProviderRequest(provider string, duration time.Duration, err error) {
	ProviderRequestDurationSeconds.WithLabelValues(provider).Observe(duration.Seconds())
	if err != nil {
		ProviderFailuresTotal.WithLabelValues(provider).Inc()
	}
}
