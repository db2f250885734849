package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Signal ingestion metrics
	SignalsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_signals_processed_total",
			Help: "Total number of signals processed",
		},
		[]string{"status"}, // success, duplicate, invalid, error
	)

	SignalProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "signalwatch_signal_processing_duration_seconds",
			Help:    "Duration of signal processing",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Cohort metrics
	CohortsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signalwatch_cohorts_opened_total",
			Help: "Total number of tracking cohorts opened",
		},
	)

	// Alert metrics
	AlertsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_alerts_triggered_total",
			Help: "Total number of alerts triggered",
		},
		[]string{"severity"}, // HIGH, MEDIUM, WATCH
	)

	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_alerts_sent_total",
			Help: "Total number of alerts sent",
		},
		[]string{"status"}, // success, error
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_alerts_suppressed_total",
			Help: "Total number of alerts suppressed",
		},
		[]string{"reason"}, // duplicate_id, cooldown, value_ceiling
	)

	// Market value resolution metrics
	ValueResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_value_resolutions_total",
			Help: "Total number of market value resolutions by source",
		},
		[]string{"source"},
	)

	// Pricing API metrics
	PricingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_pricing_requests_total",
			Help: "Total number of pricing API requests",
		},
		[]string{"status"}, // success, error, empty
	)

	PricingRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "signalwatch_pricing_request_duration_seconds",
			Help:    "Duration of pricing API requests",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// Journal metrics
	JournalWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_journal_writes_total",
			Help: "Total number of journal writes",
		},
		[]string{"status"}, // success, error
	)

	JournalWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "signalwatch_journal_write_duration_seconds",
			Help:    "Duration of journal writes",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// Heat-list metrics
	HeatlistReports = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signalwatch_heatlist_reports_total",
			Help: "Total number of heat-list reports observed",
		},
	)

	// System health
	HealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalwatch_health_checks_total",
			Help: "Total number of health check requests",
		},
		[]string{"status"}, // healthy/unhealthy
	)
)

// RecordSignalProcessing records signal ingestion metrics
func RecordSignalProcessing(duration time.Duration, status string) {
	SignalsProcessed.WithLabelValues(status).Inc()
	SignalProcessingDuration.Observe(duration.Seconds())
}

// RecordAlertTriggered records an alert decision by severity
func RecordAlertTriggered(severity string) {
	AlertsTriggered.WithLabelValues(severity).Inc()
}

// RecordAlertSent records the outcome of an alert send
func RecordAlertSent(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	AlertsSent.WithLabelValues(status).Inc()
}

// RecordSuppression records a suppressed alert by reason
func RecordSuppression(reason string) {
	AlertsSuppressed.WithLabelValues(reason).Inc()
}

// RecordValueResolution records which source resolved a market value
func RecordValueResolution(source string) {
	ValueResolutions.WithLabelValues(source).Inc()
}

// RecordPricingRequest records pricing API request metrics
func RecordPricingRequest(duration time.Duration, status string) {
	PricingRequests.WithLabelValues(status).Inc()
	PricingRequestDuration.Observe(duration.Seconds())
}

// RecordJournalWrite records journal persistence metrics
func RecordJournalWrite(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	JournalWrites.WithLabelValues(status).Inc()
	JournalWriteDuration.Observe(duration.Seconds())
}

// RecordHealthCheck records health check status
func RecordHealthCheck(healthy bool) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	HealthChecks.WithLabelValues(status).Inc()
}
