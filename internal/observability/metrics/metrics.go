// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "transcript_reconciler"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Reconciliation pass metrics
	PassesTotal  *prometheus.CounterVec
	PassesFailed *prometheus.CounterVec
	PassDuration prometheus.Histogram

	// Transcript metrics
	SegmentsPersisted  prometheus.Counter
	RawSegmentsDropped prometheus.Counter

	// Quality gate metrics
	QualityGateFlags *prometheus.CounterVec

	// Eventing metrics
	NotificationsPublished prometheus.Counter
	NotificationErrors     prometheus.Counter
	StopEventsConsumed     prometheus.Counter
	StopEventsInvalid      prometheus.Counter
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PassesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Completed reconciliation passes by processing tier",
		}, []string{"tier"}),
		PassesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_failed_total",
			Help:      "Aborted reconciliation passes by failure reason",
		}, []string{"reason"}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of reconciliation passes in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		SegmentsPersisted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_persisted_total",
			Help:      "Final transcript segments written by completed passes",
		}),
		RawSegmentsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_segments_dropped_total",
			Help:      "Raw ASR segments dropped by the overlap merge for matching no diarization turn",
		}),
		QualityGateFlags: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quality_gate_flags_total",
			Help:      "Advisory hallucination flags by reason kind",
		}, []string{"reason"}),
		NotificationsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_published_total",
			Help:      "Transcripts-updated notifications published",
		}),
		NotificationErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_errors_total",
			Help:      "Failed transcripts-updated publishes",
		}),
		StopEventsConsumed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stop_events_consumed_total",
			Help:      "Recording-stopped events consumed from the broker",
		}),
		StopEventsInvalid: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stop_events_invalid_total",
			Help:      "Recording-stopped events rejected by validation",
		}),
	}
}
