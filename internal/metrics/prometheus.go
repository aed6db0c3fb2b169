package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the annotation service
type Metrics struct {
	// Capture metrics
	RecordingsStarted   prometheus.Counter
	RecordingsCompleted prometheus.Counter
	RecordingDuration   prometheus.Histogram
	RecordingSize       prometheus.Histogram
	CaptureErrors       prometheus.Counter

	// Annotation metrics
	AnnotationsSaved   prometheus.Counter
	AnnotationsDeleted prometheus.Counter
	AnnotationCount    prometheus.Gauge
	CorruptRecoveries  prometheus.Counter

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Capture metrics
		RecordingsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "annotation_recordings_started_total",
			Help: "Total number of recordings started",
		}),
		RecordingsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "annotation_recordings_completed_total",
			Help: "Total number of recordings finalized into a blob",
		}),
		RecordingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "annotation_recording_duration_seconds",
			Help:    "Wall-clock duration of finalized recordings",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),
		RecordingSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "annotation_recording_size_bytes",
			Help:    "Size of finalized recording blobs in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		CaptureErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "annotation_capture_errors_total",
			Help: "Total number of failed recording starts",
		}),

		// Annotation metrics
		AnnotationsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "annotation_records_saved_total",
			Help: "Total number of annotation records created or updated",
		}),
		AnnotationsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "annotation_records_deleted_total",
			Help: "Total number of annotation records deleted",
		}),
		AnnotationCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "annotation_records",
			Help: "Current number of stored annotation records",
		}),
		CorruptRecoveries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "annotation_store_corrupt_recoveries_total",
			Help: "Total number of times a corrupt store payload was replaced by an empty list",
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "annotation_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "annotation_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "annotation_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "annotation_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		TranscriptionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "annotation_transcription_retries_total",
			Help: "Total number of transcription request retries",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "annotation_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "annotation_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "annotation_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordRecordingStarted increments the recordings started counter
func (m *Metrics) RecordRecordingStarted() {
	m.RecordingsStarted.Inc()
}

// RecordRecordingCompleted records a finalized recording
func (m *Metrics) RecordRecordingCompleted(durationSeconds float64, sizeBytes int) {
	m.RecordingsCompleted.Inc()
	m.RecordingDuration.Observe(durationSeconds)
	m.RecordingSize.Observe(float64(sizeBytes))
}

// RecordCaptureError increments the failed recording starts counter
func (m *Metrics) RecordCaptureError() {
	m.CaptureErrors.Inc()
}

// RecordAnnotationSaved increments the saved counter
func (m *Metrics) RecordAnnotationSaved() {
	m.AnnotationsSaved.Inc()
}

// RecordAnnotationDeleted increments the deleted counter
func (m *Metrics) RecordAnnotationDeleted() {
	m.AnnotationsDeleted.Inc()
}

// SetAnnotationCount sets the current number of stored records
func (m *Metrics) SetAnnotationCount(count int) {
	m.AnnotationCount.Set(float64(count))
}

// RecordCorruptRecovery increments the corrupt store recovery counter
func (m *Metrics) RecordCorruptRecovery() {
	m.CorruptRecoveries.Inc()
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	m.TranscriptionRetries.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
