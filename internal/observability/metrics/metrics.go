// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dictation"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram

	// gRPC stream metrics
	StreamsTotal   prometheus.Counter
	StreamsActive  prometheus.Gauge
	StreamsSuccess prometheus.Counter
	StreamsFailed  prometheus.Counter
	StreamDuration prometheus.Histogram

	// Audio metrics
	AudioBytesReceived   prometheus.Counter
	FramesReceived       prometheus.Counter
	FramesDropped        prometheus.Counter
	FrameBoundViolations prometheus.Counter

	// Transcript metrics
	Transcripts        *prometheus.CounterVec
	FirstUpdateLatency prometheus.Histogram
	DualViewLatency    *prometheus.HistogramVec

	// Degradation metrics
	Notices        *prometheus.CounterVec
	DeadlineMisses *prometheus.CounterVec
	EngineErrors   *prometheus.CounterVec
	CloudTrips     prometheus.Counter

	// Polish metrics
	PolishLatency   prometheus.Histogram
	PolishSLAMisses prometheus.Counter

	// Selection metrics
	SelectionsRequested prometheus.Counter
	SelectionsApplied   prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Backpressure metrics
	StreamLimitExceeded *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates all metrics on the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all metrics on reg. Tests pass a fresh registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of realtime sessions started",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of realtime sessions still running",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Lifetime of realtime sessions in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 900},
		}),

		StreamsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of gRPC streams started",
		}),
		StreamsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently active gRPC streams",
		}),
		StreamsSuccess: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_success_total",
			Help:      "Total number of successfully completed streams",
		}),
		StreamsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_failed_total",
			Help:      "Total number of failed streams",
		}),
		StreamDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of gRPC streams in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		AudioBytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total LINEAR16 audio bytes received from clients",
		}),
		FramesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total audio frames accepted into sessions",
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Total empty audio frames dropped",
		}),
		FrameBoundViolations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_bound_violations_total",
			Help:      "Frames whose duration fell outside the configured bounds",
		}),

		Transcripts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_total",
			Help:      "Transcript updates delivered, by source and primacy",
		}, []string{"source", "primary"}),
		FirstUpdateLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_update_latency_seconds",
			Help:      "Latency of the first transcript of a session",
			Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.6, 1, 2},
		}),
		DualViewLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dual_view_latency_seconds",
			Help:      "Latency of delivered sentence variants",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"variant", "source", "primary"}),

		Notices: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_total",
			Help:      "Session notices delivered, by level",
		}, []string{"level"}),
		DeadlineMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deadline_misses_total",
			Help:      "Local lane deadline misses, by phase",
		}, []string{"phase"}),
		EngineErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_errors_total",
			Help:      "Speech engine and polisher failures, by lane",
		}, []string{"lane"}),
		CloudTrips: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cloud_circuit_trips_total",
			Help:      "Transitions of the cloud circuit from enabled to disabled",
		}),

		PolishLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "polish_latency_seconds",
			Help:      "Time spent polishing one sentence",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}),
		PolishSLAMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polish_sla_misses_total",
			Help:      "Polished sentences delivered after the polish deadline",
		}),

		SelectionsRequested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_requested_total",
			Help:      "Sentence variant selections requested by users",
		}),
		SelectionsApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_applied_total",
			Help:      "Sentence variant selections applied",
		}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		StreamLimitExceeded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_limit_exceeded_total",
			Help:      "Total number of times stream limits were exceeded",
		}, []string{"limit_type"}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session whose update stream has closed.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordStreamStart records a new stream starting.
func (m *Metrics) RecordStreamStart() {
	m.StreamsTotal.Inc()
	m.StreamsActive.Inc()
}

// RecordStreamEnd records a stream ending.
func (m *Metrics) RecordStreamEnd(success bool, durationSeconds float64) {
	m.StreamsActive.Dec()
	m.StreamDuration.Observe(durationSeconds)
	if success {
		m.StreamsSuccess.Inc()
	} else {
		m.StreamsFailed.Inc()
	}
}

// RecordAudioReceived records raw audio bytes received from a client.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
}

// RecordFrame records a frame accepted into a session.
func (m *Metrics) RecordFrame(outOfBounds bool) {
	m.FramesReceived.Inc()
	if outOfBounds {
		m.FrameBoundViolations.Inc()
	}
}

// RecordFrameDropped records an empty frame that was discarded.
func (m *Metrics) RecordFrameDropped() {
	m.FramesDropped.Inc()
}

// RecordTranscript records a delivered transcript update.
func (m *Metrics) RecordTranscript(source string, primary bool) {
	m.Transcripts.WithLabelValues(source, strconv.FormatBool(primary)).Inc()
}

// RecordFirstUpdate records the latency of the first transcript of a session.
func (m *Metrics) RecordFirstUpdate(latencySeconds float64) {
	m.FirstUpdateLatency.Observe(latencySeconds)
}

// RecordDualViewLatency records the delivery latency of one sentence variant.
func (m *Metrics) RecordDualViewLatency(variant, source string, primary bool, latencySeconds float64) {
	m.DualViewLatency.WithLabelValues(variant, source, strconv.FormatBool(primary)).Observe(latencySeconds)
}

// RecordNotice records a delivered session notice.
func (m *Metrics) RecordNotice(level string) {
	m.Notices.WithLabelValues(level).Inc()
}

// RecordDeadlineMiss records a local lane deadline miss.
func (m *Metrics) RecordDeadlineMiss(phase string) {
	m.DeadlineMisses.WithLabelValues(phase).Inc()
}

// RecordEngineError records a failure in the local, cloud or polish lane.
func (m *Metrics) RecordEngineError(lane string) {
	m.EngineErrors.WithLabelValues(lane).Inc()
}

// RecordCloudTrip records the cloud circuit opening.
func (m *Metrics) RecordCloudTrip() {
	m.CloudTrips.Inc()
}

// RecordPolish records one completed polish call.
func (m *Metrics) RecordPolish(latencySeconds float64, withinSLA bool) {
	m.PolishLatency.Observe(latencySeconds)
	if !withinSLA {
		m.PolishSLAMisses.Inc()
	}
}

// RecordSelections records a selection command and how much of it applied.
func (m *Metrics) RecordSelections(requested, applied int) {
	m.SelectionsRequested.Add(float64(requested))
	m.SelectionsApplied.Add(float64(applied))
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordLimitExceeded records when a stream limit is exceeded.
func (m *Metrics) RecordLimitExceeded(limitType string) {
	m.StreamLimitExceeded.WithLabelValues(limitType).Inc()
}
