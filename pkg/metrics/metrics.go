// Package metrics defines the Prometheus collectors for the extraction
// pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	FilesProcessedTotal      *prometheus.CounterVec
	FileParseDuration        *prometheus.HistogramVec
	FilesInFlight            prometheus.Gauge
	SectionDecodeTotal       *prometheus.CounterVec
	TruncatedStreamsTotal    prometheus.Counter
	PassagesTotal            prometheus.Counter
	QuestionsTotal           *prometheus.CounterVec
	ClassificationTotal      *prometheus.CounterVec
	ClassificationConfidence prometheus.Histogram
	SinkWritesTotal          *prometheus.CounterVec
	EventsPublishedTotal     *prometheus.CounterVec
	CircuitBreakerState      *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		FilesProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "examparse_files_processed_total",
				Help: "Files processed by manifest status (success, skip, error) and format.",
			},
			[]string{"status", "format"},
		),
		FileParseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "examparse_file_parse_duration_seconds",
				Help:    "Wall time spent on one file from bytes to persisted records.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"format"},
		),
		FilesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "examparse_files_in_flight",
				Help: "Number of files currently being processed.",
			},
		),
		SectionDecodeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "examparse_section_decode_total",
				Help: "Section streams decoded by winning strategy (raw-inflate, zlib-inflate, raw).",
			},
			[]string{"strategy"},
		),
		TruncatedStreamsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "examparse_truncated_streams_total",
				Help: "Section streams whose record sequence ended mid-record.",
			},
		),
		PassagesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "examparse_passages_total",
				Help: "Passage blocks produced by the segmenter.",
			},
		),
		QuestionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "examparse_questions_total",
				Help: "Question blocks produced, by category.",
			},
			[]string{"category"},
		),
		ClassificationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "examparse_classification_total",
				Help: "Question type classifications by code.",
			},
			[]string{"code"},
		),
		ClassificationConfidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "examparse_classification_confidence",
				Help:    "Distribution of classifier confidence values.",
				Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			},
		),
		SinkWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "examparse_sink_writes_total",
				Help: "Per-file sink transactions by driver and outcome (committed, rolled_back).",
			},
			[]string{"driver", "outcome"},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "examparse_events_published_total",
				Help: "Processed-file events flushed to Kafka by status.",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "examparse_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.FilesProcessedTotal,
		m.FileParseDuration,
		m.FilesInFlight,
		m.SectionDecodeTotal,
		m.TruncatedStreamsTotal,
		m.PassagesTotal,
		m.QuestionsTotal,
		m.ClassificationTotal,
		m.ClassificationConfidence,
		m.SinkWritesTotal,
		m.EventsPublishedTotal,
		m.CircuitBreakerState,
	)

	return m
}

// NewUnregistered returns collectors bound to a throwaway registry, for
// one-shot commands and tests.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
