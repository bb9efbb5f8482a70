// Package observability provides the Prometheus metrics registry for the
// recording pipeline.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline counters and histograms.
type Metrics struct {
	registry *prometheus.Registry

	FramesCaptured      prometheus.Counter
	OCRFailures         prometheus.Counter
	FramesDeduplicated  prometheus.Counter
	AudioChunksRecorded *prometheus.CounterVec
	Transcriptions      *prometheus.CounterVec
	TranscriptionErrors prometheus.Counter
	StoreInsertDuration *prometheus.HistogramVec
	ActiveAudioWorkers  prometheus.Gauge
}

// NewMetrics creates and registers the pipeline metrics.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		FramesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retrace_frames_captured_total",
			Help: "Screen frames captured and OCR processed",
		}),
		OCRFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retrace_ocr_failures_total",
			Help: "Frames dropped because OCR failed",
		}),
		FramesDeduplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retrace_frames_deduplicated_total",
			Help: "Frames with OCR tokens, none of them new against the previous frame",
		}),
		AudioChunksRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "retrace_audio_chunks_recorded_total",
			Help: "Audio chunks recorded to disk",
		}, []string{"device"}),
		Transcriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "retrace_transcriptions_total",
			Help: "Transcription results produced",
		}, []string{"engine"}),
		TranscriptionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "retrace_transcription_errors_total",
			Help: "Transcription attempts that returned an error",
		}),
		StoreInsertDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "retrace_store_insert_duration_seconds",
			Help:    "Latency of store insert operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		ActiveAudioWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "retrace_active_audio_workers",
			Help: "Per-device capture workers currently running",
		}),
	}

	collectors := []prometheus.Collector{
		m.FramesCaptured,
		m.OCRFailures,
		m.FramesDeduplicated,
		m.AudioChunksRecorded,
		m.Transcriptions,
		m.TranscriptionErrors,
		m.StoreInsertDuration,
		m.ActiveAudioWorkers,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
