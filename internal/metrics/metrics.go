// Package metrics exposes the Prometheus series the gateway records,
// grounded on the teacher's internal/metrics/metrics.go bucket and
// label choices, redrawn onto the series names this system's
// components actually emit.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// latencyBuckets covers sub-100ms stage latencies up through multi-second
// tail latencies, matching the teacher's histogram bucket spread.
var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

type Recorder struct {
	ASRLatency          prometheus.Histogram
	ASRAudioDuration     prometheus.Histogram
	LLMTimeToFirstToken prometheus.Histogram
	LLMTotalLatency     prometheus.Histogram
	TTSLatency          prometheus.Histogram
	TTSTextLength       prometheus.Histogram
	E2ELatency          prometheus.Histogram

	RequestsTotal    *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	WSConnections    prometheus.Counter
	ActiveStreams    prometheus.Gauge
}

// NewRecorder registers every series against the default Prometheus
// registry via promauto, matching the teacher's registration style.
func NewRecorder() *Recorder {
	return &Recorder{
		ASRLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "asr_latency_seconds",
			Help:    "Latency of ASR transcription requests.",
			Buckets: latencyBuckets,
		}),
		ASRAudioDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "asr_audio_duration_seconds",
			Help:    "Duration of audio submitted for transcription.",
			Buckets: latencyBuckets,
		}),
		LLMTimeToFirstToken: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "llm_ttft_seconds",
			Help:    "Time to first LLM token.",
			Buckets: latencyBuckets,
		}),
		LLMTotalLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "llm_total_seconds",
			Help:    "Total LLM completion latency.",
			Buckets: latencyBuckets,
		}),
		TTSLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tts_latency_seconds",
			Help:    "Latency of TTS synthesis requests.",
			Buckets: latencyBuckets,
		}),
		TTSTextLength: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tts_text_length_chars",
			Help:    "Character length of text submitted to TTS per sentence.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800},
		}),
		E2ELatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "e2e_latency_seconds",
			Help:    "End-to-end turn latency from final transcript to first audio chunk.",
			Buckets: latencyBuckets,
		}),
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total turns processed, by stage.",
		}, []string{"stage"}),
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total errors, by stage and error kind.",
		}, []string{"stage", "error_kind"}),
		WSConnections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ws_connections_total",
			Help: "Total WebSocket connections accepted.",
		}),
		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "active_streams",
			Help: "Currently active voice sessions.",
		}),
	}
}
