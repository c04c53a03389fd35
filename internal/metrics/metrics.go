package metrics

import (
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/safedrive/drowsiness-monitor/pkg/types"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame loop counters
	FramesRead      atomic.Uint64
	FramesProcessed atomic.Uint64
	FrameErrors     atomic.Uint64
	FacesDetected   atomic.Uint64

	// Classification counters
	AlertReadings  atomic.Uint64
	DrowsyReadings atomic.Uint64

	// Notification outcomes
	NotifySent    atomic.Uint64
	NotifyFailed  atomic.Uint64
	NotifySkipped atomic.Uint64

	// Latency tracking
	FrameLatencyMs   atomic.Uint64 // Capture-to-now latency of the last frame
	ProcessLatencyMs atomic.Uint64 // Processing time of the last frame

	lastEAR atomic.Uint64 // math.Float64bits of the last averaged EAR

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

type gauge struct {
	name  string
	help  string
	value func() float64
}

func counter(v *atomic.Uint64) func() float64 {
	return func() float64 { return float64(v.Load()) }
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	gauges := []gauge{
		{"drowsiness_frames_read_total", "Total frames read from the video source", counter(&m.FramesRead)},
		{"drowsiness_frames_processed_total", "Total frames fully processed", counter(&m.FramesProcessed)},
		{"drowsiness_frame_errors_total", "Total frames skipped because of a detection or geometry error", counter(&m.FrameErrors)},
		{"drowsiness_faces_detected_total", "Total faces detected", counter(&m.FacesDetected)},
		{"drowsiness_alert_readings_total", "Total faces classified Alert", counter(&m.AlertReadings)},
		{"drowsiness_drowsy_readings_total", "Total faces classified Drowsy", counter(&m.DrowsyReadings)},
		{"drowsiness_notify_sent_total", "Total state notifications delivered", counter(&m.NotifySent)},
		{"drowsiness_notify_failed_total", "Total state notifications that failed", counter(&m.NotifyFailed)},
		{"drowsiness_notify_skipped_total", "Total state notifications suppressed by throttling", counter(&m.NotifySkipped)},
		{"drowsiness_frame_latency_ms", "Capture-to-processed latency of the last frame in milliseconds", counter(&m.FrameLatencyMs)},
		{"drowsiness_process_latency_ms", "Processing time of the last frame in milliseconds", counter(&m.ProcessLatencyMs)},
		{"drowsiness_last_ear", "Averaged eye aspect ratio of the last classified face", m.LastEAR},
	}

	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			g.value,
		))
	}
}

// ObserveReading records one classified face
func (m *Metrics) ObserveReading(state types.DriverState, ear float64) {
	if state == types.Alert {
		m.AlertReadings.Add(1)
	} else {
		m.DrowsyReadings.Add(1)
	}
	m.lastEAR.Store(math.Float64bits(ear))
}

// LastEAR returns the averaged EAR of the last classified face
func (m *Metrics) LastEAR() float64 {
	return math.Float64frombits(m.lastEAR.Load())
}

// UpdateFrameLatency updates the last frame latency
func (m *Metrics) UpdateFrameLatency(captureTime time.Time) {
	latency := time.Since(captureTime).Milliseconds()
	if latency < 0 {
		latency = 0
	}
	m.FrameLatencyMs.Store(uint64(latency))
}

// UpdateProcessLatency updates the last processing latency
func (m *Metrics) UpdateProcessLatency(duration time.Duration) {
	m.ProcessLatencyMs.Store(uint64(duration.Milliseconds()))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
