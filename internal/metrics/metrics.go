package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pipeline metrics. Counters are plain atomics so the
// stream loop never touches Prometheus types on its hot path.
type Metrics struct {
	// Per-frame counters
	FramesAcquired    atomic.Uint64
	PosesDetected     atomic.Uint64
	FramesWithoutPose atomic.Uint64
	BundlesSent       atomic.Uint64
	BundlesDropped    atomic.Uint64
	BundleBytes       atomic.Uint64

	// Error counters
	AcquireErrors   atomic.Uint64
	EncodeErrors    atomic.Uint64
	TransportErrors atomic.Uint64

	// Latency tracking
	FrameLatencyMs atomic.Uint64 // capture -> send, last frame
	SendLatencyUs  atomic.Uint64 // encode+send duration, last frame

	// Loop state (0=running, 1=stopping, 2=stopped)
	LoopState atomic.Uint64

	// Transport peers (always 1 for udp)
	ActivePeers atomic.Uint64

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

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) gauge(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) registerPrometheusMetrics() {
	// Frame metrics
	m.counter("posestream_frames_acquired_total", "Total frames pulled from the acquisition source", &m.FramesAcquired)
	m.counter("posestream_poses_detected_total", "Total frames carrying a pose", &m.PosesDetected)
	m.counter("posestream_frames_without_pose_total", "Total frames with no detection", &m.FramesWithoutPose)

	// Bundle metrics
	m.counter("posestream_bundles_sent_total", "Total OSC bundles handed to the transport", &m.BundlesSent)
	m.counter("posestream_bundles_dropped_total", "Total OSC bundles dropped after a local send failure", &m.BundlesDropped)
	m.counter("posestream_bundle_bytes_total", "Total OSC payload bytes sent", &m.BundleBytes)

	// Error metrics
	m.counter("posestream_acquire_errors_total", "Total per-frame acquisition errors", &m.AcquireErrors)
	m.counter("posestream_encode_errors_total", "Total poses rejected by the bundle encoder", &m.EncodeErrors)
	m.counter("posestream_transport_errors_total", "Total local transport failures", &m.TransportErrors)

	// Latency metrics
	m.gauge("posestream_frame_latency_ms", "Capture to send latency of the last bundle in milliseconds", &m.FrameLatencyMs)
	m.gauge("posestream_send_latency_us", "Encode and send duration of the last bundle in microseconds", &m.SendLatencyUs)

	m.gauge("posestream_loop_state", "Stream loop state (0=running, 1=stopping, 2=stopped)", &m.LoopState)
	m.gauge("posestream_active_peers", "Connected transport peers", &m.ActivePeers)
}

// UpdateFrameLatency records capture-to-now latency; zero capture times are ignored
func (m *Metrics) UpdateFrameLatency(captureTime time.Time) {
	if captureTime.IsZero() {
		return
	}
	latency := time.Since(captureTime).Milliseconds()
	if latency < 0 {
		latency = 0
	}
	m.FrameLatencyMs.Store(uint64(latency))
}

// UpdateSendLatency records the encode+send duration
func (m *Metrics) UpdateSendLatency(d time.Duration) {
	m.SendLatencyUs.Store(uint64(d.Microseconds()))
}

// Snapshot is a point-in-time copy of the counters
type Snapshot struct {
	FramesAcquired    uint64 `json:"frames_acquired"`
	PosesDetected     uint64 `json:"poses_detected"`
	FramesWithoutPose uint64 `json:"frames_without_pose"`
	BundlesSent       uint64 `json:"bundles_sent"`
	BundlesDropped    uint64 `json:"bundles_dropped"`
	BundleBytes       uint64 `json:"bundle_bytes"`
	AcquireErrors     uint64 `json:"acquire_errors"`
	EncodeErrors      uint64 `json:"encode_errors"`
	TransportErrors   uint64 `json:"transport_errors"`
}

// Snapshot returns the current counter values
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		FramesAcquired:    m.FramesAcquired.Load(),
		PosesDetected:     m.PosesDetected.Load(),
		FramesWithoutPose: m.FramesWithoutPose.Load(),
		BundlesSent:       m.BundlesSent.Load(),
		BundlesDropped:    m.BundlesDropped.Load(),
		BundleBytes:       m.BundleBytes.Load(),
		AcquireErrors:     m.AcquireErrors.Load(),
		EncodeErrors:      m.EncodeErrors.Load(),
		TransportErrors:   m.TransportErrors.Load(),
	}
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
