package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.BundlesSent.Add(3)
	m.TransportErrors.Add(1)
	m.LoopState.Store(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"posestream_bundles_sent_total 3",
		"posestream_transport_errors_total 1",
		"posestream_loop_state 2",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestUpdateFrameLatencyIgnoresZeroTime(t *testing.T) {
	m := New()
	m.FrameLatencyMs.Store(7)
	m.UpdateFrameLatency(time.Time{})
	if got := m.FrameLatencyMs.Load(); got != 7 {
		t.Errorf("FrameLatencyMs = %d, want 7", got)
	}

	m.UpdateFrameLatency(time.Now().Add(-50 * time.Millisecond))
	if got := m.FrameLatencyMs.Load(); got < 50 {
		t.Errorf("FrameLatencyMs = %d, want >= 50", got)
	}
}

func TestSnapshot(t *testing.T) {
	m := New()
	m.FramesAcquired.Add(10)
	m.PosesDetected.Add(8)
	m.FramesWithoutPose.Add(2)

	s := m.Snapshot()
	if s.FramesAcquired != 10 || s.PosesDetected != 8 || s.FramesWithoutPose != 2 {
		t.Errorf("Snapshot = %+v", s)
	}
}
