// Package stream runs the acquire, render, encode and send pipeline.
//
// The loop is single-threaded and synchronous. Each iteration pulls one
// frame, hands it to the render sink, polls for cancellation and, when a
// pose is present, encodes and sends exactly one bundle before the next
// frame is requested.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/clock"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/oscwire"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/render"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/source"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/transport"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

// State is the loop lifecycle state
type State int32

const (
	Running State = iota
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopReason tells which terminal signal ended the run
type StopReason int

const (
	StopEndOfStream StopReason = iota + 1
	StopCancelled
)

func (r StopReason) String() string {
	switch r {
	case StopEndOfStream:
		return "end of stream"
	case StopCancelled:
		return "cancel requested"
	default:
		return "none"
	}
}

// Config wires the loop's collaborators
type Config struct {
	Source    source.Source
	Sink      render.Sink
	Encoder   *oscwire.Encoder
	Transport transport.Transport
	Metrics   *metrics.Metrics // optional
	Clock     clock.Clock      // optional, used for send timing

	// TraceKeypoint, when set, logs that keypoint's coordinates for every
	// bundle sent.
	TraceKeypoint string
}

// Loop is one streaming run. It can be run once.
type Loop struct {
	source    source.Source
	sink      render.Sink
	encoder   *oscwire.Encoder
	transport transport.Transport
	metrics   *metrics.Metrics
	clock     clock.Clock
	log       *logger.Module

	traceName  string
	traceIndex int

	state        atomic.Int32
	started      atomic.Bool
	teardownOnce sync.Once
	startedAt    time.Time
	stoppedAt    time.Time
	reason       StopReason
}

// NewLoop validates cfg and creates a loop in the Running state
func NewLoop(cfg Config) (*Loop, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.New("stream: source is required")
	case cfg.Sink == nil:
		return nil, errors.New("stream: render sink is required")
	case cfg.Encoder == nil:
		return nil, errors.New("stream: encoder is required")
	case cfg.Transport == nil:
		return nil, errors.New("stream: transport is required")
	}

	l := &Loop{
		source:     cfg.Source,
		sink:       cfg.Sink,
		encoder:    cfg.Encoder,
		transport:  cfg.Transport,
		metrics:    cfg.Metrics,
		clock:      cfg.Clock,
		log:        logger.For("Stream"),
		traceIndex: -1,
	}
	if l.metrics == nil {
		l.metrics = metrics.New()
	}
	if l.clock == nil {
		l.clock = clock.Real()
	}

	if cfg.TraceKeypoint != "" {
		idx, ok := cfg.Encoder.Registry().Lookup(cfg.TraceKeypoint)
		if !ok {
			return nil, types.NewConfigurationError("trace_keypoint", "unknown keypoint %q", cfg.TraceKeypoint)
		}
		l.traceName = cfg.TraceKeypoint
		l.traceIndex = idx
	}

	l.setState(Running)
	return l, nil
}

// State returns the current lifecycle state. Safe from any goroutine.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
	l.metrics.LoopState.Store(uint64(s))
}

// Metrics returns the counters the loop updates
func (l *Loop) Metrics() *metrics.Metrics { return l.metrics }

// Run drives the pipeline until end of stream or a cancel request and then
// tears the collaborators down. A cancelled ctx counts as a cancel request.
// The returned error is non-nil only when the loop could not run at all.
func (l *Loop) Run(ctx context.Context) (StopReason, error) {
	if !l.started.CompareAndSwap(false, true) {
		return 0, errors.New("stream: loop already run")
	}

	l.startedAt = l.clock.Now()
	l.log.Info("Streaming to %s (%d keypoints, %s)", l.transport, l.encoder.Registry().Len(), l.encoder.Precision())

	defer l.shutdown()
	l.reason = l.iterate(ctx)
	return l.reason, nil
}

func (l *Loop) iterate(ctx context.Context) StopReason {
	for {
		if ctx.Err() != nil {
			return StopCancelled
		}

		frame, pose, err := l.source.Next(ctx)
		if err != nil {
			if errors.Is(err, types.ErrEndOfStream) {
				return StopEndOfStream
			}
			if ctx.Err() != nil {
				continue
			}
			n := l.metrics.AcquireErrors.Add(1)
			// Log the first failures, then only every 100th to bound noise
			if n <= 5 || n%100 == 0 {
				l.log.Warn("Acquire failed (%d so far): %v", n, err)
			}
			continue
		}
		if frame == nil {
			// No frame without an error also ends the stream
			return StopEndOfStream
		}
		l.metrics.FramesAcquired.Add(1)

		l.sink.Draw(frame, pose)
		if l.sink.PollCancel() {
			return StopCancelled
		}

		if pose == nil {
			l.metrics.FramesWithoutPose.Add(1)
			continue
		}
		l.metrics.PosesDetected.Add(1)
		l.emit(frame, pose)
	}
}

// emit encodes and sends one bundle. Failures drop the frame.
func (l *Loop) emit(frame *types.Frame, pose *types.Pose) {
	start := l.clock.Now()

	bundle, err := l.encoder.EncodeFrame(pose)
	if err != nil {
		l.metrics.EncodeErrors.Add(1)
		l.log.Warn("Frame %d dropped: %v", frame.Seq, err)
		return
	}

	n, err := l.transport.Send(bundle)
	l.metrics.ActivePeers.Store(uint64(l.transport.Peers()))
	if err != nil {
		l.metrics.TransportErrors.Add(1)
		l.metrics.BundlesDropped.Add(1)
		if errors.Is(err, transport.ErrNoPeer) {
			l.log.Debug("Frame %d dropped: %v", frame.Seq, err)
		} else {
			l.log.Warn("Frame %d dropped: %v", frame.Seq, err)
		}
		return
	}

	l.metrics.BundlesSent.Add(1)
	l.metrics.BundleBytes.Add(uint64(n))
	l.metrics.UpdateSendLatency(l.clock.Now().Sub(start))
	l.metrics.UpdateFrameLatency(frame.Timestamp)

	if l.traceIndex >= 0 {
		c := pose.Landmarks[l.traceIndex]
		l.log.Info("Frame %d %s: x=%.4f y=%.4f z=%.4f", frame.Seq, l.traceName, c.X(), c.Y(), c.Z())
	}
}

func (l *Loop) shutdown() {
	l.setState(Stopping)
	l.teardownOnce.Do(func() {
		closeQuietly(l.log, "render sink", l.sink.Close)
		closeQuietly(l.log, "source", l.source.Close)
	})
	l.stoppedAt = l.clock.Now()
	l.setState(Stopped)

	s := l.metrics.Snapshot()
	l.log.Info("Stopped: %s (%d frames, %d bundles sent, %d dropped)",
		l.reason, s.FramesAcquired, s.BundlesSent, s.BundlesDropped+s.EncodeErrors)
}

// closeQuietly runs a teardown step; failures and panics are logged only.
func closeQuietly(log *logger.Module, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Closing %s panicked: %v", name, r)
		}
	}()
	if err := fn(); err != nil {
		log.Error("Closing %s: %v", name, err)
	}
}

// Summary describes a finished run
type Summary struct {
	Reason   StopReason
	Duration time.Duration
	Counters metrics.Snapshot
}

// FPS returns frames acquired per second of run time
func (s Summary) FPS() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Counters.FramesAcquired) / s.Duration.Seconds()
}

func (s Summary) String() string {
	c := s.Counters
	return fmt.Sprintf(
		"stopped by %s after %s\n"+
			"  frames acquired:   %d (%.1f fps)\n"+
			"  poses detected:    %d\n"+
			"  frames w/o pose:   %d\n"+
			"  bundles sent:      %d (%d bytes)\n"+
			"  encode errors:     %d\n"+
			"  transport errors:  %d\n"+
			"  acquire errors:    %d",
		s.Reason, s.Duration.Round(time.Millisecond),
		c.FramesAcquired, s.FPS(),
		c.PosesDetected,
		c.FramesWithoutPose,
		c.BundlesSent, c.BundleBytes,
		c.EncodeErrors,
		c.TransportErrors,
		c.AcquireErrors,
	)
}

// Summary returns run statistics; meaningful once Run has returned
func (l *Loop) Summary() Summary {
	return Summary{
		Reason:   l.reason,
		Duration: l.stoppedAt.Sub(l.startedAt),
		Counters: l.metrics.Snapshot(),
	}
}
