// Package source acquires frames and pose detections for the stream loop.
//
// Every implementation returns types.ErrEndOfStream exactly when no further
// frames will be produced. Any other error from Next affects only the frame
// being acquired; the caller may call Next again.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/clock"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/keypoint"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

// Source yields one frame and at most one pose per call. A nil pose means
// nothing was detected in that frame.
type Source interface {
	Next(ctx context.Context) (*types.Frame, *types.Pose, error)
	Close() error
}

// Kinds accepted by Open
const (
	KindSynthetic = "synthetic"
	KindReplay    = "replay"
	KindWorker    = "worker"
	KindStdin     = "stdin"
	KindShm       = "shm"
)

// Options selects and parameterizes a source
type Options struct {
	Kind    string
	Path    string   // replay file or shared memory path
	Command []string // worker command and arguments
	Codec   Codec    // worker and stdin record codec

	FPS         float64 // pacing for synthetic and replay; 0 means unpaced
	MaxFrames   uint64  // synthetic frame cap; 0 means unlimited
	MissEvery   int     // synthetic: every n-th frame has no detection
	Width       int     // synthetic image size; 0 disables images
	Height      int
	OpenTimeout time.Duration // shared memory wait
}

// Open builds the source described by opts. Unusable options are reported
// as *types.ConfigurationError.
func Open(ctx context.Context, opts Options, reg *keypoint.Registry, clk clock.Clock) (Source, error) {
	if reg == nil {
		return nil, types.NewConfigurationError("keypoints", "registry is required")
	}
	if opts.FPS < 0 {
		return nil, types.NewConfigurationError("source.fps", "must not be negative, got %g", opts.FPS)
	}

	switch opts.Kind {
	case KindSynthetic, "":
		return NewSynthetic(SyntheticConfig{
			Keypoints: reg.Len(),
			FPS:       opts.FPS,
			MaxFrames: opts.MaxFrames,
			MissEvery: opts.MissEvery,
			Width:     opts.Width,
			Height:    opts.Height,
		}, clk), nil
	case KindReplay:
		r, err := OpenReplay(opts.Path, opts.FPS, reg, clk)
		if err != nil {
			return nil, err
		}
		return r, nil
	case KindWorker:
		w, err := StartWorker(ctx, WorkerConfig{Command: opts.Command, Codec: opts.Codec}, clk)
		if err != nil {
			return nil, err
		}
		return w, nil
	case KindStdin:
		codec, err := ParseCodec(string(opts.Codec))
		if err != nil {
			return nil, &types.ConfigurationError{Field: "source.codec", Reason: "unsupported codec", Err: err}
		}
		return NewStream(stdin(), codec, "stdin", clk), nil
	case KindShm:
		s, err := OpenSharedMemory(ctx, SharedMemoryConfig{
			Path:        opts.Path,
			Keypoints:   reg.Len(),
			OpenTimeout: opts.OpenTimeout,
		}, clk)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, types.NewConfigurationError("source.kind", "unknown source %q", opts.Kind)
	}
}

// pacer spaces calls to wait at a fixed rate, dropping the backlog when the
// caller falls behind.
type pacer struct {
	clk      clock.Clock
	interval time.Duration
	next     time.Time
}

func newPacer(clk clock.Clock, fps float64) *pacer {
	p := &pacer{clk: clk}
	if fps > 0 {
		p.interval = time.Duration(float64(time.Second) / fps)
	}
	return p
}

func (p *pacer) wait(ctx context.Context) error {
	if p.interval <= 0 {
		return ctx.Err()
	}

	now := p.clk.Now()
	if p.next.IsZero() {
		p.next = now
		return ctx.Err()
	}
	p.next = p.next.Add(p.interval)
	d := p.next.Sub(now)
	if d <= 0 {
		p.next = now
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clk.After(d):
		return nil
	}
}

func landmarksToPose(seq uint64, landmarks [][]float64) (*types.Pose, error) {
	if landmarks == nil {
		return nil, nil
	}
	pose := &types.Pose{Landmarks: make([]types.Coord, len(landmarks))}
	for i, lm := range landmarks {
		if len(lm) != 3 {
			return nil, fmt.Errorf("frame %d: landmark %d has %d components, want 3", seq, i, len(lm))
		}
		pose.Landmarks[i] = types.Coord{lm[0], lm[1], lm[2]}
	}
	return pose, nil
}
