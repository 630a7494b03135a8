package source

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/clock"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/keypoint"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

type replayFrame struct {
	num  uint64
	data gjson.Result
}

// Replay plays back a recorded pose file:
//
//	{"frames": {"0": {"mediapipe": {"nose": {"x": 0.5, "y": 0.4, "z": -0.1}, ...}}, ...}}
//
// Frames play in numeric order. A frame without "mediapipe" has no detection.
type Replay struct {
	path   string
	reg    *keypoint.Registry
	clk    clock.Clock
	pace   *pacer
	frames []replayFrame
	pos    int
	log    *logger.Module
}

// OpenReplay loads and indexes the file
func OpenReplay(path string, fps float64, reg *keypoint.Registry, clk clock.Clock) (*Replay, error) {
	if path == "" {
		return nil, types.NewConfigurationError("source.path", "replay file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.ConfigurationError{Field: "source.path", Reason: "cannot read replay file", Err: err}
	}
	return NewReplay(path, data, fps, reg, clk)
}

// NewReplay indexes an in-memory pose file
func NewReplay(name string, data []byte, fps float64, reg *keypoint.Registry, clk clock.Clock) (*Replay, error) {
	if !gjson.ValidBytes(data) {
		return nil, types.NewConfigurationError("source.path", "%s is not valid JSON", name)
	}
	framesObj := gjson.GetBytes(data, "frames")
	if !framesObj.IsObject() {
		return nil, types.NewConfigurationError("source.path", "%s has no \"frames\" object", name)
	}

	var frames []replayFrame
	var badKey string
	framesObj.ForEach(func(key, value gjson.Result) bool {
		n, err := strconv.ParseUint(key.String(), 10, 64)
		if err != nil {
			badKey = key.String()
			return false
		}
		frames = append(frames, replayFrame{num: n, data: value})
		return true
	})
	if badKey != "" {
		return nil, types.NewConfigurationError("source.path", "%s: frame key %q is not a frame number", name, badKey)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].num < frames[j].num })

	r := &Replay{
		path:   name,
		reg:    reg,
		clk:    clk,
		pace:   newPacer(clk, fps),
		frames: frames,
		log:    logger.For("Replay"),
	}
	r.log.Info("Loaded %d frames from %s", len(frames), name)
	return r, nil
}

// Len returns the number of frames in the file
func (r *Replay) Len() int { return len(r.frames) }

// Next returns the next recorded frame
func (r *Replay) Next(ctx context.Context) (*types.Frame, *types.Pose, error) {
	if r.pos >= len(r.frames) {
		return nil, nil, types.ErrEndOfStream
	}
	if err := r.pace.wait(ctx); err != nil {
		return nil, nil, err
	}

	f := r.frames[r.pos]
	r.pos++

	frame := &types.Frame{
		Seq:       f.num,
		Timestamp: r.clk.Now(),
		Width:     int(f.data.Get("width").Int()),
		Height:    int(f.data.Get("height").Int()),
	}

	mp := f.data.Get("mediapipe")
	if !mp.Exists() || mp.Type == gjson.Null {
		return frame, nil, nil
	}

	joints := mp.Map()
	pose := &types.Pose{Landmarks: make([]types.Coord, r.reg.Len())}
	for _, kp := range r.reg.All() {
		j, ok := joints[kp.Name]
		if !ok {
			return nil, nil, fmt.Errorf("%s: frame %d: keypoint %q missing", r.path, f.num, kp.Name)
		}
		pose.Landmarks[kp.Index] = types.Coord{
			j.Get("x").Float(),
			j.Get("y").Float(),
			j.Get("z").Float(),
		}
	}
	return frame, pose, nil
}

// Close releases the loaded file
func (r *Replay) Close() error {
	r.frames = nil
	r.pos = 0
	return nil
}
