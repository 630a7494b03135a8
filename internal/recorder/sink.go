package recorder

import (
	"errors"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/render"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

// Sink tees every drawn frame into a Recorder before passing it on
type Sink struct {
	render.Sink
	rec *Recorder
}

// NewSink wraps next so frames are recorded while rec is recording
func NewSink(next render.Sink, rec *Recorder) *Sink {
	return &Sink{Sink: next, rec: rec}
}

// Draw records the frame and delegates
func (s *Sink) Draw(frame *types.Frame, pose *types.Pose) *types.Frame {
	s.rec.SendFrame(frame, pose)
	return s.Sink.Draw(frame, pose)
}

// Close finishes an active recording and closes the wrapped sink
func (s *Sink) Close() error {
	return errors.Join(s.rec.Close(), s.Sink.Close())
}
