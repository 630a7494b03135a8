// Package render is the stream loop's display side: it annotates frames
// for preview and reports whether the operator asked to quit.
package render

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

// Sink receives every acquired frame
type Sink interface {
	// Draw annotates frame with pose (nil when nothing was detected) and
	// returns the annotated frame.
	Draw(frame *types.Frame, pose *types.Pose) *types.Frame
	// PollCancel reports, without blocking, whether a quit was requested.
	PollCancel() bool
	Close() error
}

// Renderer combines an optional preview overlay and an optional keyboard.
// Either may be nil.
type Renderer struct {
	overlay  *Overlay
	keyboard *Keyboard
	quit     atomic.Bool
	log      *logger.Module

	closeOnce sync.Once
	closeErr  error
}

// NewRenderer creates a renderer
func NewRenderer(overlay *Overlay, keyboard *Keyboard) *Renderer {
	return &Renderer{
		overlay:  overlay,
		keyboard: keyboard,
		log:      logger.For("Render"),
	}
}

// Overlay returns the preview overlay, or nil
func (r *Renderer) Overlay() *Overlay { return r.overlay }

// Draw annotates the frame when a preview is configured
func (r *Renderer) Draw(frame *types.Frame, pose *types.Pose) *types.Frame {
	if r.overlay == nil || frame == nil {
		return frame
	}
	return r.overlay.Draw(frame, pose)
}

// RequestQuit asks the loop to stop at its next poll. Safe from any goroutine.
func (r *Renderer) RequestQuit() {
	if !r.quit.Swap(true) {
		r.log.Info("Quit requested")
	}
}

// PollCancel reports a pending quit request or quit key
func (r *Renderer) PollCancel() bool {
	if r.quit.Load() {
		return true
	}
	if r.keyboard != nil && r.keyboard.QuitPressed() {
		r.quit.Store(true)
		r.log.Info("Quit key pressed")
		return true
	}
	return false
}

// Close restores the terminal and ends preview streams
func (r *Renderer) Close() error {
	r.closeOnce.Do(func() {
		var errs []error
		if r.keyboard != nil {
			errs = append(errs, r.keyboard.Close())
		}
		if r.overlay != nil {
			errs = append(errs, r.overlay.Close())
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}
