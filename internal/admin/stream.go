package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/render"
)

// keepAliveInterval is how long a preview client waits before a blank frame
const keepAliveInterval = 5 * time.Second

// streamMJPEG writes frames from frameCh as multipart JPEG until the
// channel closes or the client goes away.
func streamMJPEG(ctx context.Context, w http.ResponseWriter, frameCh <-chan []byte, log *logger.Module) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	blank, err := render.BlankJPEG()
	if err != nil {
		http.Error(w, "Failed to render frame", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")

	keepAlive := time.NewTimer(0)
	defer keepAlive.Stop()

	for {
		var jpegData []byte
		select {
		case <-ctx.Done():
			return
		case data, ok := <-frameCh:
			if !ok {
				return
			}
			jpegData = data
		case <-keepAlive.C:
			jpegData = blank
		}
		keepAlive.Reset(keepAliveInterval)

		if _, err := w.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
			log.Debug("Preview client disconnected: %v", err)
			return
		}
		if _, err := w.Write(jpegData); err != nil {
			log.Debug("Preview client disconnected: %v", err)
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			log.Debug("Preview client disconnected: %v", err)
			return
		}
		flusher.Flush()
	}
}
