// Package recorder saves acquired poses as a length-prefixed record stream
// that the stdin source plays back (posestream -i - < file).
package recorder

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/source"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

// queueSize buffers about two seconds at 30 fps
const queueSize = 60

// Recorder records poses to file
type Recorder struct {
	ctl          sync.Mutex // serializes Start and Stop
	mu           sync.RWMutex
	file         *os.File
	out          *bufio.Writer
	filename     string
	basePath     string
	codec        source.Codec
	recording    bool
	frameCount   uint64
	bytesWritten uint64
	startTime    time.Time
	frameChan    chan *source.Record
	wg           sync.WaitGroup
	dropped      atomic.Uint64
	log          *logger.Module
}

// NewRecorder creates a recorder writing relative names under basePath
func NewRecorder(basePath string, codec source.Codec) *Recorder {
	if codec == "" {
		codec = source.CodecMsgpack
	}
	return &Recorder{
		basePath: basePath,
		codec:    codec,
		log:      logger.For("Recorder"),
	}
}

// Start starts recording to name, or to a timestamped file when name is
// empty. It returns the path written.
func (r *Recorder) Start(name string) (string, error) {
	r.ctl.Lock()
	defer r.ctl.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return "", fmt.Errorf("already recording to %s", r.filename)
	}

	if name == "" {
		name = fmt.Sprintf("recording_%s.%s", time.Now().Format("20060102_150405"), r.codec)
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.basePath, name)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	r.file = file
	r.out = bufio.NewWriter(file)
	r.filename = path
	r.recording = true
	r.frameCount = 0
	r.bytesWritten = 0
	r.dropped.Store(0)
	r.startTime = time.Now()
	r.frameChan = make(chan *source.Record, queueSize)

	r.wg.Add(1)
	go r.writeFrames(r.frameChan, r.out)

	r.log.Info("Recording to %s (%s)", path, r.codec)
	return path, nil
}

// Stop stops recording and returns the finished file
func (r *Recorder) Stop() (string, error) {
	r.ctl.Lock()
	defer r.ctl.Unlock()
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return "", fmt.Errorf("not recording")
	}
	r.recording = false
	close(r.frameChan)
	r.mu.Unlock()

	// Wait for the writer to drain queued frames
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.filename
	if err := r.out.Flush(); err != nil {
		r.file.Close()
		return path, fmt.Errorf("failed to flush file: %w", err)
	}
	if err := r.file.Sync(); err != nil {
		r.file.Close()
		return path, fmt.Errorf("failed to sync file: %w", err)
	}
	if err := r.file.Close(); err != nil {
		return path, fmt.Errorf("failed to close file: %w", err)
	}
	r.file = nil
	r.out = nil

	r.log.Info("Recorded %d frames (%d bytes, %d dropped) to %s", r.frameCount, r.bytesWritten, r.dropped.Load(), path)
	return path, nil
}

// SendFrame queues a frame for writing without blocking. It reports false
// when not recording or when the queue is full and the frame was dropped.
func (r *Recorder) SendFrame(frame *types.Frame, pose *types.Pose) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.recording || frame == nil {
		return false
	}

	select {
	case r.frameChan <- toRecord(frame, pose):
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

func toRecord(frame *types.Frame, pose *types.Pose) *source.Record {
	rec := &source.Record{
		Seq:    frame.Seq,
		Width:  frame.Width,
		Height: frame.Height,
	}
	if !frame.Timestamp.IsZero() {
		rec.TS = float64(frame.Timestamp.UnixNano()) / float64(time.Second)
	}
	if pose != nil {
		rec.Landmarks = make([][]float64, len(pose.Landmarks))
		for i, c := range pose.Landmarks {
			rec.Landmarks[i] = []float64{c.X(), c.Y(), c.Z()}
		}
	}
	return rec
}

// writeFrames writes queued frames to w until the channel is closed. w
// belongs to this goroutine until it returns.
func (r *Recorder) writeFrames(frames <-chan *source.Record, w io.Writer) {
	defer r.wg.Done()

	failed := false
	for rec := range frames {
		if failed {
			continue
		}
		if err := r.writeFrame(w, rec); err != nil {
			// Keep draining so SendFrame never blocks on a dead writer
			r.log.Error("Write failed, discarding the rest of the recording: %v", err)
			failed = true
		}
	}
}

// writeFrame holds mu only to update the counters
func (r *Recorder) writeFrame(w io.Writer, rec *source.Record) error {
	cw := &countingWriter{w: w}
	if err := source.WriteRecord(cw, r.codec, rec); err != nil {
		return err
	}

	r.mu.Lock()
	r.bytesWritten += uint64(cw.n)
	r.frameCount++
	r.mu.Unlock()
	return nil
}

// IsRecording returns true if currently recording
func (r *Recorder) IsRecording() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recording
}

// Status returns the current recording status
func (r *Recorder) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var duration time.Duration
	if r.recording {
		duration = time.Since(r.startTime)
	}

	return Status{
		Recording:     r.recording,
		Filename:      r.filename,
		Codec:         string(r.codec),
		FrameCount:    r.frameCount,
		BytesWritten:  r.bytesWritten,
		FramesDropped: r.dropped.Load(),
		DurationMs:    duration.Milliseconds(),
		StartTime:     r.startTime,
	}
}

// Close stops an active recording
func (r *Recorder) Close() error {
	if !r.IsRecording() {
		return nil
	}
	_, err := r.Stop()
	return err
}

// Status holds the current recording status
type Status struct {
	Recording     bool      `json:"recording"`
	Filename      string    `json:"filename"`
	Codec         string    `json:"codec"`
	FrameCount    uint64    `json:"frame_count"`
	BytesWritten  uint64    `json:"bytes_written"`
	FramesDropped uint64    `json:"frames_dropped"`
	DurationMs    int64     `json:"duration_ms"`
	StartTime     time.Time `json:"start_time"`
}

type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
