package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/clock"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

func stdin() io.ReadCloser { return os.Stdin }

type streamResult struct {
	rec *Record
	err error
}

// Stream reads length-prefixed worker records from any byte stream. The
// stream ending, or losing framing, ends the source.
type Stream struct {
	rc    io.ReadCloser
	codec Codec
	name  string
	clk   clock.Clock
	log   *logger.Module

	records   chan streamResult
	done      chan struct{}
	closeOnce sync.Once
}

// NewStream starts reading records from rc
func NewStream(rc io.ReadCloser, codec Codec, name string, clk clock.Clock) *Stream {
	if codec == "" {
		codec = CodecMsgpack
	}
	s := &Stream{
		rc:      rc,
		codec:   codec,
		name:    name,
		clk:     clk,
		log:     logger.For("Source"),
		records: make(chan streamResult),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *Stream) readLoop() {
	defer close(s.records)

	br := bufio.NewReaderSize(s.rc, 64*1024)
	for {
		payload, err := readFrame(br)
		if err != nil {
			select {
			case <-s.done:
			default:
				if errors.Is(err, io.EOF) {
					s.log.Debug("%s: end of input", s.name)
				} else {
					s.log.Error("%s: %v", s.name, err)
				}
			}
			return
		}

		rec := new(Record)
		if err := s.codec.Unmarshal(payload, rec); err != nil {
			rec = nil
			err = fmt.Errorf("%s: failed to decode %s record (%d bytes): %w", s.name, s.codec, len(payload), err)
		}

		select {
		case s.records <- streamResult{rec: rec, err: err}:
		case <-s.done:
			return
		}
	}
}

// Next blocks for the next record
func (s *Stream) Next(ctx context.Context) (*types.Frame, *types.Pose, error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case r, ok := <-s.records:
		if !ok {
			return nil, nil, types.ErrEndOfStream
		}
		if r.err != nil {
			return nil, nil, r.err
		}
		return s.convert(r.rec)
	}
}

func (s *Stream) convert(rec *Record) (*types.Frame, *types.Pose, error) {
	frame := &types.Frame{
		Seq:    rec.Seq,
		Width:  rec.Width,
		Height: rec.Height,
	}
	if rec.TS > 0 {
		sec, frac := math.Modf(rec.TS)
		frame.Timestamp = time.Unix(int64(sec), int64(frac*1e9))
	} else {
		frame.Timestamp = s.clk.Now()
	}

	if len(rec.JPEG) > 0 {
		img, err := jpeg.Decode(bytes.NewReader(rec.JPEG))
		if err != nil {
			s.log.Warn("%s: frame %d: undecodable image dropped: %v", s.name, rec.Seq, err)
		} else {
			frame.Image = img
			b := img.Bounds()
			if frame.Width == 0 {
				frame.Width = b.Dx()
			}
			if frame.Height == 0 {
				frame.Height = b.Dy()
			}
		}
	}

	pose, err := landmarksToPose(rec.Seq, rec.Landmarks)
	if err != nil {
		return nil, nil, err
	}
	return frame, pose, nil
}

// Close stops reading and closes the underlying stream
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.rc.Close()
	})
	return err
}
