package source

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/clock"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

func encodeRecords(t *testing.T, codec Codec, recs ...*Record) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, r := range recs {
		require.NoError(t, WriteRecord(&buf, codec, r))
	}
	return &buf
}

func TestStreamDecodesRecords(t *testing.T) {
	for _, codec := range []Codec{CodecMsgpack, CodecCBOR} {
		t.Run(string(codec), func(t *testing.T) {
			buf := encodeRecords(t, codec,
				&Record{Seq: 1, TS: 1700000000.25, Width: 640, Height: 480,
					Landmarks: [][]float64{{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}}},
				&Record{Seq: 2, TS: 1700000000.5},
			)
			s := NewStream(io.NopCloser(buf), codec, "test", clock.NewFake(epoch))
			defer s.Close()
			ctx := context.Background()

			frame, pose, err := s.Next(ctx)
			require.NoError(t, err)
			require.Equal(t, uint64(1), frame.Seq)
			require.Equal(t, 640, frame.Width)
			require.Equal(t, time.Unix(1700000000, 250000000), frame.Timestamp)
			require.Equal(t, []types.Coord{{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}}, pose.Landmarks)

			frame, pose, err = s.Next(ctx)
			require.NoError(t, err)
			require.Equal(t, uint64(2), frame.Seq)
			require.Nil(t, pose)

			_, _, err = s.Next(ctx)
			require.ErrorIs(t, err, types.ErrEndOfStream)
		})
	}
}

func TestStreamBadRecordIsPerFrame(t *testing.T) {
	var buf bytes.Buffer
	// 0xc1 is never used in msgpack
	buf.Write([]byte{0, 0, 0, 1, 0xc1})
	require.NoError(t, WriteRecord(&buf, CodecMsgpack, &Record{Seq: 7, Landmarks: [][]float64{{1, 2}}}))
	require.NoError(t, WriteRecord(&buf, CodecMsgpack, &Record{Seq: 8}))

	s := NewStream(io.NopCloser(&buf), CodecMsgpack, "test", clock.NewFake(epoch))
	defer s.Close()
	ctx := context.Background()

	_, _, err := s.Next(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, types.ErrEndOfStream)

	_, _, err = s.Next(ctx)
	require.ErrorContains(t, err, "landmark 0 has 2 components")

	frame, _, err := s.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(8), frame.Seq)
	require.Equal(t, epoch, frame.Timestamp)
}

func TestStreamLosingFramingEndsStream(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"truncated prefix", []byte{0, 0}},
		{"truncated payload", []byte{0, 0, 0, 10, 1, 2, 3}},
		{"oversized record", func() []byte {
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, maxRecordSize+1)
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStream(io.NopCloser(bytes.NewReader(tt.data)), CodecMsgpack, "test", clock.NewFake(epoch))
			defer s.Close()
			_, _, err := s.Next(context.Background())
			require.ErrorIs(t, err, types.ErrEndOfStream)
		})
	}
}

func TestStreamDecodesJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for x := 0; x < 32; x++ {
		img.Set(x, x%24, color.RGBA{255, 0, 0, 255})
	}
	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, img, nil))

	buf := encodeRecords(t, CodecMsgpack,
		&Record{Seq: 1, JPEG: jpg.Bytes()},
		&Record{Seq: 2, JPEG: []byte("not a jpeg")},
	)
	s := NewStream(io.NopCloser(buf), CodecMsgpack, "test", clock.NewFake(epoch))
	defer s.Close()

	frame, _, err := s.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, frame.Image)
	require.Equal(t, 32, frame.Width)
	require.Equal(t, 24, frame.Height)

	frame, _, err = s.Next(context.Background())
	require.NoError(t, err)
	require.Nil(t, frame.Image)
}

func TestStreamNextHonoursContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	s := NewStream(pr, CodecMsgpack, "pipe", clock.NewFake(epoch))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := s.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec("")
	require.NoError(t, err)
	require.Equal(t, CodecMsgpack, c)

	c, err = ParseCodec("cbor")
	require.NoError(t, err)
	require.Equal(t, CodecCBOR, c)

	_, err = ParseCodec("protobuf")
	require.Error(t, err)
}
