package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/clock"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/keypoint"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSyntheticFrameCapEndsStream(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{Keypoints: 5, MaxFrames: 3}, clock.NewFake(epoch))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		frame, pose, err := s.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(i), frame.Seq)
		require.Equal(t, 5, pose.Len())
		require.Nil(t, frame.Image)
	}

	_, _, err := s.Next(ctx)
	require.ErrorIs(t, err, types.ErrEndOfStream)
	_, _, err = s.Next(ctx)
	require.ErrorIs(t, err, types.ErrEndOfStream)
}

func TestSyntheticMissEvery(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{Keypoints: 2, MaxFrames: 6, MissEvery: 3}, clock.NewFake(epoch))

	var absent []uint64
	for {
		frame, pose, err := s.Next(context.Background())
		if errors.Is(err, types.ErrEndOfStream) {
			break
		}
		require.NoError(t, err)
		if pose == nil {
			absent = append(absent, frame.Seq)
		}
	}
	require.Equal(t, []uint64{2, 5}, absent)
}

func TestSyntheticPacesWithClock(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := NewSynthetic(SyntheticConfig{Keypoints: 1, FPS: 10}, clk)

	var stamps []time.Time
	for i := 0; i < 3; i++ {
		frame, _, err := s.Next(context.Background())
		require.NoError(t, err)
		stamps = append(stamps, frame.Timestamp)
	}
	require.Equal(t, epoch, stamps[0])
	require.Equal(t, 100*time.Millisecond, stamps[1].Sub(stamps[0]))
	require.Equal(t, 100*time.Millisecond, stamps[2].Sub(stamps[1]))
}

func TestSyntheticImage(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{Keypoints: 1, Width: 64}, clock.NewFake(epoch))
	frame, _, err := s.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, frame.Image)
	require.Equal(t, 64, frame.Image.Bounds().Dx())
	require.Equal(t, 48, frame.Image.Bounds().Dy())
	require.Equal(t, 48, frame.Height)
}

func TestSyntheticCloseEndsStream(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{Keypoints: 1}, clock.NewFake(epoch))
	require.NoError(t, s.Close())
	_, _, err := s.Next(context.Background())
	require.ErrorIs(t, err, types.ErrEndOfStream)
}

func TestSyntheticHonoursCancelledContext(t *testing.T) {
	s := NewSynthetic(SyntheticConfig{Keypoints: 1}, clock.NewFake(epoch))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := s.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSkeletonStaysInFrame(t *testing.T) {
	for seq := uint64(0); seq < 240; seq += 7 {
		pose := Skeleton(33, seq)
		require.Equal(t, 33, pose.Len())
		for _, c := range pose.Landmarks {
			require.True(t, c.X() >= 0 && c.X() <= 1, "x=%v", c.X())
			require.True(t, c.Y() >= 0 && c.Y() <= 1, "y=%v", c.Y())
		}
	}
}

func TestOpenSelectsSource(t *testing.T) {
	reg := keypoint.MustBuild([]string{"nose", "left_wrist"})
	clk := clock.NewFake(epoch)

	src, err := Open(context.Background(), Options{Kind: KindSynthetic, MaxFrames: 1}, reg, clk)
	require.NoError(t, err)
	_, pose, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, reg.Len(), pose.Len())
	require.NoError(t, src.Close())

	tests := []struct {
		name string
		opts Options
	}{
		{"unknown kind", Options{Kind: "camera"}},
		{"negative fps", Options{Kind: KindSynthetic, FPS: -1}},
		{"replay without path", Options{Kind: KindReplay}},
		{"worker without command", Options{Kind: KindWorker}},
		{"stdin bad codec", Options{Kind: KindStdin, Codec: "json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Open(context.Background(), tt.opts, reg, clk)
			require.Nil(t, src)
			var cfgErr *types.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}
