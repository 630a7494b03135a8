package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/clock"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/keypoint"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

const replayDoc = `{
  "frames": {
    "10": {"mediapipe": {"nose": {"x": 0.5, "y": 0.25, "z": -0.1, "visibility": 0.9},
                         "left_wrist": {"x": 0.3, "y": 0.7, "z": 0.0}}},
    "2":  {"width": 1280, "height": 720},
    "1":  {"mediapipe": {"left_wrist": {"x": 0.1, "y": 0.2, "z": 0.3},
                         "nose": {"x": 0.4, "y": 0.5, "z": 0.6}}},
    "3":  {"mediapipe": {"nose": {"x": 0.4, "y": 0.5, "z": 0.6}}}
  }
}`

func TestReplayPlaysFramesInOrder(t *testing.T) {
	reg := keypoint.MustBuild([]string{"nose", "left_wrist"})
	r, err := NewReplay("test.json", []byte(replayDoc), 0, reg, clock.NewFake(epoch))
	require.NoError(t, err)
	require.Equal(t, 4, r.Len())
	ctx := context.Background()

	frame, pose, err := r.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), frame.Seq)
	require.Equal(t, []types.Coord{{0.4, 0.5, 0.6}, {0.1, 0.2, 0.3}}, pose.Landmarks)

	frame, pose, err = r.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), frame.Seq)
	require.Equal(t, 1280, frame.Width)
	require.Nil(t, pose)

	// frame 3 lacks left_wrist
	_, _, err = r.Next(ctx)
	require.ErrorContains(t, err, `keypoint "left_wrist" missing`)
	require.NotErrorIs(t, err, types.ErrEndOfStream)

	frame, pose, err = r.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(10), frame.Seq)
	require.Equal(t, types.Coord{0.5, 0.25, -0.1}, pose.Landmarks[0])

	_, _, err = r.Next(ctx)
	require.ErrorIs(t, err, types.ErrEndOfStream)
}

func TestReplayPacing(t *testing.T) {
	reg := keypoint.MustBuild([]string{"nose"})
	doc := `{"frames": {"0": {}, "1": {}, "2": {}}}`
	clk := clock.NewFake(epoch)
	r, err := NewReplay("paced.json", []byte(doc), 25, reg, clk)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err := r.Next(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, 80*time.Millisecond, clk.Now().Sub(epoch))
}

func TestReplayRejectsBadFiles(t *testing.T) {
	reg := keypoint.MustBuild([]string{"nose"})
	tests := []struct {
		name string
		doc  string
	}{
		{"invalid json", `{"frames": `},
		{"no frames", `{"poses": []}`},
		{"frames not object", `{"frames": [1, 2]}`},
		{"non numeric key", `{"frames": {"first": {}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReplay("bad.json", []byte(tt.doc), 0, reg, clock.Real())
			var cfgErr *types.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestOpenReplayFromFile(t *testing.T) {
	reg := keypoint.MustBuild([]string{"nose", "left_wrist"})
	path := filepath.Join(t.TempDir(), "poses.json")
	require.NoError(t, os.WriteFile(path, []byte(replayDoc), 0o644))

	r, err := OpenReplay(path, 0, reg, clock.Real())
	require.NoError(t, err)
	require.NoError(t, r.Close())
	_, _, err = r.Next(context.Background())
	require.ErrorIs(t, err, types.ErrEndOfStream)

	_, err = OpenReplay(filepath.Join(t.TempDir(), "missing.json"), 0, reg, clock.Real())
	var cfgErr *types.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
