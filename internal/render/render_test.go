package render

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

func TestRendererWithoutPreviewPassesFrameThrough(t *testing.T) {
	r := NewRenderer(nil, nil)
	frame := &types.Frame{Seq: 3}
	require.Same(t, frame, r.Draw(frame, nil))
	require.False(t, r.PollCancel())
	require.NoError(t, r.Close())
}

func TestRequestQuit(t *testing.T) {
	r := NewRenderer(nil, nil)
	require.False(t, r.PollCancel())
	r.RequestQuit()
	r.RequestQuit()
	require.True(t, r.PollCancel())
	require.True(t, r.PollCancel())
}

func TestKeyboardQuitKeys(t *testing.T) {
	for _, input := range []string{"q", "Q", "\x1b", "abcq"} {
		k := NewKeyboard(strings.NewReader(input), nil)
		require.Eventually(t, k.QuitPressed, time.Second, time.Millisecond, "input %q", input)
	}

	k := NewKeyboard(strings.NewReader("hello world"), nil)
	time.Sleep(20 * time.Millisecond)
	require.False(t, k.QuitPressed())
}

func TestRendererPollsKeyboardWithoutBlocking(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	restored := 0
	k := NewKeyboard(pr, func() error { restored++; return nil })
	r := NewRenderer(nil, k)

	// Nothing typed yet: the poll must return immediately
	require.False(t, r.PollCancel())

	_, err := pw.Write([]byte("q"))
	require.NoError(t, err)
	require.Eventually(t, r.PollCancel, time.Second, time.Millisecond)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	require.Equal(t, 1, restored)
}

func TestOverlayDrawsKeypoints(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))
	o := NewOverlay(OverlayConfig{Width: 100})
	frame := &types.Frame{Seq: 9, Timestamp: time.Unix(10, 0), Image: src}
	pose := &types.Pose{Landmarks: []types.Coord{{0.5, 0.5, 0}, {math.NaN(), 0.5, 0}, {5, 5, 0}}}

	out := o.Draw(frame, pose)
	require.Equal(t, uint64(9), out.Seq)
	require.Equal(t, 100, out.Width)
	require.Equal(t, 50, out.Height)
	require.Equal(t, time.Unix(10, 0), out.Timestamp)

	rgba, ok := out.Image.(*image.RGBA)
	require.True(t, ok)
	require.Equal(t, keypointColour, rgba.RGBAAt(50, 25))
	require.Equal(t, color.RGBA{}, rgba.RGBAAt(90, 45))
}

func TestOverlayWithoutImageUsesCanvas(t *testing.T) {
	o := NewOverlay(OverlayConfig{})
	out := o.Draw(&types.Frame{Seq: 1}, nil)
	require.Equal(t, defaultCanvasWidth, out.Width)
	require.Equal(t, defaultCanvasHeight, out.Height)
	require.Equal(t, canvasColour, out.Image.(*image.RGBA).RGBAAt(600, 400))
}

func TestOverlaySnapshotAndSubscribers(t *testing.T) {
	o := NewOverlay(OverlayConfig{Width: 64})
	_, ok := o.Snapshot()
	require.False(t, ok)

	id, ch := o.Subscribe()
	o.Draw(&types.Frame{Seq: 1, Width: 128, Height: 96}, &types.Pose{Landmarks: []types.Coord{{0.2, 0.2, 0}}})

	select {
	case data := <-ch:
		img, err := jpeg.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		require.Equal(t, 64, img.Bounds().Dx())
		require.Equal(t, 48, img.Bounds().Dy())
	case <-time.After(time.Second):
		t.Fatal("subscriber received no frame")
	}

	snap, ok := o.Snapshot()
	require.True(t, ok)
	_, err := jpeg.Decode(bytes.NewReader(snap))
	require.NoError(t, err)

	o.Unsubscribe(id)
	_, open := <-ch
	require.False(t, open)

	_, ch2 := o.Subscribe()
	require.NoError(t, o.Close())
	_, open = <-ch2
	require.False(t, open)

	_, ch3 := o.Subscribe()
	_, open = <-ch3
	require.False(t, open)
}

func TestOverlaySlowSubscriberDoesNotBlock(t *testing.T) {
	o := NewOverlay(OverlayConfig{Width: 32})
	_, ch := o.Subscribe()
	for i := 0; i < 10; i++ {
		o.Draw(&types.Frame{Seq: uint64(i), Width: 32, Height: 32}, nil)
	}
	require.Len(t, ch, cap(ch))
}

func TestBlankJPEG(t *testing.T) {
	data, err := BlankJPEG()
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, defaultCanvasWidth, img.Bounds().Dx())
}
