package source

import (
	"context"
	"image"
	"image/color"
	"math"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/clock"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

// SyntheticConfig parameterizes the generated stream
type SyntheticConfig struct {
	Keypoints int     // landmarks per pose
	FPS       float64 // 0 runs unpaced
	MaxFrames uint64  // 0 is unlimited
	MissEvery int     // every n-th frame has no detection; 0 never
	Width     int     // image size; 0 produces frames without images
	Height    int
}

// Synthetic produces a skeleton of points orbiting the frame centre. It is
// used for receiver bring-up and tests.
type Synthetic struct {
	cfg    SyntheticConfig
	clk    clock.Clock
	pace   *pacer
	seq    uint64
	bars   []color.RGBA
	closed bool
}

// NewSynthetic creates a synthetic source
func NewSynthetic(cfg SyntheticConfig, clk clock.Clock) *Synthetic {
	if cfg.Width > 0 && cfg.Height <= 0 {
		cfg.Height = cfg.Width * 3 / 4
	}
	return &Synthetic{
		cfg:  cfg,
		clk:  clk,
		pace: newPacer(clk, cfg.FPS),
		bars: []color.RGBA{
			{192, 192, 192, 255},
			{192, 192, 0, 255},
			{0, 192, 192, 255},
			{0, 192, 0, 255},
			{192, 0, 192, 255},
			{192, 0, 0, 255},
			{0, 0, 192, 255},
		},
	}
}

// Next returns the next generated frame
func (s *Synthetic) Next(ctx context.Context) (*types.Frame, *types.Pose, error) {
	if s.closed || (s.cfg.MaxFrames > 0 && s.seq >= s.cfg.MaxFrames) {
		return nil, nil, types.ErrEndOfStream
	}
	if err := s.pace.wait(ctx); err != nil {
		return nil, nil, err
	}

	seq := s.seq
	s.seq++

	frame := &types.Frame{
		Seq:       seq,
		Timestamp: s.clk.Now(),
		Width:     s.cfg.Width,
		Height:    s.cfg.Height,
	}
	if s.cfg.Width > 0 {
		frame.Image = s.colourBars(seq)
	}

	if s.cfg.MissEvery > 0 && (seq+1)%uint64(s.cfg.MissEvery) == 0 {
		return frame, nil, nil
	}
	return frame, Skeleton(s.cfg.Keypoints, seq), nil
}

// Skeleton returns the generated pose for frame seq. Coordinates stay inside
// [0, 1] for x and y.
func Skeleton(n int, seq uint64) *types.Pose {
	pose := &types.Pose{Landmarks: make([]types.Coord, n)}
	phase := float64(seq) * 2 * math.Pi / 120
	for i := range pose.Landmarks {
		a := phase + float64(i)*2*math.Pi/float64(n)
		r := 0.15 + 0.2*float64(i%3)/2
		pose.Landmarks[i] = types.Coord{
			0.5 + r*math.Cos(a),
			0.5 + r*math.Sin(a),
			0.1 * math.Sin(a+phase),
		}
	}
	return pose
}

func (s *Synthetic) colourBars(seq uint64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, s.cfg.Width, s.cfg.Height))
	barWidth := s.cfg.Width / len(s.bars)
	if barWidth == 0 {
		barWidth = 1
	}
	shift := int(seq) % s.cfg.Width
	for x := 0; x < s.cfg.Width; x++ {
		c := s.bars[((x+shift)%s.cfg.Width/barWidth)%len(s.bars)]
		for y := 0; y < s.cfg.Height; y++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// Close makes further Next calls report end of stream
func (s *Synthetic) Close() error {
	s.closed = true
	return nil
}
