package types

import (
	"image"
	"time"
)

// Coord is one normalized keypoint coordinate triple (x, y, z).
type Coord [3]float64

// X returns the x component
func (c Coord) X() float64 { return c[0] }

// Y returns the y component
func (c Coord) Y() float64 { return c[1] }

// Z returns the z component
func (c Coord) Z() float64 { return c[2] }

// Pose is one frame's detection. Landmarks are indexed by keypoint registry
// index. A frame without a detection carries a nil *Pose.
type Pose struct {
	Landmarks []Coord
}

// Len returns the number of coordinate triples
func (p *Pose) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Landmarks)
}

// Frame represents one acquired frame with metadata
type Frame struct {
	Seq       uint64      // Sequential frame number from the source
	Timestamp time.Time   // Frame capture timestamp
	Width     int         // Frame width in pixels (0 if unknown)
	Height    int         // Frame height in pixels (0 if unknown)
	Image     image.Image // Decoded pixels, nil for sources that only carry poses
}
