package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/pkg/types"
)

const (
	defaultCanvasWidth  = 640
	defaultCanvasHeight = 480
	pointRadius         = 3
)

var (
	canvasColour   = color.RGBA{R: 24, G: 24, B: 24, A: 255}
	keypointColour = color.RGBA{R: 0, G: 230, B: 64, A: 255}
	labelBg        = color.RGBA{A: 255}
	missColour     = color.RGBA{R: 230, G: 40, B: 40, A: 255}
)

// OverlayConfig configures the preview
type OverlayConfig struct {
	Width   int // preview width in pixels; 0 keeps the frame width
	Quality int // JPEG quality; 0 selects 75
}

// Overlay draws keypoints onto a scaled copy of each frame and fans the
// result out as JPEG to preview clients.
type Overlay struct {
	width   int
	quality int
	log     *logger.Module

	mu      sync.Mutex
	latest  *image.RGBA
	clients map[int]chan []byte
	nextID  int
	closed  bool
}

// NewOverlay creates a preview overlay
func NewOverlay(cfg OverlayConfig) *Overlay {
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 75
	}
	return &Overlay{
		width:   cfg.Width,
		quality: cfg.Quality,
		log:     logger.For("Overlay"),
		clients: make(map[int]chan []byte),
	}
}

// Draw renders the annotated preview frame
func (o *Overlay) Draw(frame *types.Frame, pose *types.Pose) *types.Frame {
	w, h := frame.Width, frame.Height
	if frame.Image != nil {
		b := frame.Image.Bounds()
		w, h = b.Dx(), b.Dy()
	}
	if w <= 0 || h <= 0 {
		w, h = defaultCanvasWidth, defaultCanvasHeight
	}

	dw := o.width
	if dw <= 0 {
		dw = w
	}
	dh := h * dw / w
	if dh <= 0 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	if frame.Image != nil {
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame.Image, frame.Image.Bounds(), xdraw.Src, nil)
	} else {
		xdraw.Draw(dst, dst.Bounds(), &image.Uniform{C: canvasColour}, image.Point{}, xdraw.Src)
	}

	var label string
	if pose != nil {
		for _, c := range pose.Landmarks {
			drawPoint(dst, c.X()*float64(dw), c.Y()*float64(dh), keypointColour)
		}
		label = fmt.Sprintf("Frame: %d  Keypoints: %d", frame.Seq, pose.Len())
		drawLabel(dst, 8, 8, label, color.White)
	} else {
		label = fmt.Sprintf("Frame: %d  no pose", frame.Seq)
		drawLabel(dst, 8, 8, label, missColour)
	}

	o.publish(dst)

	return &types.Frame{
		Seq:       frame.Seq,
		Timestamp: frame.Timestamp,
		Width:     dw,
		Height:    dh,
		Image:     dst,
	}
}

func drawPoint(dst *image.RGBA, x, y float64, c color.Color) {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return
	}
	// Points far outside the frame would overflow int conversion
	if math.Abs(x) > 1e6 || math.Abs(y) > 1e6 {
		return
	}
	cx, cy := int(math.Round(x)), int(math.Round(y))
	r := image.Rect(cx-pointRadius, cy-pointRadius, cx+pointRadius+1, cy+pointRadius+1).Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	xdraw.Draw(dst, r, &image.Uniform{C: c}, image.Point{}, xdraw.Src)
}

// drawLabel draws text on a black box with its top-left corner at (x, y)
func drawLabel(dst *image.RGBA, x, y int, text string, fg color.Color) {
	const pad = 2
	face := basicfont.Face7x13
	box := image.Rect(x, y, x+len(text)*face.Advance+2*pad, y+face.Height+2*pad)
	xdraw.Draw(dst, box.Intersect(dst.Bounds()), &image.Uniform{C: labelBg}, image.Point{}, xdraw.Src)

	d := font.Drawer{
		Dst:  dst,
		Src:  &image.Uniform{C: fg},
		Face: face,
		Dot:  fixed.P(x+pad, y+pad+face.Ascent),
	}
	d.DrawString(text)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// publish keeps the frame for snapshots and sends it to subscribers.
// Encoding is skipped when nobody is watching.
func (o *Overlay) publish(img *image.RGBA) {
	o.mu.Lock()
	o.latest = img
	n := len(o.clients)
	o.mu.Unlock()

	if n == 0 {
		return
	}

	data, err := encodeJPEG(img, o.quality)
	if err != nil {
		o.log.Debug("JPEG encode failed: %v", err)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.clients {
		select {
		case ch <- data:
		default:
			// Client too slow, skip this frame for this client
		}
	}
}

// Subscribe adds a preview client. The channel closes on Unsubscribe or
// Close.
func (o *Overlay) Subscribe() (int, <-chan []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	ch := make(chan []byte, 2) // Buffer 2 frames to avoid blocking
	if o.closed {
		close(ch)
		return id, ch
	}
	o.clients[id] = ch

	o.log.Debug("Client #%d subscribed (total clients: %d)", id, len(o.clients))
	return id, ch
}

// Unsubscribe removes a preview client
func (o *Overlay) Unsubscribe(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ch, ok := o.clients[id]; ok {
		close(ch)
		delete(o.clients, id)
		o.log.Debug("Client #%d unsubscribed (remaining clients: %d)", id, len(o.clients))
	}
}

// Snapshot returns the latest preview as JPEG
func (o *Overlay) Snapshot() ([]byte, bool) {
	o.mu.Lock()
	img := o.latest
	o.mu.Unlock()

	if img == nil {
		return nil, false
	}
	data, err := encodeJPEG(img, o.quality)
	if err != nil {
		o.log.Debug("Snapshot encode failed: %v", err)
		return nil, false
	}
	return data, true
}

// Close disconnects all preview clients
func (o *Overlay) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closed = true
	for id, ch := range o.clients {
		close(ch)
		delete(o.clients, id)
	}
	return nil
}

// BlankJPEG renders colour bars shown while no preview frame exists
func BlankJPEG() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, defaultCanvasWidth, defaultCanvasHeight))

	// Color bars: White, Yellow, Cyan, Green, Magenta, Red, Blue, Black
	colors := []color.RGBA{
		{R: 255, G: 255, B: 255, A: 255},
		{R: 255, G: 255, B: 0, A: 255},
		{R: 0, G: 255, B: 255, A: 255},
		{R: 0, G: 255, B: 0, A: 255},
		{R: 255, G: 0, B: 255, A: 255},
		{R: 255, G: 0, B: 0, A: 255},
		{R: 0, G: 0, B: 255, A: 255},
		{R: 0, G: 0, B: 0, A: 255},
	}

	barWidth := defaultCanvasWidth / len(colors)
	for i, c := range colors {
		bar := image.Rect(i*barWidth, 0, (i+1)*barWidth, defaultCanvasHeight)
		xdraw.Draw(img, bar, &image.Uniform{C: c}, image.Point{}, xdraw.Src)
	}
	drawLabel(img, 8, 8, "waiting for frames", color.White)

	return encodeJPEG(img, 75)
}
