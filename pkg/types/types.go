package types

import "math"

// Raster is a typed pixel buffer produced by the segmentation model.
// Pixels are stored row-major with Channels bytes per pixel.
type Raster struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// Valid reports whether the raster dimensions match its buffer
func (r Raster) Valid() bool {
	if r.Width <= 0 || r.Height <= 0 || r.Channels <= 0 {
		return false
	}
	return len(r.Pix) >= r.Width*r.Height*r.Channels
}

// At returns the first channel of the pixel at (x, y)
func (r Raster) At(x, y int) byte {
	return r.Pix[(y*r.Width+x)*r.Channels]
}

// SegmentationResult is one labeled mask within an analyzed frame
type SegmentationResult struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Mask  Raster  `json:"-"`
}

// CachedFrame holds every result produced for one sampled timestamp
type CachedFrame struct {
	Timestamp float64              `json:"timestamp"`
	Results   []SegmentationResult `json:"results"`
}

// RGBBuffer is a packed 3-channel pixel buffer sent to the predictor.
// It never carries an alpha channel.
type RGBBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// Resize makes the buffer hold width*height pixels, reusing storage when possible
func (b *RGBBuffer) Resize(width, height int) {
	n := width * height * 3
	if cap(b.Pix) < n {
		b.Pix = make([]byte, n)
	}
	b.Pix = b.Pix[:n]
	b.Width = width
	b.Height = height
}

// State is the lifecycle of an analysis session
type State int

const (
	StateIdle State = iota
	StateAnalyzing
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAnalyzing:
		return "analyzing"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Rect is an axis-aligned rectangle in container pixels
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Empty reports whether the rectangle covers no area
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0 || math.IsNaN(r.W) || math.IsNaN(r.H)
}
