// Package geometry maps model-space masks onto the rendered video viewport.
//
// Three coordinate spaces are involved: the model input (cropped and resized
// source frame), the source video frame, and the container the video is
// displayed in. The video is letterboxed (or pillarboxed) inside the container
// and the overlay covers only the part of the displayed video below the crop line.
package geometry

import (
	"image"
	"math"

	"github.com/menta2k/video-overlay/pkg/types"
)

// ComputeDisplayRect fits a video of videoW x videoH inside a container while
// preserving the video aspect ratio. The second return value is false when any
// dimension is not positive, in which case nothing should be rendered.
func ComputeDisplayRect(containerW, containerH, videoW, videoH float64) (types.Rect, bool) {
	if videoW <= 0 || videoH <= 0 || containerW <= 0 || containerH <= 0 {
		return types.Rect{}, false
	}

	containerRatio := containerW / containerH
	videoRatio := videoW / videoH

	if containerRatio > videoRatio {
		// Container is wider: height-constrained, pillarbox left/right
		w := containerH * videoRatio
		return types.Rect{
			X: (containerW - w) / 2,
			Y: 0,
			W: w,
			H: containerH,
		}, true
	}

	// Container is taller (or equal): width-constrained, letterbox top/bottom
	h := containerW / videoRatio
	return types.Rect{
		X: 0,
		Y: (containerH - h) / 2,
		W: containerW,
		H: h,
	}, true
}

// CropRect returns the part of the displayed rectangle below the top crop.
// The horizontal extent is unchanged since the full width is analyzed.
func CropRect(display types.Rect, cropFraction float64) types.Rect {
	cropFraction = clamp(cropFraction, 0, 1)
	return types.Rect{
		X: display.X,
		Y: display.Y + display.H*cropFraction,
		W: display.W,
		H: display.H * (1 - cropFraction),
	}
}

// OverlayRect combines ComputeDisplayRect and CropRect
func OverlayRect(containerW, containerH, videoW, videoH, cropFraction float64) (types.Rect, bool) {
	display, ok := ComputeDisplayRect(containerW, containerH, videoW, videoH)
	if !ok {
		return types.Rect{}, false
	}
	return CropRect(display, cropFraction), true
}

// Pixels rounds a rectangle to integer destination pixels
func Pixels(r types.Rect) image.Rectangle {
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	x1 := int(math.Round(r.X + r.W))
	y1 := int(math.Round(r.Y + r.H))
	return image.Rect(x0, y0, x1, y1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
