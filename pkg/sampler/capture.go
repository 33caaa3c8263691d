package sampler

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/menta2k/video-overlay/pkg/types"
)

// capturer owns the offscreen buffers reused for every captured frame
type capturer struct {
	offscreen *image.RGBA
	rgb       types.RGBBuffer
}

// grab crops the bottom cropHeight rows of frame (starting at cropTop), scales
// them to width x height and returns the pixels without alpha.
// The returned buffer is overwritten by the next call.
func (c *capturer) grab(frame image.Image, cropTop, cropHeight, width, height int) types.RGBBuffer {
	if c.offscreen == nil || c.offscreen.Bounds().Dx() != width || c.offscreen.Bounds().Dy() != height {
		c.offscreen = image.NewRGBA(image.Rect(0, 0, width, height))
	}

	b := frame.Bounds()
	src := image.Rect(b.Min.X, b.Min.Y+cropTop, b.Max.X, b.Min.Y+cropTop+cropHeight).Intersect(b)
	xdraw.ApproxBiLinear.Scale(c.offscreen, c.offscreen.Bounds(), frame, src, xdraw.Src, nil)

	c.rgb.Resize(width, height)
	stripAlpha(c.rgb.Pix, c.offscreen.Pix, width, height, c.offscreen.Stride)
	return c.rgb
}

// stripAlpha packs RGBA rows into tightly packed RGB
func stripAlpha(dst, src []byte, width, height, stride int) {
	j := 0
	for y := 0; y < height; y++ {
		i := y * stride
		for x := 0; x < width; x++ {
			dst[j+0] = src[i+0]
			dst[j+1] = src[i+1]
			dst[j+2] = src[i+2]
			i += 4
			j += 3
		}
	}
}
