package compositor

import (
	"errors"
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"

	"github.com/menta2k/video-overlay/pkg/geometry"
	"github.com/menta2k/video-overlay/pkg/types"
)

// ErrInvalidMask is returned when a mask's dimensions do not match its buffer
var ErrInvalidMask = errors.New("compositor: invalid mask")

// Compositor colorizes segmentation masks and blits them onto a surface.
//
// The scratch raster is reused across calls and is only reallocated when the
// mask dimensions change. A Compositor must not be used from more than one
// goroutine at a time.
type Compositor struct {
	scratch     *image.NRGBA
	allocations int
}

// New creates a new Compositor
func New() *Compositor {
	return &Compositor{}
}

// Allocations returns how many times the scratch raster has been allocated
func (c *Compositor) Allocations() int {
	return c.allocations
}

// Composite draws mask onto dst at the destination rectangle (x, y, w, h),
// nearest-neighbor scaled. Every nonzero mask cell is painted with the solid
// color col; zero cells stay transparent. dst is not cleared.
func (c *Compositor) Composite(mask types.Raster, col color.NRGBA, dst xdraw.Image, x, y, w, h float64) error {
	if !mask.Valid() {
		return ErrInvalidMask
	}

	dr := geometry.Pixels(types.Rect{X: x, Y: y, W: w, H: h})
	if dr.Empty() {
		return nil
	}

	c.stencil(mask, col)

	xdraw.NearestNeighbor.Scale(dst, dr, c.scratch, c.scratch.Bounds(), xdraw.Over, nil)
	return nil
}

// stencil fills the scratch raster from the mask membership values
func (c *Compositor) stencil(mask types.Raster, col color.NRGBA) {
	c.ensureScratch(mask.Width, mask.Height)

	pix := c.scratch.Pix
	stride := c.scratch.Stride
	for y := 0; y < mask.Height; y++ {
		i := y * stride
		for x := 0; x < mask.Width; x++ {
			if mask.At(x, y) != 0 {
				pix[i+0] = col.R
				pix[i+1] = col.G
				pix[i+2] = col.B
				pix[i+3] = col.A
			} else {
				pix[i+0] = 0
				pix[i+1] = 0
				pix[i+2] = 0
				pix[i+3] = 0
			}
			i += 4
		}
	}
}

func (c *Compositor) ensureScratch(width, height int) {
	if c.scratch != nil {
		b := c.scratch.Bounds()
		if b.Dx() == width && b.Dy() == height {
			return
		}
	}
	c.scratch = image.NewNRGBA(image.Rect(0, 0, width, height))
	c.allocations++
}

// Clear makes every pixel of surface fully transparent
func Clear(surface *image.NRGBA) {
	clear(surface.Pix)
}
