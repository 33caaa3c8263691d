// Package imageio loads still frames, encodes predictor input and writes
// composited overlay frames.
package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/video-overlay/internal/utils"
	"github.com/menta2k/video-overlay/pkg/geometry"
	"github.com/menta2k/video-overlay/pkg/types"
)

// LoadImage loads an image from a file path with WebP support
func LoadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.HasSuffix(strings.ToLower(path), ".webp") {
		if img, err := webp.Decode(f); err == nil {
			return img, nil
		}
	}
	if _, err := f.Seek(0, 0); err == nil {
		if img, _, err := image.Decode(f); err == nil {
			return img, nil
		}
	}
	return nil, fmt.Errorf("image: unknown format for %s", path)
}

// LoadDir loads every image in dir in file name order. All frames must share
// the size of the first one.
func LoadDir(dir string) ([]image.Image, error) {
	files, err := utils.ListImageFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image files in %s", dir)
	}

	frames := make([]image.Image, 0, len(files))
	var size image.Point
	for i, path := range files {
		img, err := LoadImage(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		b := img.Bounds()
		if i == 0 {
			size = b.Size()
		} else if b.Size() != size {
			return nil, fmt.Errorf("frame %s is %dx%d, expected %dx%d", path, b.Dx(), b.Dy(), size.X, size.Y)
		}
		frames = append(frames, img)
	}
	return frames, nil
}

// SaveImage saves an image to a file with the specified format and quality
func SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// RGBImage expands a packed RGB buffer into an opaque image
func RGBImage(buf types.RGBBuffer) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, buf.Width, buf.Height))
	j := 0
	for i := 0; i+2 < len(buf.Pix) && j+3 < len(img.Pix); i += 3 {
		img.Pix[j+0] = buf.Pix[i+0]
		img.Pix[j+1] = buf.Pix[i+1]
		img.Pix[j+2] = buf.Pix[i+2]
		img.Pix[j+3] = 0xff
		j += 4
	}
	return img
}

// EncodeJPEG encodes a packed RGB buffer as JPEG for model backends that
// take compressed images
func EncodeJPEG(buf types.RGBBuffer, quality int) ([]byte, error) {
	var out bytes.Buffer
	if err := imaging.Encode(&out, RGBImage(buf), imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return out.Bytes(), nil
}

// Compose letterboxes frame into a containerW x containerH canvas and draws
// overlay on top. The overlay must already match the container size.
func Compose(frame image.Image, overlay *image.NRGBA, containerW, containerH int) *image.NRGBA {
	canvas := imaging.New(containerW, containerH, color.NRGBA{0, 0, 0, 255})

	b := frame.Bounds()
	display, ok := geometry.ComputeDisplayRect(float64(containerW), float64(containerH), float64(b.Dx()), float64(b.Dy()))
	if ok {
		r := geometry.Pixels(display)
		if r.Dx() > 0 && r.Dy() > 0 {
			resized := imaging.Resize(frame, r.Dx(), r.Dy(), imaging.Linear)
			canvas = imaging.Paste(canvas, resized, r.Min)
		}
	}

	if overlay != nil {
		canvas = imaging.Overlay(canvas, overlay, image.Pt(0, 0), 1.0)
	}
	return canvas
}

// DrawCropLine marks the top edge of the analyzed region
func DrawCropLine(img *image.NRGBA, y int, c color.NRGBA, stroke int) {
	for s := 0; s < stroke; s++ {
		drawHLine(img, y+s, 0, img.Bounds().Dx(), c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}
