package geometry

import (
	"image"
	"math"
	"testing"

	"github.com/menta2k/video-overlay/pkg/types"
)

const eps = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestComputeDisplayRectWideContainer(t *testing.T) {
	// 16:9 video inside a 2000x500 container is height-constrained
	r, ok := ComputeDisplayRect(2000, 500, 1920, 1080)
	if !ok {
		t.Fatal("expected a renderable rectangle")
	}

	wantW := 500 * 1920.0 / 1080.0
	if !almostEqual(r.H, 500) || !almostEqual(r.W, wantW) {
		t.Errorf("Expected %fx500, got %fx%f", wantW, r.W, r.H)
	}
	if !almostEqual(r.X, (2000-wantW)/2) || r.Y != 0 {
		t.Errorf("Expected centered horizontally, got offset %f,%f", r.X, r.Y)
	}
}

func TestComputeDisplayRectTallContainer(t *testing.T) {
	r, ok := ComputeDisplayRect(800, 800, 1600, 900)
	if !ok {
		t.Fatal("expected a renderable rectangle")
	}

	if !almostEqual(r.W, 800) || !almostEqual(r.H, 450) {
		t.Errorf("Expected 800x450, got %fx%f", r.W, r.H)
	}
	if r.X != 0 || !almostEqual(r.Y, 175) {
		t.Errorf("Expected offset 0,175, got %f,%f", r.X, r.Y)
	}
}

func TestComputeDisplayRectMirrorBranches(t *testing.T) {
	// Transposing both container and video must transpose the result
	a, _ := ComputeDisplayRect(1000, 400, 640, 480)
	b, _ := ComputeDisplayRect(400, 1000, 480, 640)

	if !almostEqual(a.X, b.Y) || !almostEqual(a.Y, b.X) || !almostEqual(a.W, b.H) || !almostEqual(a.H, b.W) {
		t.Errorf("Expected mirrored rectangles, got %+v and %+v", a, b)
	}
}

func TestComputeDisplayRectZeroDimensions(t *testing.T) {
	cases := [][4]float64{
		{800, 600, 0, 480},
		{800, 600, 640, 0},
		{0, 600, 640, 480},
		{800, 0, 640, 480},
	}
	for _, c := range cases {
		if _, ok := ComputeDisplayRect(c[0], c[1], c[2], c[3]); ok {
			t.Errorf("Expected no render for %v", c)
		}
	}
}

func TestComputeDisplayRectContainedAndAspectPreserved(t *testing.T) {
	containers := [][2]float64{{320, 240}, {1920, 1080}, {500, 1500}, {1, 1}, {1234, 567}}
	videos := [][2]float64{{640, 480}, {1920, 1080}, {1080, 1920}, {3, 1}, {17, 13}}

	for _, c := range containers {
		for _, v := range videos {
			r, ok := ComputeDisplayRect(c[0], c[1], v[0], v[1])
			if !ok {
				t.Fatalf("unexpected no-render for %v in %v", v, c)
			}
			if r.X < -eps || r.Y < -eps || r.X+r.W > c[0]+1e-6 || r.Y+r.H > c[1]+1e-6 {
				t.Errorf("Rect %+v escapes container %v", r, c)
			}
			if !almostEqual(r.W/r.H, v[0]/v[1]) {
				t.Errorf("Aspect ratio %f differs from video %f", r.W/r.H, v[0]/v[1])
			}
			// One axis always fills the container
			if !almostEqual(r.W, c[0]) && !almostEqual(r.H, c[1]) {
				t.Errorf("Rect %+v does not fill either axis of %v", r, c)
			}
		}
	}
}

func TestCropRect(t *testing.T) {
	display := types.Rect{X: 10, Y: 100, W: 800, H: 450}
	r := CropRect(display, 0.2)

	if r.X != 10 || r.W != 800 {
		t.Errorf("Expected horizontal placement unchanged, got %+v", r)
	}
	if !almostEqual(r.Y, 190) || !almostEqual(r.H, 360) {
		t.Errorf("Expected y=190 h=360, got y=%f h=%f", r.Y, r.H)
	}
}

func TestOverlayRect(t *testing.T) {
	if _, ok := OverlayRect(800, 600, 0, 0, 0.2); ok {
		t.Error("Expected no overlay for zero video size")
	}

	r, ok := OverlayRect(800, 600, 800, 600, 0.25)
	if !ok {
		t.Fatal("expected overlay rectangle")
	}
	if !almostEqual(r.Y, 150) || !almostEqual(r.H, 450) {
		t.Errorf("Expected y=150 h=450, got %+v", r)
	}
}

func TestPixels(t *testing.T) {
	got := Pixels(types.Rect{X: 10.4, Y: 20.6, W: 99.2, H: 50})
	want := image.Rect(10, 21, 110, 71)
	if got != want {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
