package video

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"
)

// Sequence is an in-memory video made of still frames at a fixed frame rate
type Sequence struct {
	frames []image.Image
	fps    float64

	// SeekDelay simulates the latency of a real seek
	SeekDelay time.Duration

	mu      sync.Mutex
	current int
	seeks   []float64
}

// NewSequence creates a sequence from frames played at fps
func NewSequence(frames []image.Image, fps float64) (*Sequence, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("sequence needs at least one frame")
	}
	if fps <= 0 {
		return nil, fmt.Errorf("fps must be positive, got %f", fps)
	}
	return &Sequence{frames: frames, fps: fps}, nil
}

// Duration returns len(frames)/fps
func (s *Sequence) Duration() (float64, bool) {
	return float64(len(s.frames)) / s.fps, true
}

// Size returns the dimensions of the first frame
func (s *Sequence) Size() (int, int) {
	b := s.frames[0].Bounds()
	return b.Dx(), b.Dy()
}

// FPS returns the sequence frame rate
func (s *Sequence) FPS() float64 {
	return s.fps
}

// Seek moves to the frame displayed at t
func (s *Sequence) Seek(ctx context.Context, t float64) error {
	if s.SeekDelay > 0 {
		timer := time.NewTimer(s.SeekDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	idx := int(math.Floor(t*s.fps + 1e-9))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.frames) {
		idx = len(s.frames) - 1
	}

	s.mu.Lock()
	s.current = idx
	s.seeks = append(s.seeks, t)
	s.mu.Unlock()
	return nil
}

// Frame returns the frame at the current position
func (s *Sequence) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[s.current], nil
}

// Index returns the current frame index
func (s *Sequence) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Seeks returns every seek target in call order
func (s *Sequence) Seeks() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.seeks))
	copy(out, s.seeks)
	return out
}
