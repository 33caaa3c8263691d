package cache

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/menta2k/video-overlay/pkg/types"
)

// ErrOutOfOrder is returned when a frame does not advance the timeline
var ErrOutOfOrder = errors.New("cache: timestamp out of order")

// Cache is an append-only, time-ordered collection of analyzed frames.
//
// It supports a single writer and any number of concurrent readers. A cache is
// never cleared in place; a new source gets a new Cache.
type Cache struct {
	mu     sync.RWMutex
	frames []types.CachedFrame
}

// New creates an empty cache
func New() *Cache {
	return &Cache{}
}

// Append adds a frame after the last one. Timestamps must be strictly increasing.
func (c *Cache) Append(frame types.CachedFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := len(c.frames); n > 0 && frame.Timestamp <= c.frames[n-1].Timestamp {
		return fmt.Errorf("%w: %.3f after %.3f", ErrOutOfOrder, frame.Timestamp, c.frames[n-1].Timestamp)
	}
	c.frames = append(c.frames, frame)
	return nil
}

// Nearest returns the frame whose timestamp is closest to t.
// Ties go to the earliest frame. The result is false only for an empty cache.
func (c *Cache) Nearest(t float64) (types.CachedFrame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.frames) == 0 {
		return types.CachedFrame{}, false
	}

	best := 0
	bestDist := math.Abs(c.frames[0].Timestamp - t)
	for i := 1; i < len(c.frames); i++ {
		d := math.Abs(c.frames[i].Timestamp - t)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return c.frames[best], true
}

// Len returns the number of cached frames
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.frames)
}

// Last returns the most recently appended frame
func (c *Cache) Last() (types.CachedFrame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.frames) == 0 {
		return types.CachedFrame{}, false
	}
	return c.frames[len(c.frames)-1], true
}

// Entries returns a copy of the frame list in timestamp order
func (c *Cache) Entries() []types.CachedFrame {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.CachedFrame, len(c.frames))
	copy(out, c.frames)
	return out
}

// Timestamps returns the cached timestamps in order
func (c *Cache) Timestamps() []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]float64, len(c.frames))
	for i, f := range c.frames {
		out[i] = f.Timestamp
	}
	return out
}
