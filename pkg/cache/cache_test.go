package cache

import (
	"errors"
	"math"
	"testing"

	"github.com/menta2k/video-overlay/pkg/types"
)

func frameAt(ts float64, label string) types.CachedFrame {
	return types.CachedFrame{
		Timestamp: ts,
		Results:   []types.SegmentationResult{{Label: label, Score: 0.9}},
	}
}

func buildCache(t *testing.T, timestamps ...float64) *Cache {
	t.Helper()
	c := New()
	for _, ts := range timestamps {
		if err := c.Append(frameAt(ts, "car")); err != nil {
			t.Fatalf("Append(%f) failed: %v", ts, err)
		}
	}
	return c
}

func TestNearestEmpty(t *testing.T) {
	if _, ok := New().Nearest(1.0); ok {
		t.Error("Expected no frame from empty cache")
	}
}

func TestNearestSparse(t *testing.T) {
	c := buildCache(t, 0, 1.0)

	f, ok := c.Nearest(0.6)
	if !ok {
		t.Fatal("Expected a frame")
	}
	if f.Timestamp != 1.0 {
		t.Errorf("Expected t=1.0, got %f", f.Timestamp)
	}
}

func TestNearestTieGoesToEarliest(t *testing.T) {
	c := buildCache(t, 0, 1.0, 2.0)

	f, _ := c.Nearest(0.5)
	if f.Timestamp != 0 {
		t.Errorf("Expected tie to pick t=0, got %f", f.Timestamp)
	}
	f, _ = c.Nearest(1.5)
	if f.Timestamp != 1.0 {
		t.Errorf("Expected tie to pick t=1.0, got %f", f.Timestamp)
	}
}

func TestNearestFarAway(t *testing.T) {
	c := buildCache(t, 2.0)

	for _, q := range []float64{-100, 0, 2, 1e6} {
		f, ok := c.Nearest(q)
		if !ok || f.Timestamp != 2.0 {
			t.Errorf("Nearest(%f) = %f,%v; want 2.0,true", q, f.Timestamp, ok)
		}
	}
}

func TestNearestMinimizesDistance(t *testing.T) {
	c := buildCache(t, 0, 0.2, 0.4, 0.6, 0.8, 1.0)
	entries := c.Entries()

	for q := -0.5; q <= 1.5; q += 0.013 {
		f, _ := c.Nearest(q)
		got := math.Abs(f.Timestamp - q)
		for _, e := range entries {
			if d := math.Abs(e.Timestamp - q); d < got {
				t.Fatalf("Nearest(%f) returned %f but %f is closer", q, f.Timestamp, e.Timestamp)
			}
		}
	}
}

func TestAppendOutOfOrder(t *testing.T) {
	c := buildCache(t, 0, 0.2)

	if err := c.Append(frameAt(0.2, "bus")); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("Expected ErrOutOfOrder for duplicate, got %v", err)
	}
	if err := c.Append(frameAt(0.1, "bus")); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("Expected ErrOutOfOrder for earlier timestamp, got %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", c.Len())
	}
}

func TestEntriesIsCopy(t *testing.T) {
	c := buildCache(t, 0, 0.2)
	entries := c.Entries()
	entries[0].Timestamp = 99

	f, _ := c.Nearest(0)
	if f.Timestamp != 0 {
		t.Error("Mutating Entries() result changed the cache")
	}
}

func TestLastAndTimestamps(t *testing.T) {
	c := New()
	if _, ok := c.Last(); ok {
		t.Error("Expected no last frame")
	}

	c = buildCache(t, 0, 0.5, 1.5)
	last, ok := c.Last()
	if !ok || last.Timestamp != 1.5 {
		t.Errorf("Expected last t=1.5, got %f", last.Timestamp)
	}

	ts := c.Timestamps()
	want := []float64{0, 0.5, 1.5}
	if len(ts) != len(want) {
		t.Fatalf("Expected %d timestamps, got %d", len(want), len(ts))
	}
	for i := range want {
		if ts[i] != want[i] {
			t.Errorf("Timestamp %d: expected %f, got %f", i, want[i], ts[i])
		}
	}
}

func BenchmarkNearest(b *testing.B) {
	c := New()
	for i := 0; i < 76; i++ {
		c.Append(frameAt(float64(i)*0.2, "car"))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Nearest(float64(i%150) * 0.1)
	}
}
