// Package playback redraws the segmentation overlay in step with a playing
// video, using the results cached by the analysis pass.
package playback

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/menta2k/video-overlay/pkg/compositor"
	"github.com/menta2k/video-overlay/pkg/geometry"
	"github.com/menta2k/video-overlay/pkg/labels"
	"github.com/menta2k/video-overlay/pkg/types"
)

// Player is the playback position handle of the video
type Player interface {
	CurrentTime() float64
	Seek(t float64) error
	Play() error
	Pause()
	Paused() bool
	Ended() bool
}

// Lookup finds the cached frame closest to a playback time
type Lookup interface {
	Nearest(t float64) (types.CachedFrame, bool)
}

// Viewport reports the size of the display container and of the video inside it
type Viewport interface {
	ContainerSize() (int, int)
	VideoSize() (int, int)
}

// Options controls the refresh loop
type Options struct {
	DurationCap  float64
	CropFraction float64
	TickInterval time.Duration
}

// DefaultOptions refreshes at roughly 60 Hz with a 15s loop
func DefaultOptions() Options {
	return Options{
		DurationCap:  15,
		CropFraction: 0.20,
		TickInterval: 16 * time.Millisecond,
	}
}

// Validate checks the loop settings
func (o Options) Validate() error {
	if o.DurationCap <= 0 {
		return fmt.Errorf("duration cap must be positive, got %f", o.DurationCap)
	}
	if o.CropFraction < 0 || o.CropFraction >= 1 {
		return fmt.Errorf("crop fraction must be in [0, 1), got %f", o.CropFraction)
	}
	if o.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", o.TickInterval)
	}
	return nil
}

// Frame describes one rendered tick. Surface is only valid until the
// render hook returns.
type Frame struct {
	Time       float64
	Matched    bool
	Timestamp  float64
	Surface    *image.NRGBA
	Categories []string
}

// Synchronizer owns the overlay surface and the refresh loop
type Synchronizer struct {
	player   Player
	lookup   Lookup
	viewport Viewport
	opts     Options
	logger   *slog.Logger
	onRender func(Frame)

	// drawMu guards everything a tick touches
	drawMu  sync.Mutex
	comp    *compositor.Compositor
	surface *image.NRGBA
	active  []string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Synchronizer. A nil logger discards log output.
func New(player Player, lookup Lookup, viewport Viewport, opts Options, logger *slog.Logger) (*Synchronizer, error) {
	if player == nil || lookup == nil || viewport == nil {
		return nil, fmt.Errorf("player, lookup and viewport are required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	done := make(chan struct{})
	close(done)

	return &Synchronizer{
		player:   player,
		lookup:   lookup,
		viewport: viewport,
		opts:     opts,
		logger:   logger,
		comp:     compositor.New(),
		surface:  image.NewNRGBA(image.Rect(0, 0, 0, 0)),
		done:     done,
	}, nil
}

// OnRender installs a hook called after every tick. It must be set before Start.
func (s *Synchronizer) OnRender(fn func(Frame)) {
	s.onRender = fn
}

// Tick performs one refresh. It returns false when playback has stopped and
// the loop should end.
func (s *Synchronizer) Tick() bool {
	if s.player.Ended() || s.player.Paused() {
		return false
	}

	t := s.player.CurrentTime()
	if t >= s.opts.DurationCap {
		if err := s.player.Seek(0); err != nil {
			s.logger.Warn("loop seek failed", "time", t, "err", err)
			return true
		}
		s.logger.Debug("playback looped", "time", t, "cap", s.opts.DurationCap)
		t = s.player.CurrentTime()
	}

	frame, matched := s.lookup.Nearest(t)

	s.drawMu.Lock()
	cw, ch := s.viewport.ContainerSize()
	s.resize(cw, ch)
	compositor.Clear(s.surface)

	present := make(map[string]bool)
	if matched {
		present = s.draw(frame, cw, ch)
	}
	s.active = s.active[:0]
	for _, c := range labels.Categories() {
		if present[c.Name] {
			s.active = append(s.active, c.Name)
		}
	}
	out := Frame{
		Time:       t,
		Matched:    matched,
		Timestamp:  frame.Timestamp,
		Surface:    s.surface,
		Categories: append([]string(nil), s.active...),
	}
	s.drawMu.Unlock()

	if s.onRender != nil {
		s.onRender(out)
	}
	return true
}

// draw composites every mapped result and returns the categories drawn
func (s *Synchronizer) draw(frame types.CachedFrame, cw, ch int) map[string]bool {
	present := make(map[string]bool)

	vw, vh := s.viewport.VideoSize()
	rect, ok := geometry.OverlayRect(float64(cw), float64(ch), float64(vw), float64(vh), s.opts.CropFraction)
	if !ok {
		return present
	}

	for _, r := range frame.Results {
		cat, ok := labels.Classify(r.Label)
		if !ok {
			continue
		}
		if err := s.comp.Composite(r.Mask, cat.Color, s.surface, rect.X, rect.Y, rect.W, rect.H); err != nil {
			s.logger.Debug("mask skipped", "label", r.Label, "timestamp", frame.Timestamp, "err", err)
			continue
		}
		present[cat.Name] = true
	}
	return present
}

// resize makes the surface match the container, keeping it when unchanged
func (s *Synchronizer) resize(w, h int) {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	b := s.surface.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return
	}
	s.surface = image.NewNRGBA(image.Rect(0, 0, w, h))
}

// Surface returns a copy of the overlay as of the last tick
func (s *Synchronizer) Surface() *image.NRGBA {
	s.drawMu.Lock()
	defer s.drawMu.Unlock()
	out := image.NewNRGBA(s.surface.Bounds())
	copy(out.Pix, s.surface.Pix)
	return out
}

// ActiveCategories returns the category names drawn on the last tick
func (s *Synchronizer) ActiveCategories() []string {
	s.drawMu.Lock()
	defer s.drawMu.Unlock()
	return append([]string(nil), s.active...)
}

// Playing reports whether the refresh loop is running
func (s *Synchronizer) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Done returns a channel closed when the current loop exits
func (s *Synchronizer) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Start engages playback and runs the refresh loop on its own goroutine.
// Starting while already running does nothing. If the player rejects Play the
// error is returned and the loop is not started.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if err := s.player.Play(); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(loopCtx, cancel, s.done)
	return nil
}

func (s *Synchronizer) loop(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer func() {
		cancel()
		s.mu.Lock()
		// A Start after Stop may already own the state
		if s.done == done {
			s.running = false
		}
		s.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	if !s.Tick() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.Tick() {
				return
			}
		}
	}
}

// Stop cancels the next tick and pauses the player. The loop counts as
// stopped immediately, so a following Start engages playback again.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
	s.player.Pause()
	s.mu.Unlock()
}

// Toggle stops a running loop or starts a stopped one
func (s *Synchronizer) Toggle(ctx context.Context) error {
	if s.Playing() {
		s.Stop()
		return nil
	}
	return s.Start(ctx)
}
