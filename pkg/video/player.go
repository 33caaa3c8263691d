package video

import (
	"errors"
	"sync"
	"time"
)

// ErrPlayerClosed is returned by Play after Close
var ErrPlayerClosed = errors.New("video: player closed")

// Player tracks a playback position that advances with wall-clock time.
// It starts paused at 0 and stops at the media duration.
type Player struct {
	duration float64
	now      func() time.Time

	mu      sync.Mutex
	base    float64
	started time.Time
	playing bool
	closed  bool
}

// NewPlayer creates a player for media of the given duration in seconds
func NewPlayer(duration float64) *Player {
	return NewPlayerWithClock(duration, time.Now)
}

// NewPlayerWithClock creates a player that reads time from now
func NewPlayerWithClock(duration float64, now func() time.Time) *Player {
	return &Player{duration: duration, now: now}
}

// CurrentTime returns the playback position in seconds
func (p *Player) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position()
}

func (p *Player) position() float64 {
	t := p.base
	if p.playing {
		t += p.now().Sub(p.started).Seconds()
	}
	if t > p.duration {
		t = p.duration
	}
	return t
}

// Seek jumps to t, keeping the play/pause state
func (p *Player) Seek(t float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t < 0 {
		t = 0
	}
	if t > p.duration {
		t = p.duration
	}
	p.base = t
	p.started = p.now()
	return nil
}

// Play starts or resumes playback. Playing from the end restarts at 0.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPlayerClosed
	}
	if p.playing {
		return nil
	}
	if p.base >= p.duration {
		p.base = 0
	}
	p.started = p.now()
	p.playing = true
	return nil
}

// Pause freezes the playback position
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.base = p.position()
	p.playing = false
}

// Paused reports whether playback is stopped
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.playing
}

// Ended reports whether the position reached the media duration
func (p *Player) Ended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position() >= p.duration
}

// Close pauses the player and rejects further Play calls
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		p.base = p.position()
		p.playing = false
	}
	p.closed = true
}
