// Package videooverlay analyzes the first seconds of a video with a semantic
// segmentation model and replays the results as colored overlays in sync with
// playback.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//		"time"
//
//		videooverlay "github.com/menta2k/video-overlay"
//		"github.com/menta2k/video-overlay/pkg/sampler"
//		"github.com/menta2k/video-overlay/pkg/segserver"
//		"github.com/menta2k/video-overlay/pkg/video"
//	)
//
//	func main() {
//		ctx := context.Background()
//
//		predictor, err := segserver.NewClient("http://localhost:8000", 30*time.Second)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		session := videooverlay.New(sampler.DefaultOptions(), predictor, nil)
//		if err := session.LoadModel(ctx); err != nil {
//			log.Fatal(err)
//		}
//
//		src, err := video.Open(ctx, "drive.mp4")
//		if err != nil {
//			log.Fatal(err)
//		}
//		session.SetSource(src)
//
//		if _, err := session.Analyze(ctx); err != nil {
//			log.Fatal(err)
//		}
//
//		frame, _ := session.Nearest(3.1)
//		log.Printf("%d results near 3.1s", len(frame.Results))
//	}
//
// The package ties together the components under pkg/:
//
// 1. Sampler (pkg/sampler): walks the timeline and calls the predictor
// 2. Cache (pkg/cache): stores results by timestamp for nearest lookup
// 3. Playback (pkg/playback): redraws the overlay while the video plays
//
// A Session is the unit of analysis. Changing the source resets it; results
// from a pass started before the reset are discarded.
package videooverlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/menta2k/video-overlay/pkg/cache"
	"github.com/menta2k/video-overlay/pkg/client"
	"github.com/menta2k/video-overlay/pkg/sampler"
	"github.com/menta2k/video-overlay/pkg/types"
	"github.com/menta2k/video-overlay/pkg/video"
)

// Version of the video overlay library
const Version = "1.0.0"

// Errors returned by the session guards
var (
	ErrNoSource        = errors.New("session: no video source")
	ErrSourceNotReady  = errors.New("session: video metadata not loaded")
	ErrModelNotReady   = errors.New("session: model not loaded")
	ErrAnalysisActive  = errors.New("session: analysis already running")
	ErrAlreadyComplete = errors.New("session: analysis already complete")
	ErrSessionReset    = errors.New("session: reset during analysis")
)

// Session owns the analysis state for one video source
type Session struct {
	opts      sampler.Options
	predictor client.Predictor
	logger    *slog.Logger
	id        string

	mu         sync.Mutex
	source     video.Source
	cache      *cache.Cache
	state      types.State
	progress   int
	generation uuid.UUID
	modelReady bool
	onProgress func(int)

	// inFlight stays set until the running pass returns, even after a reset
	inFlight   bool
	cancelPass context.CancelFunc
}

// New creates a Session. A nil logger discards log output.
func New(opts sampler.Options, predictor client.Predictor, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	id := uuid.NewString()
	return &Session{
		opts:       opts,
		predictor:  predictor,
		logger:     logger.With("session", id),
		id:         id,
		cache:      cache.New(),
		generation: uuid.New(),
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Options returns the sampling settings used for analysis
func (s *Session) Options() sampler.Options {
	return s.opts
}

// OnProgress installs a hook receiving the analysis percentage
func (s *Session) OnProgress(fn func(percent int)) {
	s.mu.Lock()
	s.onProgress = fn
	s.mu.Unlock()
}

// LoadModel prepares the predictor. Analysis is refused until it succeeds.
func (s *Session) LoadModel(ctx context.Context) error {
	if s.predictor == nil {
		return fmt.Errorf("no predictor configured")
	}
	if err := s.predictor.Load(ctx); err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}

	s.mu.Lock()
	s.modelReady = true
	s.mu.Unlock()

	s.logger.Info("model loaded")
	return nil
}

// ModelReady reports whether LoadModel has succeeded
func (s *Session) ModelReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelReady
}

// SetSource replaces the video and resets the session
func (s *Session) SetSource(src video.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
	s.resetLocked()
}

// Source returns the current video source
func (s *Session) Source() video.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Reset discards all results and returns to idle, keeping the source. A
// running pass is canceled; a new pass can start once it has returned.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	if s.state == types.StateAnalyzing {
		s.logger.Info("session reset during analysis")
	}
	if s.cancelPass != nil {
		s.cancelPass()
	}
	s.cache = cache.New()
	s.state = types.StateIdle
	s.progress = 0
	s.generation = uuid.New()
}

// State returns the lifecycle state and the analysis percentage
func (s *Session) State() (types.State, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.progress
}

// Cache returns the cache of the current generation
func (s *Session) Cache() *cache.Cache {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache
}

// Nearest returns the cached frame closest to t
func (s *Session) Nearest(t float64) (types.CachedFrame, bool) {
	return s.Cache().Nearest(t)
}

// pass is one analysis run bound to a generation
type pass struct {
	session    *Session
	generation uuid.UUID
	cache      *cache.Cache
	source     video.Source
	scheduler  *sampler.Scheduler
}

// begin checks the guards and moves the session to analyzing. The returned
// context is canceled by a reset.
func (s *Session) begin(ctx context.Context) (*pass, context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		return nil, nil, ErrNoSource
	}
	if !s.modelReady {
		return nil, nil, ErrModelNotReady
	}
	if s.inFlight || s.state == types.StateAnalyzing {
		return nil, nil, ErrAnalysisActive
	}
	if s.state == types.StateComplete {
		return nil, nil, ErrAlreadyComplete
	}
	if _, ok := s.source.Duration(); !ok {
		return nil, nil, ErrSourceNotReady
	}

	sched, err := sampler.New(s.predictor, s.opts, s.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid pipeline settings: %w", err)
	}

	passCtx, cancel := context.WithCancel(ctx)
	s.state = types.StateAnalyzing
	s.progress = 0
	s.inFlight = true
	s.cancelPass = cancel
	return &pass{
		session:    s,
		generation: s.generation,
		cache:      s.cache,
		source:     s.source,
		scheduler:  sched,
	}, passCtx, nil
}

// Analyze runs one analysis pass and blocks until it finishes
func (s *Session) Analyze(ctx context.Context) (sampler.Stats, error) {
	p, passCtx, err := s.begin(ctx)
	if err != nil {
		return sampler.Stats{}, err
	}
	return p.run(passCtx)
}

// StartAnalysis runs a pass on a new goroutine. The returned channel receives
// the result of the pass and is then closed.
func (s *Session) StartAnalysis(ctx context.Context) (<-chan error, error) {
	p, passCtx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		_, err := p.run(passCtx)
		done <- err
	}()
	return done, nil
}

func (p *pass) run(ctx context.Context) (sampler.Stats, error) {
	s := p.session
	stats, err := p.scheduler.Run(ctx, p.source, p)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = false
	s.cancelPass()
	s.cancelPass = nil

	if s.generation != p.generation {
		s.logger.Debug("discarding finished pass of a previous generation", "steps", stats.Steps)
		return stats, ErrSessionReset
	}

	if err != nil {
		// A retry must start from an empty cache
		s.cache = cache.New()
		s.state = types.StateIdle
		s.progress = 0
		s.logger.Error("analysis failed", "err", err, "steps", stats.Steps)
		return stats, fmt.Errorf("analysis failed: %w", err)
	}

	s.state = types.StateComplete
	s.progress = 100
	s.logger.Info("analysis complete", "frames", p.cache.Len(), "failed", stats.Failed)
	return stats, nil
}

// Record appends a frame if the pass still belongs to the current generation
func (p *pass) Record(frame types.CachedFrame) bool {
	s := p.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != p.generation {
		s.logger.Debug("dropping stale result", "timestamp", frame.Timestamp)
		return false
	}
	if err := p.cache.Append(frame); err != nil {
		s.logger.Warn("result not cached", "timestamp", frame.Timestamp, "err", err)
	}
	return true
}

// Progress updates the session percentage for the current generation
func (p *pass) Progress(percent int) {
	s := p.session
	s.mu.Lock()
	if s.generation != p.generation {
		s.mu.Unlock()
		return
	}
	s.progress = percent
	fn := s.onProgress
	s.mu.Unlock()

	if fn != nil {
		fn(percent)
	}
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
