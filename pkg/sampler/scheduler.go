// Package sampler walks a video timeline at a fixed interval, captures the
// analyzed region of each frame and records the segmentation result per
// timestamp.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"github.com/menta2k/video-overlay/pkg/client"
	"github.com/menta2k/video-overlay/pkg/types"
	"github.com/menta2k/video-overlay/pkg/video"
)

var (
	// ErrDurationUnknown is returned when the source has not loaded its metadata
	ErrDurationUnknown = errors.New("sampler: video duration unknown")
	// ErrNoDimensions is returned for a source without a usable frame size
	ErrNoDimensions = errors.New("sampler: video has no dimensions")
	// ErrTooManyFailures aborts a pass after MaxConsecutiveFailures inference errors
	ErrTooManyFailures = errors.New("sampler: too many consecutive inference failures")
	// ErrRecorderClosed is returned when the recorder rejects a frame
	ErrRecorderClosed = errors.New("sampler: recorder closed")
)

// timestampEpsilon absorbs float error when deciding the number of steps
const timestampEpsilon = 1e-6

// Options controls how a video is sampled
type Options struct {
	Interval        float64 // seconds between sampled timestamps
	DurationCap     float64 // maximum analyzed duration in seconds
	CropFraction    float64 // top fraction of the frame excluded from analysis
	ModelInputWidth int     // width of the buffer sent to the predictor

	// MaxConsecutiveFailures aborts the pass after this many inference errors
	// in a row. Zero means failures are always skipped.
	MaxConsecutiveFailures int
}

// DefaultOptions returns the standard sampling settings
func DefaultOptions() Options {
	return Options{
		Interval:        0.2,
		DurationCap:     15,
		CropFraction:    0.20,
		ModelInputWidth: 640,
	}
}

// Validate checks that the options describe a usable sampling pass
func (o Options) Validate() error {
	if o.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %f", o.Interval)
	}
	if o.DurationCap <= 0 {
		return fmt.Errorf("duration cap must be positive, got %f", o.DurationCap)
	}
	if o.CropFraction < 0 || o.CropFraction >= 1 {
		return fmt.Errorf("crop fraction must be in [0, 1), got %f", o.CropFraction)
	}
	if o.ModelInputWidth <= 0 {
		return fmt.Errorf("model input width must be positive, got %d", o.ModelInputWidth)
	}
	if o.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("max consecutive failures cannot be negative")
	}
	return nil
}

// Recorder receives the output of a sampling pass
type Recorder interface {
	// Record stores a frame. Returning false stops the pass.
	Record(frame types.CachedFrame) bool
	// Progress reports completed steps as a percentage
	Progress(percent int)
}

// Stats summarizes a sampling pass
type Stats struct {
	Steps    int
	Recorded int
	Failed   int
}

// Scheduler runs sampling passes against a predictor.
//
// The capture buffers are owned by the Scheduler and reused between steps, so
// a Scheduler runs one pass at a time.
type Scheduler struct {
	predictor client.Predictor
	opts      Options
	logger    *slog.Logger
	capture   capturer
}

// New creates a Scheduler. A nil logger discards log output.
func New(predictor client.Predictor, opts Options, logger *slog.Logger) (*Scheduler, error) {
	if predictor == nil {
		return nil, fmt.Errorf("predictor is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{predictor: predictor, opts: opts, logger: logger}, nil
}

// Options returns the scheduler settings
func (s *Scheduler) Options() Options {
	return s.opts
}

// Timestamps returns the sampled times for a video of the given effective
// duration. The series starts at 0, advances by interval and ends exactly at
// effectiveDuration; only the last spacing may be shorter than interval.
func Timestamps(effectiveDuration, interval float64) []float64 {
	if effectiveDuration < 0 {
		effectiveDuration = 0
	}
	steps := int(math.Ceil(effectiveDuration/interval-timestampEpsilon)) + 1
	if steps < 1 {
		steps = 1
	}

	out := make([]float64, steps)
	for i := range out {
		out[i] = math.Min(float64(i)*interval, effectiveDuration)
	}
	return out
}

// CaptureSize computes the crop of a videoW x videoH frame and the height of the
// model input that keeps the cropped region's aspect ratio at modelWidth.
func CaptureSize(videoW, videoH int, cropFraction float64, modelWidth int) (cropTop, cropHeight, inputHeight int) {
	cropTop = int(math.Floor(float64(videoH) * cropFraction))
	cropHeight = videoH - cropTop
	if videoW > 0 {
		inputHeight = int(math.Floor(float64(modelWidth) * float64(cropHeight) / float64(videoW)))
	}
	return cropTop, cropHeight, inputHeight
}

// Run samples src and records one frame per successfully analyzed timestamp.
//
// The seek to the next timestamp overlaps with inference on the current
// capture; both finish before the next capture. Inference failures are logged
// and skipped. Seek failures, context cancellation and a rejecting recorder end
// the pass with an error.
func (s *Scheduler) Run(ctx context.Context, src video.Source, rec Recorder) (Stats, error) {
	var stats Stats

	duration, ok := src.Duration()
	if !ok {
		return stats, ErrDurationUnknown
	}
	videoW, videoH := src.Size()
	if videoW <= 0 || videoH <= 0 {
		return stats, ErrNoDimensions
	}

	effective := math.Min(duration, s.opts.DurationCap)
	cropTop, cropHeight, inputHeight := CaptureSize(videoW, videoH, s.opts.CropFraction, s.opts.ModelInputWidth)
	if cropHeight <= 0 || inputHeight <= 0 {
		return stats, fmt.Errorf("%w: crop leaves %dx%d", ErrNoDimensions, videoW, cropHeight)
	}

	times := Timestamps(effective, s.opts.Interval)
	total := len(times)

	s.logger.Info("analysis started",
		"duration", duration,
		"effective", effective,
		"steps", total,
		"input", fmt.Sprintf("%dx%d", s.opts.ModelInputWidth, inputHeight),
		"crop_top", cropTop,
	)

	if err := src.Seek(ctx, 0); err != nil {
		return stats, fmt.Errorf("initial seek failed: %w", err)
	}

	consecutive := 0
	for i, t := range times {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		frame, err := src.Frame()
		if err != nil {
			return stats, fmt.Errorf("no frame at %.3fs: %w", t, err)
		}
		buf := s.capture.grab(frame, cropTop, cropHeight, s.opts.ModelInputWidth, inputHeight)

		// Start seeking to the next timestamp while inference runs
		var seekDone chan error
		if i+1 < total {
			seekDone = make(chan error, 1)
			next := times[i+1]
			go func() {
				seekDone <- src.Seek(ctx, next)
			}()
		}

		results, predictErr := s.predictor.Predict(ctx, buf)

		var seekErr error
		if seekDone != nil {
			seekErr = <-seekDone
		}
		stats.Steps++

		if predictErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			stats.Failed++
			consecutive++
			s.logger.Warn("inference failed, skipping frame", "timestamp", t, "err", predictErr)
			if limit := s.opts.MaxConsecutiveFailures; limit > 0 && consecutive >= limit {
				return stats, fmt.Errorf("%w: %d in a row, last at %.3fs: %v", ErrTooManyFailures, consecutive, t, predictErr)
			}
		} else {
			consecutive = 0
			if !rec.Record(types.CachedFrame{Timestamp: t, Results: results}) {
				return stats, ErrRecorderClosed
			}
			stats.Recorded++
		}

		rec.Progress(int(math.Round(100 * float64(i+1) / float64(total))))

		if seekErr != nil {
			return stats, fmt.Errorf("seek to %.3fs failed: %w", times[i+1], seekErr)
		}

		runtime.Gosched()
	}

	if err := src.Seek(ctx, 0); err != nil {
		return stats, fmt.Errorf("final seek failed: %w", err)
	}

	s.logger.Info("analysis finished", "steps", stats.Steps, "recorded", stats.Recorded, "failed", stats.Failed)
	return stats, nil
}
