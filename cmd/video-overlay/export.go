package main

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"math"
	"time"

	videooverlay "github.com/menta2k/video-overlay"
	"github.com/menta2k/video-overlay/internal/config"
	"github.com/menta2k/video-overlay/internal/utils"
	"github.com/menta2k/video-overlay/pkg/geometry"
	"github.com/menta2k/video-overlay/pkg/imageio"
	"github.com/menta2k/video-overlay/pkg/playback"
	"github.com/menta2k/video-overlay/pkg/video"
)

var cropLineColor = color.NRGBA{R: 255, G: 64, B: 64, A: 200}

// viewport is a fixed-size display container
type viewport struct {
	containerW, containerH int
	src                    video.Source
}

func (v viewport) ContainerSize() (int, int) { return v.containerW, v.containerH }
func (v viewport) VideoSize() (int, int)     { return v.src.Size() }

// runExport plays one loop on a stepped clock and writes a composited image
// for every tick. It returns the number of frames written.
func runExport(ctx context.Context, session *videooverlay.Session, src video.Source, cfg *config.Config, fps float64, logger *slog.Logger) (int, error) {
	if fps <= 0 {
		return 0, fmt.Errorf("export fps must be positive, got %f", fps)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	duration, ok := src.Duration()
	if !ok {
		return 0, videooverlay.ErrSourceNotReady
	}
	end := math.Min(duration, cfg.Pipeline.DurationCap)

	origin := time.Unix(0, 0)
	now := origin
	player := video.NewPlayerWithClock(duration, func() time.Time { return now })
	defer player.Close()

	vp := viewport{containerW: cfg.Playback.ContainerWidth, containerH: cfg.Playback.ContainerHeight, src: src}
	syncer, err := playback.New(player, session, vp, cfg.PlaybackOptions(), logger)
	if err != nil {
		return 0, err
	}

	vw, vh := src.Size()
	lineY := -1
	if rect, ok := geometry.OverlayRect(float64(vp.containerW), float64(vp.containerH), float64(vw), float64(vh), cfg.Pipeline.CropFraction); ok {
		lineY = geometry.Pixels(rect).Min.Y
	}

	written := 0
	var renderErr error
	syncer.OnRender(func(f playback.Frame) {
		if renderErr != nil {
			return
		}
		if err := src.Seek(ctx, f.Time); err != nil {
			renderErr = fmt.Errorf("seek to %.3fs: %w", f.Time, err)
			return
		}
		frame, err := src.Frame()
		if err != nil {
			renderErr = err
			return
		}

		out := imageio.Compose(frame, f.Surface, vp.containerW, vp.containerH)
		if lineY >= 0 {
			imageio.DrawCropLine(out, lineY, cropLineColor, 2)
		}

		path := utils.FrameFilename(cfg.Output.Dir, written, f.Time, cfg.Output.Format)
		if err := imageio.SaveImage(out, path, cfg.Output.Format, cfg.Output.Quality, cfg.Output.Lossless); err != nil {
			renderErr = err
			return
		}
		written++
		logger.Debug("wrote frame", "path", path, "matched", f.Matched, "cached", f.Timestamp, "categories", f.Categories)
	})

	if err := player.Play(); err != nil {
		return 0, err
	}
	step := 1 / fps
	for i := 0; ; i++ {
		t := float64(i) * step
		if t >= end {
			break
		}
		if err := ctx.Err(); err != nil {
			return written, err
		}
		now = origin.Add(time.Duration(t * float64(time.Second)))
		if !syncer.Tick() {
			break
		}
		if renderErr != nil {
			return written, renderErr
		}
	}
	return written, nil
}
