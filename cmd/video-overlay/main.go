package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lmittmann/tint"

	videooverlay "github.com/menta2k/video-overlay"
	"github.com/menta2k/video-overlay/internal/config"
	"github.com/menta2k/video-overlay/internal/utils"
	"github.com/menta2k/video-overlay/pkg/client"
	"github.com/menta2k/video-overlay/pkg/imageio"
	"github.com/menta2k/video-overlay/pkg/ollama"
	"github.com/menta2k/video-overlay/pkg/segserver"
	"github.com/menta2k/video-overlay/pkg/video"
)

func main() {
	var in, configPath, backend, url, model, outDir, format string
	var quality, maskScale int
	var fps, exportFPS float64
	var lossless, export, tui, debug, writeConfig bool

	flag.StringVar(&in, "in", "", "input video file or directory of frames (jpg/png/webp)")
	flag.Float64Var(&fps, "fps", 10, "frame rate used when -in is a directory")
	flag.StringVar(&configPath, "config", "", "config file (default ~/.config/video-overlay/config.json if present)")
	flag.BoolVar(&writeConfig, "write-config", false, "write the effective configuration to -config and exit")

	flag.StringVar(&backend, "backend", "", "predictor backend: segserver or ollama")
	flag.StringVar(&url, "url", "", "predictor server URL")
	flag.StringVar(&model, "model", "", "ollama model name")
	flag.IntVar(&maskScale, "maskscale", 0, "ollama mask width in cells")

	flag.StringVar(&outDir, "out", "", "output directory for exported frames")
	flag.StringVar(&format, "format", "", "export format: jpg|png|webp")
	flag.IntVar(&quality, "quality", 0, "JPEG/WebP export quality (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP export lossless mode")
	flag.BoolVar(&export, "export", false, "render one playback loop to image files")
	flag.Float64Var(&exportFPS, "export-fps", 10, "frames written per second of video when exporting")

	flag.BoolVar(&tui, "tui", false, "show an interactive status view")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")

	flag.Parse()

	cfg, path, err := loadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}

	// Flags given on the command line override the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Predictor.Backend = backend
		case "url":
			cfg.Predictor.URL = url
		case "model":
			cfg.Predictor.Model = model
		case "maskscale":
			cfg.Predictor.MaskScale = maskScale
		case "out":
			cfg.Output.Dir = outDir
		case "format":
			cfg.Output.Format = strings.ToLower(format)
		case "quality":
			cfg.Output.Quality = quality
		case "lossless":
			cfg.Output.Lossless = lossless
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if writeConfig {
		if err := cfg.SaveToFile(path); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", path)
		return
	}

	if in == "" {
		log.Fatalf("usage: %s -in video.mp4|framesdir [-backend segserver|ollama] [-url server_url] [-export] [-out outdir] [-format jpg|png|webp] [-tui]", filepath.Base(os.Args[0]))
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logOut := os.Stderr
	if tui {
		// The terminal belongs to the status view
		f, err := tea.LogToFile(filepath.Join(os.TempDir(), "video-overlay.log"), "video-overlay")
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		logOut = f
	}
	logger := slog.New(
		tint.NewHandler(logOut, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
			NoColor:    tui,
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	predictor, err := newPredictor(cfg)
	if err != nil {
		log.Fatal(err)
	}

	src, err := openSource(ctx, in, fps)
	if err != nil {
		log.Fatal(err)
	}
	w, h := src.Size()
	duration, _ := src.Duration()
	logger.Info("source opened", "path", in, "width", w, "height", h, "duration", duration)

	session := videooverlay.New(cfg.SamplerOptions(), predictor, logger)
	if err := session.LoadModel(ctx); err != nil {
		log.Fatalf("failed to load %s model: %v", cfg.Predictor.Backend, err)
	}
	session.SetSource(src)

	if tui {
		if err := runTUI(ctx, session, cfg, logger); err != nil {
			log.Fatal(err)
		}
		return
	}

	last := -1
	session.OnProgress(func(p int) {
		if p/10 != last/10 {
			logger.Info("analysis progress", "percent", p)
		}
		last = p
	})
	stats, err := session.Analyze(ctx)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}
	logger.Info("analysis complete", "steps", stats.Steps, "recorded", stats.Recorded, "failed", stats.Failed)

	if !export {
		return
	}
	if err := utils.EnsureDir(cfg.Output.Dir); err != nil {
		log.Fatal(err)
	}
	n, err := runExport(ctx, session, src, cfg, exportFPS, logger)
	if err != nil {
		log.Fatalf("export failed: %v", err)
	}
	logger.Info("export complete", "frames", n, "dir", cfg.Output.Dir)
}

// loadConfig reads path, or the default config path, falling back to built-in
// defaults when the file does not exist. It returns the path a config would be
// saved to.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		path = config.GetConfigPath()
	}
	if !utils.FileExists(path) {
		return config.Default(), path, nil
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func newPredictor(cfg *config.Config) (client.Predictor, error) {
	switch cfg.Predictor.Backend {
	case config.BackendSegServer:
		c, err := segserver.NewClient(cfg.Predictor.URL, cfg.Timeout())
		if err != nil {
			return nil, fmt.Errorf("failed to create segmentation client: %w", err)
		}
		return c, nil
	case config.BackendOllama:
		c, err := ollama.NewClient(cfg.Predictor.URL, cfg.Predictor.Model, cfg.Predictor.MaskScale, cfg.Timeout())
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown backend: %s (use '%s' or '%s')", cfg.Predictor.Backend, config.BackendSegServer, config.BackendOllama)
	}
}

// openSource opens a video file with ffmpeg, or a directory of stills as a
// fixed-rate sequence
func openSource(ctx context.Context, in string, fps float64) (video.Source, error) {
	if utils.DirExists(in) {
		frames, err := imageio.LoadDir(in)
		if err != nil {
			return nil, err
		}
		return video.NewSequence(frames, fps)
	}
	if !utils.FileExists(in) {
		return nil, fmt.Errorf("input not found: %s", in)
	}
	return video.Open(ctx, in)
}
