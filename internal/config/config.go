package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/menta2k/video-overlay/pkg/playback"
	"github.com/menta2k/video-overlay/pkg/sampler"
)

// Config holds the application configuration
type Config struct {
	Pipeline  PipelineConfig  `json:"pipeline"`
	Playback  PlaybackConfig  `json:"playback"`
	Predictor PredictorConfig `json:"predictor"`
	Output    OutputConfig    `json:"output"`
}

// PipelineConfig holds the analysis pass settings
type PipelineConfig struct {
	CropFraction           float64 `json:"crop_fraction"`
	ModelInputWidth        int     `json:"model_input_width"`
	SamplingInterval       float64 `json:"sampling_interval"`
	DurationCap            float64 `json:"duration_cap"`
	MaxConsecutiveFailures int     `json:"max_consecutive_failures"`
}

// PlaybackConfig holds the overlay refresh settings
type PlaybackConfig struct {
	TickIntervalMs  int `json:"tick_interval_ms"`
	ContainerWidth  int `json:"container_width"`
	ContainerHeight int `json:"container_height"`
}

// PredictorConfig selects and configures the segmentation backend
type PredictorConfig struct {
	Backend        string `json:"backend"` // "segserver" or "ollama"
	URL            string `json:"url"`
	Model          string `json:"model"`
	MaskScale      int    `json:"mask_scale"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// OutputConfig holds configuration for exported frames
type OutputConfig struct {
	Format   string `json:"format"`
	Quality  int    `json:"quality"`
	Lossless bool   `json:"lossless"`
	Dir      string `json:"dir"`
}

// Supported predictor backends
const (
	BackendSegServer = "segserver"
	BackendOllama    = "ollama"
)

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			CropFraction:     0.20,
			ModelInputWidth:  640,
			SamplingInterval: 0.2,
			DurationCap:      15,
		},
		Playback: PlaybackConfig{
			TickIntervalMs:  16,
			ContainerWidth:  1280,
			ContainerHeight: 720,
		},
		Predictor: PredictorConfig{
			Backend:        BackendSegServer,
			URL:            "http://localhost:8000",
			Model:          "qwen2.5vl:7b",
			MaskScale:      32,
			TimeoutSeconds: 30,
		},
		Output: OutputConfig{
			Format:  "jpg",
			Quality: 90,
			Dir:     "./output",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Fields missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Pipeline.CropFraction < 0 || c.Pipeline.CropFraction >= 1 {
		return fmt.Errorf("pipeline.crop_fraction must be between 0 and 1")
	}

	if c.Pipeline.ModelInputWidth < 1 {
		return fmt.Errorf("pipeline.model_input_width must be positive")
	}

	if c.Pipeline.SamplingInterval <= 0 {
		return fmt.Errorf("pipeline.sampling_interval must be positive")
	}

	if c.Pipeline.DurationCap <= 0 {
		return fmt.Errorf("pipeline.duration_cap must be positive")
	}

	if c.Pipeline.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("pipeline.max_consecutive_failures cannot be negative")
	}

	if c.Playback.TickIntervalMs < 1 || c.Playback.TickIntervalMs > 1000 {
		return fmt.Errorf("playback.tick_interval_ms must be between 1 and 1000")
	}

	if c.Playback.ContainerWidth < 1 || c.Playback.ContainerHeight < 1 {
		return fmt.Errorf("playback container size must be positive")
	}

	switch c.Predictor.Backend {
	case BackendSegServer, BackendOllama:
	default:
		return fmt.Errorf("predictor.backend must be %q or %q", BackendSegServer, BackendOllama)
	}

	if c.Predictor.URL == "" {
		return fmt.Errorf("predictor.url cannot be empty")
	}

	if c.Predictor.Backend == BackendOllama && c.Predictor.Model == "" {
		return fmt.Errorf("predictor.model is required for the ollama backend")
	}

	if c.Predictor.MaskScale < 1 || c.Predictor.MaskScale > 512 {
		return fmt.Errorf("predictor.mask_scale must be between 1 and 512")
	}

	if c.Predictor.TimeoutSeconds < 1 {
		return fmt.Errorf("predictor.timeout_seconds must be positive")
	}

	switch strings.ToLower(c.Output.Format) {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("output.format must be one of jpg, png, webp")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	return nil
}

// SamplerOptions converts the pipeline section for the scheduler
func (c *Config) SamplerOptions() sampler.Options {
	return sampler.Options{
		Interval:               c.Pipeline.SamplingInterval,
		DurationCap:            c.Pipeline.DurationCap,
		CropFraction:           c.Pipeline.CropFraction,
		ModelInputWidth:        c.Pipeline.ModelInputWidth,
		MaxConsecutiveFailures: c.Pipeline.MaxConsecutiveFailures,
	}
}

// PlaybackOptions converts the playback section for the synchronizer
func (c *Config) PlaybackOptions() playback.Options {
	return playback.Options{
		DurationCap:  c.Pipeline.DurationCap,
		CropFraction: c.Pipeline.CropFraction,
		TickInterval: time.Duration(c.Playback.TickIntervalMs) * time.Millisecond,
	}
}

// Timeout returns the predictor request timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Predictor.TimeoutSeconds) * time.Second
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "video-overlay", "config.json")
}
