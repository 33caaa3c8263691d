package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}

	if c.Pipeline.CropFraction != 0.20 || c.Pipeline.ModelInputWidth != 640 ||
		c.Pipeline.SamplingInterval != 0.2 || c.Pipeline.DurationCap != 15 {
		t.Errorf("Unexpected pipeline defaults: %+v", c.Pipeline)
	}
	if c.Pipeline.MaxConsecutiveFailures != 0 {
		t.Error("Expected failures to be skipped without a cap by default")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"crop_fraction":            func(c *Config) { c.Pipeline.CropFraction = 1 },
		"model_input_width":        func(c *Config) { c.Pipeline.ModelInputWidth = 0 },
		"sampling_interval":        func(c *Config) { c.Pipeline.SamplingInterval = 0 },
		"duration_cap":             func(c *Config) { c.Pipeline.DurationCap = -1 },
		"max_consecutive_failures": func(c *Config) { c.Pipeline.MaxConsecutiveFailures = -1 },
		"tick_interval_ms":         func(c *Config) { c.Playback.TickIntervalMs = 0 },
		"container":                func(c *Config) { c.Playback.ContainerWidth = 0 },
		"backend":                  func(c *Config) { c.Predictor.Backend = "onnx" },
		"url":                      func(c *Config) { c.Predictor.URL = "" },
		"model":                    func(c *Config) { c.Predictor.Backend = BackendOllama; c.Predictor.Model = "" },
		"mask_scale":               func(c *Config) { c.Predictor.MaskScale = 0 },
		"timeout_seconds":          func(c *Config) { c.Predictor.TimeoutSeconds = 0 },
		"format":                   func(c *Config) { c.Output.Format = "gif" },
		"quality":                  func(c *Config) { c.Output.Quality = 101 },
	}

	for name, mutate := range cases {
		c := Default()
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestValidateFormatCaseInsensitive(t *testing.T) {
	c := Default()
	c.Output.Format = "WEBP"
	if err := c.Validate(); err != nil {
		t.Errorf("Expected WEBP to be accepted: %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	c := Default()
	c.Pipeline.DurationCap = 8
	c.Predictor.Backend = BackendOllama
	c.Output.Format = "png"

	if err := c.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Pipeline.DurationCap != 8 || loaded.Predictor.Backend != BackendOllama || loaded.Output.Format != "png" {
		t.Errorf("Loaded config does not match saved: %+v", loaded)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"pipeline": {"duration_cap": 10}}`), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if c.Pipeline.DurationCap != 10 {
		t.Errorf("Expected duration cap 10, got %f", c.Pipeline.DurationCap)
	}
	if c.Pipeline.ModelInputWidth != 640 || c.Playback.TickIntervalMs != 16 {
		t.Error("Expected unspecified fields to keep defaults")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{"), 0644)
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestConversions(t *testing.T) {
	c := Default()
	c.Pipeline.MaxConsecutiveFailures = 3

	so := c.SamplerOptions()
	if so.Interval != 0.2 || so.DurationCap != 15 || so.CropFraction != 0.2 || so.ModelInputWidth != 640 || so.MaxConsecutiveFailures != 3 {
		t.Errorf("Unexpected sampler options: %+v", so)
	}
	if err := so.Validate(); err != nil {
		t.Errorf("Sampler options should validate: %v", err)
	}

	po := c.PlaybackOptions()
	if po.TickInterval != 16*time.Millisecond || po.DurationCap != 15 || po.CropFraction != 0.2 {
		t.Errorf("Unexpected playback options: %+v", po)
	}

	if c.Timeout() != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %s", c.Timeout())
	}
}

func TestGetConfigPath(t *testing.T) {
	if !strings.HasSuffix(GetConfigPath(), filepath.Join("video-overlay", "config.json")) {
		t.Errorf("Unexpected config path %s", GetConfigPath())
	}
}
