// Package segserver is a Predictor backed by an HTTP segmentation server.
//
// The server exposes GET /health reporting whether the model is loaded,
// POST /load to load it and POST /predict taking a packed RGB frame.
package segserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/video-overlay/pkg/types"
)

// ErrModelNotLoaded is returned by Load when the server still has no model
var ErrModelNotLoaded = errors.New("segserver: model not loaded")

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Model       string `json:"model,omitempty"`
}

// PredictRequest carries one frame as base64 packed RGB
type PredictRequest struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pixels string `json:"pixels"`
}

// PredictResponse lists the segments found in a frame
type PredictResponse struct {
	Results []Segment `json:"results"`
}

// Segment is one labeled mask on the wire
type Segment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Mask  Mask    `json:"mask"`
}

// Mask is a raster with base64 pixel data
type Mask struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Channels int    `json:"channels,omitempty"`
	Data     string `json:"data"`
}

// NewClient creates a client for the server at serverURL
func NewClient(serverURL string, timeout time.Duration) (*Client, error) {
	if serverURL == "" {
		serverURL = "http://localhost:8000"
	}
	if !strings.HasPrefix(serverURL, "http://") && !strings.HasPrefix(serverURL, "https://") {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", serverURL)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Health queries the server status
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	body, err := c.sendRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %v", err)
	}
	return &health, nil
}

// Load asks the server to load its model unless it already has
func (c *Client) Load(ctx context.Context) error {
	health, err := c.Health(ctx)
	if err != nil {
		return fmt.Errorf("segmentation server unavailable: %w", err)
	}
	if health.ModelLoaded {
		return nil
	}

	if _, err := c.sendRequest(ctx, http.MethodPost, "/load", struct{}{}); err != nil {
		return fmt.Errorf("load request failed: %w", err)
	}

	health, err = c.Health(ctx)
	if err != nil {
		return fmt.Errorf("segmentation server unavailable: %w", err)
	}
	if !health.ModelLoaded {
		return ErrModelNotLoaded
	}
	return nil
}

// Predict sends buf to the server and decodes the returned masks
func (c *Client) Predict(ctx context.Context, buf types.RGBBuffer) ([]types.SegmentationResult, error) {
	if len(buf.Pix) != buf.Width*buf.Height*3 {
		return nil, fmt.Errorf("buffer holds %d bytes, expected %dx%dx3", len(buf.Pix), buf.Width, buf.Height)
	}

	req := PredictRequest{
		Width:  buf.Width,
		Height: buf.Height,
		Pixels: base64.StdEncoding.EncodeToString(buf.Pix),
	}

	body, err := c.sendRequest(ctx, http.MethodPost, "/predict", req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	var resp PredictResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %v", err)
	}

	results := make([]types.SegmentationResult, 0, len(resp.Results))
	for i, seg := range resp.Results {
		mask, err := decodeMask(seg.Mask)
		if err != nil {
			return nil, fmt.Errorf("result %d (%s): %w", i, seg.Label, err)
		}
		results = append(results, types.SegmentationResult{
			Label: seg.Label,
			Score: seg.Score,
			Mask:  mask,
		})
	}
	return results, nil
}

func decodeMask(m Mask) (types.Raster, error) {
	data, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		return types.Raster{}, fmt.Errorf("invalid mask data: %v", err)
	}

	channels := m.Channels
	if channels == 0 {
		channels = 1
	}
	r := types.Raster{Width: m.Width, Height: m.Height, Channels: channels, Pix: data}
	if !r.Valid() {
		return types.Raster{}, fmt.Errorf("mask %dx%dx%d does not match %d bytes", m.Width, m.Height, channels, len(data))
	}
	return r, nil
}

func (c *Client) sendRequest(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}
