package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/video-overlay/pkg/imageio"
	"github.com/menta2k/video-overlay/pkg/types"
)

// Client is a Predictor backed by an Ollama vision model. The model returns
// bounding boxes which are rasterized into coarse masks.
type Client struct {
	client    *api.Client
	model     string
	prompt    string
	maskScale int
	timeout   time.Duration
}

// NewClient creates a new Ollama client for model. maskScale is the width of
// the generated masks in cells.
func NewClient(ollamaURL, model string, maskScale int, timeout time.Duration) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %q", parsedURL.Scheme)
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if maskScale < 1 {
		maskScale = 32
	}

	// Drop any path such as /api/chat
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Client{
		client:    api.NewClient(baseURL, http.DefaultClient),
		model:     model,
		prompt:    DefaultPrompt,
		maskScale: maskScale,
		timeout:   timeout,
	}, nil
}

// SetPrompt replaces the detection prompt
func (c *Client) SetPrompt(prompt string) {
	c.prompt = prompt
}

// Load checks that the model is available on the server
func (c *Client) Load(ctx context.Context) error {
	if _, err := c.client.Show(ctx, &api.ShowRequest{Model: c.model}); err != nil {
		return fmt.Errorf("model %s not available: %w", c.model, err)
	}
	return nil
}

// Predict asks the model for objects in buf and returns one box mask per object
func (c *Client) Predict(ctx context.Context, buf types.RGBBuffer) ([]types.SegmentationResult, error) {
	if c.timeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
	}

	img, err := imageio.EncodeJPEG(buf, 85)
	if err != nil {
		return nil, err
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: c.prompt,
				Images:  []api.ImageData{api.ImageData(img)},
			},
		},
		Stream: &streamFalse,
		Format: json.RawMessage(`"json"`),
		Options: map[string]any{
			"temperature": 0,
		},
	}

	var content strings.Builder
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %w", err)
	}
	if content.Len() == 0 {
		return nil, fmt.Errorf("empty response from ollama")
	}

	objects, err := parseObjects(content.String())
	if err != nil {
		return nil, err
	}

	maskW, maskH := maskSize(c.maskScale, buf.Width, buf.Height)
	results := make([]types.SegmentationResult, 0, len(objects))
	for _, obj := range objects {
		results = append(results, types.SegmentationResult{
			Label: obj.Label,
			Score: obj.Confidence,
			Mask:  rasterize(obj.Box, maskW, maskH),
		})
	}
	return results, nil
}

// maskSize keeps the input aspect ratio at the given mask width
func maskSize(scale, width, height int) (int, int) {
	if width <= 0 || height <= 0 {
		return scale, scale
	}
	h := (scale*height + width/2) / width
	if h < 1 {
		h = 1
	}
	return scale, h
}

// rasterize marks the cells covered by a normalized box
func rasterize(b Box, width, height int) types.Raster {
	r := types.Raster{Width: width, Height: height, Channels: 1, Pix: make([]byte, width*height)}
	b = normalizeBox(b)
	if b.W <= 0 || b.H <= 0 {
		return r
	}

	x0 := int(b.X * float64(width))
	y0 := int(b.Y * float64(height))
	x1 := int(math.Ceil((b.X+b.W)*float64(width) - 1e-9))
	y1 := int(math.Ceil((b.Y+b.H)*float64(height) - 1e-9))
	if x1 > width {
		x1 = width
	}
	if y1 > height {
		y1 = height
	}

	for y := y0; y < y1; y++ {
		row := r.Pix[y*width : (y+1)*width]
		for x := x0; x < x1; x++ {
			row[x] = 1
		}
	}
	return r
}
