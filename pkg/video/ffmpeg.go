package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
)

// FFmpeg is a Source backed by a media file. Metadata comes from ffprobe and
// each seek decodes exactly one frame with ffmpeg.
type FFmpeg struct {
	path     string
	width    int
	height   int
	duration float64
	hasDur   bool
	fps      float64

	mu    sync.Mutex
	frame image.Image
}

// probeOutput mirrors the subset of `ffprobe -of json` we read
type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Open probes a media file and returns a Source positioned before the first frame
func Open(ctx context.Context, path string) (*FFmpeg, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("video file does not exist at path: '%s'", path)
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,duration:format=duration",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	f, err := parseProbe(out)
	if err != nil {
		return nil, err
	}
	f.path = path
	return f, nil
}

func parseProbe(data []byte) (*FFmpeg, error) {
	var probe probeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no video stream found")
	}

	s := probe.Streams[0]
	f := &FFmpeg{width: s.Width, height: s.Height}

	f.fps = parseFrameRate(s.AvgFrameRate)
	if f.fps <= 0 {
		f.fps = parseFrameRate(s.RFrameRate)
	}

	// Container duration first, stream duration as fallback
	for _, d := range []string{probe.Format.Duration, s.Duration} {
		if v, err := strconv.ParseFloat(strings.TrimSpace(d), 64); err == nil && v > 0 {
			f.duration = v
			f.hasDur = true
			break
		}
	}
	return f, nil
}

// parseFrameRate parses ffprobe rates such as "30000/1001" or "25"
func parseFrameRate(rate string) float64 {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return 0
	}
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// Duration returns the probed duration in seconds
func (f *FFmpeg) Duration() (float64, bool) {
	return f.duration, f.hasDur
}

// Size returns the intrinsic frame dimensions
func (f *FFmpeg) Size() (int, int) {
	return f.width, f.height
}

// FPS returns the probed average frame rate, or 0 if unknown
func (f *FFmpeg) FPS() float64 {
	return f.fps
}

// Seek decodes the frame at t. Seeks past the last frame land on the last frame.
func (f *FFmpeg) Seek(ctx context.Context, t float64) error {
	t = f.clampTime(t)

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-ss", strconv.FormatFloat(t, 'f', 3, 64),
		"-i", f.path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("ffmpeg seek to %.3fs failed: %w\nOutput: %s", t, err, stderr.String())
	}
	if len(out) == 0 {
		return fmt.Errorf("ffmpeg produced no frame at %.3fs", t)
	}

	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		return fmt.Errorf("failed to decode frame at %.3fs: %w", t, err)
	}

	f.mu.Lock()
	f.frame = img
	f.mu.Unlock()
	return nil
}

// Frame returns the frame decoded by the last seek
func (f *FFmpeg) Frame() (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frame == nil {
		return nil, ErrNoFrame
	}
	return f.frame, nil
}

func (f *FFmpeg) clampTime(t float64) float64 {
	if t < 0 {
		return 0
	}
	if !f.hasDur {
		return t
	}
	last := f.duration
	if f.fps > 0 {
		last -= 1 / f.fps
	}
	if last < 0 {
		last = 0
	}
	if t > last {
		return last
	}
	return t
}
