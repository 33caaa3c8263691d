package segserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/menta2k/video-overlay/pkg/client"
	"github.com/menta2k/video-overlay/pkg/types"
)

var _ client.Predictor = (*Client)(nil)

// newTestServer serves /health, /load and /predict. The model starts unloaded
// unless loaded is true.
func newTestServer(t *testing.T, loaded bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var state atomic.Bool
	state.Store(loaded)
	var loads atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HealthResponse{Status: "ok", ModelLoaded: state.Load()})
	})
	mux.HandleFunc("/load", func(w http.ResponseWriter, r *http.Request) {
		loads.Add(1)
		state.Store(true)
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		var req PredictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		pix, _ := base64.StdEncoding.DecodeString(req.Pixels)
		if len(pix) != req.Width*req.Height*3 {
			http.Error(w, "pixel count mismatch", http.StatusUnprocessableEntity)
			return
		}
		resp := PredictResponse{Results: []Segment{
			{Label: "car", Score: 0.91, Mask: Mask{Width: 2, Height: 2, Data: base64.StdEncoding.EncodeToString([]byte{1, 0, 0, 1})}},
			{Label: "traffic_light", Score: 0.5, Mask: Mask{Width: 1, Height: 1, Channels: 1, Data: base64.StdEncoding.EncodeToString([]byte{255})}},
		}}
		json.NewEncoder(w).Encode(resp)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &loads
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(url, 5*time.Second)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func testBuffer() types.RGBBuffer {
	var buf types.RGBBuffer
	buf.Resize(4, 2)
	return buf
}

func TestNewClientRejectsScheme(t *testing.T) {
	if _, err := NewClient("ftp://host", 0); err == nil {
		t.Error("Expected error for unsupported scheme")
	}
}

func TestLoadAlreadyLoaded(t *testing.T) {
	srv, loads := newTestServer(t, true)
	if err := newTestClient(t, srv.URL).Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loads.Load() != 0 {
		t.Error("Expected no load request when the model is ready")
	}
}

func TestLoadTriggersModelLoad(t *testing.T) {
	srv, loads := newTestServer(t, false)
	if err := newTestClient(t, srv.URL+"/").Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loads.Load() != 1 {
		t.Errorf("Expected one load request, got %d", loads.Load())
	}
}

func TestLoadModelNeverReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.Write([]byte(`{"status":"loading","model_loaded":false}`))
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	err := newTestClient(t, srv.URL).Load(context.Background())
	if !errors.Is(err, ErrModelNotLoaded) {
		t.Errorf("Expected ErrModelNotLoaded, got %v", err)
	}
}

func TestLoadServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if err := newTestClient(t, url).Load(context.Background()); err == nil {
		t.Error("Expected error for unreachable server")
	}
}

func TestPredict(t *testing.T) {
	srv, _ := newTestServer(t, true)
	results, err := newTestClient(t, srv.URL).Predict(context.Background(), testBuffer())
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	car := results[0]
	if car.Label != "car" || car.Score != 0.91 {
		t.Errorf("Unexpected first result %+v", car)
	}
	if car.Mask.Width != 2 || car.Mask.Height != 2 || car.Mask.Channels != 1 {
		t.Errorf("Unexpected mask shape %dx%dx%d", car.Mask.Width, car.Mask.Height, car.Mask.Channels)
	}
	if car.Mask.At(0, 0) != 1 || car.Mask.At(1, 0) != 0 || car.Mask.At(1, 1) != 1 {
		t.Errorf("Unexpected mask data %v", car.Mask.Pix)
	}
	if results[1].Mask.Width != 1 {
		t.Error("Expected mask size to follow the server per result")
	}
}

func TestPredictRejectsBadBuffer(t *testing.T) {
	srv, _ := newTestServer(t, true)
	buf := types.RGBBuffer{Width: 4, Height: 2, Pix: make([]byte, 10)}
	if _, err := newTestClient(t, srv.URL).Predict(context.Background(), buf); err == nil {
		t.Error("Expected error for short buffer")
	}
}

func TestPredictServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cuda out of memory", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Predict(context.Background(), testBuffer())
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("Expected status error, got %v", err)
	}
}

func TestPredictInvalidMask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"label":"car","score":1,"mask":{"width":4,"height":4,"data":"AAE="}}]}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv.URL).Predict(context.Background(), testBuffer()); err == nil {
		t.Error("Expected error for mask smaller than its dimensions")
	}
}

func TestPredictCanceled(t *testing.T) {
	srv, _ := newTestServer(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestClient(t, srv.URL).Predict(ctx, testBuffer()); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
