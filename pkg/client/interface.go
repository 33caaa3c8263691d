package client

import (
	"context"

	"github.com/menta2k/video-overlay/pkg/types"
)

// Predictor is the segmentation collaborator. Load must succeed before Predict is called.
// Mask dimensions are chosen by the implementation and may differ between calls.
// Predict must not retain buf after returning; callers reuse it.
type Predictor interface {
	Load(ctx context.Context) error
	Predict(ctx context.Context, buf types.RGBBuffer) ([]types.SegmentationResult, error)
}
