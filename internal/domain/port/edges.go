package port

import (
	"context"
	"image"
)

// EdgeMap is a single-channel edge-strength map, row-major, values in [0,1],
// at the resolution of the frame it was estimated from.
type EdgeMap struct {
	Width  int
	Height int
	V      []float32
}

func (m *EdgeMap) At(x, y int) float32 { return m.V[y*m.Width+x] }

// EdgeEstimator runs the fixed pre-trained edge-detection network on one
// frame. Implementations are loaded once at startup and reused read-only
// across jobs.
type EdgeEstimator interface {
	Estimate(ctx context.Context, frame *image.NRGBA) (*EdgeMap, error)
}
