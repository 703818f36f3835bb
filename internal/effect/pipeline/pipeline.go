package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/reelfx/reelfx-processing-service/internal/domain/entity"
	"github.com/reelfx/reelfx-processing-service/internal/domain/port"
)

// Config is the validated parameter set for one rotoscoping run.
type Config struct {
	EdgeStrength      float64
	EdgeThickness     float64
	NumColors         int
	ColorMethod       string
	Smoothing         float64
	Saturation        float64
	TemporalSmoothing float64
}

// Pipeline turns an ordered frame sequence into a stylized sequence of the
// same length and dimensions. One Run call holds all cross-frame state;
// nothing persists between invocations.
type Pipeline struct {
	edges  port.EdgeEstimator
	logger *zap.Logger
}

func New(edges port.EdgeEstimator, logger *zap.Logger) *Pipeline {
	return &Pipeline{edges: edges, logger: logger}
}

// Run processes the frame files in index order and writes the transformed
// frames under outputDir with the same basenames. A corrupt or unreadable
// frame aborts the whole run: silently dropping frames would desynchronize
// audio/video timing downstream.
func (p *Pipeline) Run(ctx context.Context, framePaths []string, outputDir string, cfg Config) (int, error) {
	if len(framePaths) == 0 {
		return 0, entity.Permanent("pipeline run with no frames")
	}
	paths := append([]string(nil), framePaths...)
	sort.Strings(paths)

	stab := newStabilizer(cfg.TemporalSmoothing)

	for i, path := range paths {
		select {
		case <-ctx.Done():
			return i, entity.TransientWrap(ctx.Err(), "pipeline cancelled")
		default:
		}

		frame, err := loadFrame(path)
		if err != nil {
			return i, entity.PermanentWrap(err, fmt.Sprintf("frame %d unreadable", i))
		}

		out, err := p.processFrame(ctx, frame, stab, cfg)
		if err != nil {
			return i, fmt.Errorf("frame %d: %w", i, err)
		}

		outPath := filepath.Join(outputDir, filepath.Base(path))
		if err := saveFrame(out, outPath); err != nil {
			return i, entity.TransientWrap(err, fmt.Sprintf("write frame %d", i))
		}
	}

	p.logger.Info("frame pipeline finished",
		zap.Int("frames", len(paths)),
		zap.String("color_method", cfg.ColorMethod),
		zap.Int("num_colors", cfg.NumColors),
	)
	return len(paths), nil
}

// processFrame applies the three stages in order. Saturation runs after
// stabilization on purpose: it must not feed back into temporal state.
func (p *Pipeline) processFrame(ctx context.Context, frame *image.NRGBA, stab *stabilizer, cfg Config) (*image.NRGBA, error) {
	var edges *port.EdgeMap
	if cfg.EdgeStrength > 0 {
		var err error
		edges, err = p.edges.Estimate(ctx, frame)
		if err != nil {
			return nil, fmt.Errorf("edge estimation: %w", err)
		}
		if edges.Width != frame.Rect.Dx() || edges.Height != frame.Rect.Dy() {
			return nil, entity.Permanent("edge map %dx%d does not match frame %dx%d",
				edges.Width, edges.Height, frame.Rect.Dx(), frame.Rect.Dy())
		}
	}

	out := quantize(frame, cfg.ColorMethod, cfg.NumColors, cfg.Smoothing)
	out = stab.blend(out)

	if cfg.Saturation != 1.0 {
		pct := (cfg.Saturation - 1.0) * 100
		if pct > 100 {
			pct = 100
		}
		if pct < -100 {
			pct = -100
		}
		out = imaging.AdjustSaturation(out, pct)
	}

	return compositeEdges(out, edges, cfg.EdgeStrength, cfg.EdgeThickness), nil
}

func loadFrame(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba, nil
	}
	return imaging.Clone(img), nil
}

func saveFrame(img *image.NRGBA, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
