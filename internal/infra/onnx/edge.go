package onnx

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/reelfx/reelfx-processing-service/internal/domain/port"
)

// Tensor names of the converted HED artifact.
const (
	inputName  = "input"
	outputName = "output"
)

// ImageNet BGR means the HED network was trained with.
var bgrMean = [3]float32{104.00698793, 116.66876762, 122.67891434}

// EdgeEstimator runs holistically-nested edge detection through ONNX
// Runtime. The session is created once at startup and reused read-only
// across all jobs; the worker processes one job at a time, so no locking
// is needed around Run.
type EdgeEstimator struct {
	session       *ort.DynamicAdvancedSession
	inferenceSize int
	logger        *zap.Logger
}

type EstimatorConfig struct {
	ModelPath     string
	UseGPU        bool
	InferenceSize int
}

// NewEdgeEstimator loads the model artifact. Any failure here is
// startup-fatal for the process: a worker without its model must not
// serve frame-pipeline jobs.
func NewEdgeEstimator(cfg EstimatorConfig, logger *zap.Logger) (*EdgeEstimator, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer opts.Destroy()

	if cfg.UseGPU {
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			logger.Warn("CUDA unavailable, falling back to CPU inference", zap.Error(err))
		} else {
			if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
				logger.Warn("CUDA provider rejected, falling back to CPU inference", zap.Error(err))
			}
			cudaOpts.Destroy()
		}
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputName}, []string{outputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("load edge model %s: %w", cfg.ModelPath, err)
	}

	if cfg.InferenceSize <= 0 {
		cfg.InferenceSize = 512
	}
	logger.Info("edge model loaded",
		zap.String("model", cfg.ModelPath),
		zap.Int("inference_size", cfg.InferenceSize),
		zap.Bool("gpu", cfg.UseGPU),
	)
	return &EdgeEstimator{
		session:       session,
		inferenceSize: cfg.InferenceSize,
		logger:        logger,
	}, nil
}

// Estimate produces an edge map at the frame's resolution. Frames larger
// than the inference size on the long side are downscaled for the network
// and the map is bilinearly upsampled back.
func (e *EdgeEstimator) Estimate(ctx context.Context, frame *image.NRGBA) (*port.EdgeMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w, h := frame.Rect.Dx(), frame.Rect.Dy()
	in := frame
	iw, ih := w, h
	if max(w, h) > e.inferenceSize {
		if w >= h {
			iw = e.inferenceSize
			ih = h * e.inferenceSize / w
		} else {
			ih = e.inferenceSize
			iw = w * e.inferenceSize / h
		}
		in = imaging.Resize(frame, iw, ih, imaging.Linear)
	}

	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(ih), int64(iw)), preprocess(in, iw, ih))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("edge inference: %w", err)
	}
	out := outputs[0].(*ort.Tensor[float32])
	defer out.Destroy()

	raw := out.GetData()
	if len(raw) != iw*ih {
		return nil, fmt.Errorf("unexpected edge output size %d for %dx%d input", len(raw), iw, ih)
	}

	em := &port.EdgeMap{Width: iw, Height: ih, V: make([]float32, len(raw))}
	for i, v := range raw {
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		em.V[i] = v
	}
	if iw != w || ih != h {
		em = resizeEdgeMap(em, w, h)
	}
	return em, nil
}

func (e *EdgeEstimator) Close() error {
	err := e.session.Destroy()
	ort.DestroyEnvironment()
	return err
}

// preprocess builds the 1x3xHxW BGR mean-subtracted tensor HED expects.
func preprocess(img *image.NRGBA, w, h int) []float32 {
	data := make([]float32, 3*w*h)
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := img.Pix[(y*img.Stride)+x*4:]
			i := y*w + x
			data[i] = float32(p[2]) - bgrMean[0]         // B
			data[plane+i] = float32(p[1]) - bgrMean[1]   // G
			data[2*plane+i] = float32(p[0]) - bgrMean[2] // R
		}
	}
	return data
}

// resizeEdgeMap bilinearly resamples a float edge map; used to upsample
// the network output back to the original frame resolution.
func resizeEdgeMap(em *port.EdgeMap, w, h int) *port.EdgeMap {
	out := &port.EdgeMap{Width: w, Height: h, V: make([]float32, w*h)}
	sx := float64(em.Width-1) / float64(max(w-1, 1))
	sy := float64(em.Height-1) / float64(max(h-1, 1))
	for y := 0; y < h; y++ {
		fy := float64(y) * sy
		y0 := int(fy)
		y1 := y0 + 1
		if y1 >= em.Height {
			y1 = em.Height - 1
		}
		wy := float32(fy - float64(y0))
		for x := 0; x < w; x++ {
			fx := float64(x) * sx
			x0 := int(fx)
			x1 := x0 + 1
			if x1 >= em.Width {
				x1 = em.Width - 1
			}
			wx := float32(fx - float64(x0))
			top := em.At(x0, y0)*(1-wx) + em.At(x1, y0)*wx
			bot := em.At(x0, y1)*(1-wx) + em.At(x1, y1)*wx
			out.V[y*w+x] = top*(1-wy) + bot*wy
		}
	}
	return out
}
