package port

import (
	"context"

	"github.com/reelfx/reelfx-processing-service/internal/domain/entity"
)

// MediaCodec is the container/codec boundary. Implementations shell out to
// the external media toolchain; everything above it works on frame files.
type MediaCodec interface {
	Probe(ctx context.Context, videoPath string) (entity.MediaInfo, error)
	ExtractFrames(ctx context.Context, videoPath, outputDir string) ([]string, error)
	AssembleVideo(ctx context.Context, framesDir string, fps float64, outputPath string) error
	ApplyFilterGraph(ctx context.Context, inputPath, outputPath, filter string, keepAudio bool) error
}
