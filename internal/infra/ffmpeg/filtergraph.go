package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/reelfx/reelfx-processing-service/internal/domain/entity"
)

// ApplyFilterGraph runs a whole filter-graph effect in one ffmpeg
// invocation. The filter expression comes from the effect manifest; these
// effects are configuration, not per-frame computation. keepAudio copies
// the source audio stream through; otherwise it is stripped.
func (m *Media) ApplyFilterGraph(ctx context.Context, inputPath, outputPath, filter string, keepAudio bool) error {
	args := []string{
		"-y",
		"-i", inputPath,
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", "medium",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
	}
	if keepAudio {
		args = append(args, "-c:a", "copy")
	} else {
		args = append(args, "-an")
	}
	args = append(args, "-f", "mp4", outputPath)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		wrapped := fmt.Errorf("ffmpeg error: %w, output: %s", err, string(output))
		// Unreadable input will not get better on redelivery; everything
		// else (encoder, disk) might.
		if strings.Contains(string(output), "Invalid data found when processing input") {
			return entity.PermanentWrap(wrapped, "apply filter graph")
		}
		return entity.TransientWrap(wrapped, "apply filter graph")
	}
	return nil
}
