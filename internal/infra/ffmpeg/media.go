package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/reelfx/reelfx-processing-service/internal/domain/entity"
)

const framePattern = "frame_%05d.png"

// Media decodes videos to ordered PNG frame files and encodes frame files
// back into playable videos, shelling out to ffmpeg/ffprobe for all
// container and codec handling.
type Media struct {
	logger *zap.Logger
}

func NewMedia(logger *zap.Logger) *Media {
	return &Media{logger: logger}
}

func (m *Media) Probe(ctx context.Context, videoPath string) (entity.MediaInfo, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1",
		videoPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return entity.MediaInfo{}, entity.PermanentWrap(
			fmt.Errorf("ffprobe: %w, output: %s", err, string(output)), "probe input")
	}
	info, err := parseProbeOutput(string(output))
	if err != nil {
		return entity.MediaInfo{}, entity.PermanentWrap(err, "probe input")
	}
	return info, nil
}

// ExtractFrames decodes every frame of the source video into outputDir and
// returns the frame paths in index order. Decode failures are permanent:
// retrying on the same corrupt input cannot succeed.
func (m *Media) ExtractFrames(ctx context.Context, videoPath, outputDir string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", videoPath,
		"-fps_mode", "passthrough",
		"-y",
		filepath.Join(outputDir, framePattern),
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, entity.PermanentWrap(
			fmt.Errorf("ffmpeg error: %w, output: %s", err, string(output)), "extract frames")
	}

	frames, err := filepath.Glob(filepath.Join(outputDir, "frame_*.png"))
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, entity.Permanent("no frames extracted from video")
	}

	m.logger.Info("frames extracted", zap.Int("count", len(frames)))
	return frames, nil
}

// AssembleVideo encodes the PNG frames under framesDir into an H.264 MP4 at
// the source frame rate. Audio is discarded: the rotoscoping effect drops it
// by design. Encoding failures are fatal for the attempt and handled by the
// queue's redelivery, not retried in-process.
func (m *Media) AssembleVideo(ctx context.Context, framesDir string, fps float64, outputPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-framerate", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", filepath.Join(framesDir, framePattern),
		"-c:v", "libx264",
		"-preset", "medium",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-an",
		"-y",
		outputPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return entity.TransientWrap(
			fmt.Errorf("ffmpeg error: %w, output: %s", err, string(output)), "assemble video")
	}
	return nil
}

func parseProbeOutput(out string) (entity.MediaInfo, error) {
	var info entity.MediaInfo
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "width":
			info.Width, _ = strconv.Atoi(value)
		case "height":
			info.Height, _ = strconv.Atoi(value)
		case "r_frame_rate":
			fps, err := parseRate(value)
			if err != nil {
				return info, err
			}
			info.FPS = fps
		case "duration":
			info.Duration, _ = strconv.ParseFloat(value, 64)
		}
	}
	if info.Width <= 0 || info.Height <= 0 || info.FPS <= 0 {
		return info, fmt.Errorf("incomplete probe result: %+v", info)
	}
	return info, nil
}

// parseRate handles ffprobe rational frame rates such as "30000/1001".
func parseRate(s string) (float64, error) {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return strconv.ParseFloat(s, 64)
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parse frame rate %q: %w", s, err)
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("parse frame rate %q: bad denominator", s)
	}
	return n / d, nil
}
