package runner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// convertToWebP turns the recorded webm into an animated WebP. It tries a
// single ffmpeg pass first and falls back to extracting frames for img2webp.
func convertToWebP(ctx context.Context, input, output string, logger *slog.Logger) error {
	if input == "" {
		return errors.New("empty input video path")
	}
	err := tryFfmpegWebp(ctx, input, output)
	if err == nil {
		return nil
	}
	logger.Debug("ffmpeg libwebp failed, falling back to img2webp", "scope", "artifact", "error", err)

	framesDir, err := os.MkdirTemp("", "webp-frames")
	if err != nil {
		return err
	}
	defer os.RemoveAll(framesDir)

	framePattern := filepath.Join(framesDir, "frame-%03d.png")
	if out, err := exec.CommandContext(ctx, "ffmpeg", "-y", "-i", input, "-vf", "fps=15,scale=1280:-1:flags=lanczos", framePattern).CombinedOutput(); err != nil {
		logger.Debug("ffmpeg frame extraction", "scope", "artifact", "output", string(out))
		return err
	}

	frames, err := filepath.Glob(filepath.Join(framesDir, "frame-*.png"))
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return errors.New("no frames generated for webp conversion")
	}

	args := append([]string{"-loop", "0"}, frames...)
	args = append(args, "-o", output)
	if out, err := exec.CommandContext(ctx, "img2webp", args...).CombinedOutput(); err != nil {
		logger.Debug("img2webp", "scope", "artifact", "output", string(out))
		return err
	}
	return nil
}

func tryFfmpegWebp(ctx context.Context, input, output string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y", "-i", input, "-vcodec", "libwebp", "-filter:v", "fps=15,scale=1280:-1:flags=lanczos", "-loop", "0", "-an", "-fps_mode", "cfr", output)
	_, err := cmd.CombinedOutput()
	return err
}
