package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// FFmpeg shells out to the ffmpeg binary to trim clips and grab thumbnails.
type FFmpeg struct {
	Binary string // defaults to "ffmpeg"
	OutDir string // defaults to os.TempDir()
}

func NewFFmpeg(outDir string) *FFmpeg {
	return &FFmpeg{Binary: "ffmpeg", OutDir: outDir}
}

func (f *FFmpeg) Trim(ctx context.Context, sourcePath string, start, end float64) (*TrimResult, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, fmt.Errorf("source media not found: %w", err)
	}
	if end <= start {
		return nil, fmt.Errorf("invalid range: start=%.2f end=%.2f", start, end)
	}

	bin := f.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	dir := f.OutDir
	if dir == "" {
		dir = os.TempDir()
	}

	base := uuid.NewString()
	clipPath := filepath.Join(dir, base+".mp4")
	thumbPath := filepath.Join(dir, base+".jpg")
	dur := end - start

	cut := exec.CommandContext(ctx, bin,
		"-y",
		"-ss", formatSeconds(start),
		"-i", sourcePath,
		"-t", formatSeconds(dur),
		"-c", "copy",
		clipPath,
	)
	if out, err := cut.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg trim failed: %w: %s", err, out)
	}

	thumb := exec.CommandContext(ctx, bin,
		"-y",
		"-i", clipPath,
		"-vframes", "1",
		"-q:v", "2",
		thumbPath,
	)
	if out, err := thumb.CombinedOutput(); err != nil {
		_ = os.Remove(clipPath)
		return nil, fmt.Errorf("ffmpeg thumbnail failed: %w: %s", err, out)
	}

	return &TrimResult{
		ClipPath:      clipPath,
		ThumbnailPath: thumbPath,
		Duration:      dur,
	}, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
