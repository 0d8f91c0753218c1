package media

import "context"

type TrimResult struct {
	ClipPath      string
	ThumbnailPath string
	Duration      float64 // seconds
}

// Trimmer produces a trimmed clip and thumbnail from a source recording.
type Trimmer interface {
	Trim(ctx context.Context, sourcePath string, start, end float64) (*TrimResult, error)
}
