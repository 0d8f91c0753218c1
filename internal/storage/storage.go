package storage

import (
	"context"
	"io"
	"path"
)

// Uploader persists rendered clip artifacts (video and thumbnail) and
// returns the URL stored on the clip record.
type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedURL string, err error)
}

// ArtifactName builds the bucket object name for a session's clip artifact,
// grouping everything cut from one session under a shared prefix.
func ArtifactName(sessionID, filename string) string {
	return path.Join("clips", sessionID, filename)
}
