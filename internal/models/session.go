package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Session struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"` // uuid v4
	UserID    string             `bson:"user_id" json:"user_id"`

	Workflow string          `bson:"workflow" json:"workflow"` // podcast|webinar|livestream
	Status   string          `bson:"status" json:"status"`     // live|ended
	Metadata SessionMetadata `bson:"metadata,omitempty" json:"metadata,omitempty"`

	// Local path of the session's buffered source recording. Clip jobs trim
	// against this file.
	RecordingPath string `bson:"recording_path,omitempty" json:"recording_path,omitempty"`

	StartedAt time.Time  `bson:"started_at" json:"started_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`

	DurationSeconds int64 `bson:"duration_seconds" json:"duration_seconds"`
}

type SessionMetadata struct {
	Title    string `bson:"title,omitempty" json:"title,omitempty"`
	ShowName string `bson:"show_name,omitempty" json:"show_name,omitempty"`
	Language string `bson:"language,omitempty" json:"language,omitempty"`
}

const (
	SessionStatusLive  = "live"
	SessionStatusEnded = "ended"
)

const (
	WorkflowPodcast    = "podcast"
	WorkflowWebinar    = "webinar"
	WorkflowLivestream = "livestream"
)

func ValidWorkflow(w string) bool {
	switch w {
	case WorkflowPodcast, WorkflowWebinar, WorkflowLivestream:
		return true
	}
	return false
}
