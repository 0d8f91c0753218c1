package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TranscriptDoc archives one final transcript segment per session. Interim
// segments are never written here. Documents expire via a TTL index on
// ExpiresAt.
type TranscriptDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"`
	Seq       int64              `bson:"seq" json:"seq"` // arrival order within the session

	SpeakerID  *int    `bson:"speaker_id,omitempty" json:"speaker_id,omitempty"`
	Text       string  `bson:"text" json:"text"`
	Start      float64 `bson:"start" json:"start"`
	End        float64 `bson:"end" json:"end"`
	Confidence float64 `bson:"confidence" json:"confidence"`

	Words []WordTiming `bson:"words,omitempty" json:"words,omitempty"`

	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}
