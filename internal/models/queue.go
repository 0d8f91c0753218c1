package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Clip queue item statuses. Transitions walk strictly forward:
// pending -> recording|processing -> completed|failed. A failed item is
// retryable only through an explicit new claim.
const (
	QueueStatusPending    = "pending"
	QueueStatusRecording  = "recording"
	QueueStatusProcessing = "processing"
	QueueStatusCompleted  = "completed"
	QueueStatusFailed     = "failed"
)

const (
	TriggerSourcePhrase = "phrase"
	TriggerSourceManual = "manual"
)

type ClipQueueItem struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ItemID    string             `bson:"item_id" json:"item_id"` // uuid v4
	SessionID string             `bson:"session_id" json:"session_id"`

	TriggerType   string `bson:"trigger_type" json:"trigger_type"` // trigger phrase or marker label
	TriggerSource string `bson:"trigger_source" json:"trigger_source"`

	Start float64  `bson:"start" json:"start"`
	End   *float64 `bson:"end,omitempty" json:"end,omitempty"` // nil until end marker resolved

	Status       string  `bson:"status" json:"status"`
	ClipID       *string `bson:"clip_id,omitempty" json:"clip_id,omitempty"`
	ErrorMessage *string `bson:"error_message,omitempty" json:"error_message,omitempty"`

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	ClaimedAt *time.Time `bson:"claimed_at,omitempty" json:"claimed_at,omitempty"`
	DoneAt    *time.Time `bson:"done_at,omitempty" json:"done_at,omitempty"`
}
