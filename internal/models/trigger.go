package models

import "time"

// AudioTrigger is a configured spoken phrase that enqueues a clip job when
// detected. Loaded per workflow at session start; read-only to the detection
// engine during a run.
type AudioTrigger struct {
	ID            string    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Workflow      string    `gorm:"column:workflow;type:text;index" json:"workflow"`
	Phrase        string    `gorm:"column:phrase;type:text;not null" json:"phrase"`
	Enabled       bool      `gorm:"column:enabled;default:true" json:"enabled"`
	CaseSensitive bool      `gorm:"column:case_sensitive;default:false" json:"case_sensitive"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (AudioTrigger) TableName() string { return "audio_triggers" }

// TriggerMatch is one detection hit. Ephemeral: it is never persisted
// directly, it becomes a pending ClipQueueItem.
type TriggerMatch struct {
	TriggerID   string  `json:"trigger_id"`
	Phrase      string  `json:"phrase"`
	MatchedText string  `json:"matched_text"`
	Confidence  float64 `json:"confidence"`
	Timestamp   float64 `json:"timestamp"` // seconds from session start
}
