package models

import (
	"time"

	"gorm.io/datatypes"
)

// Clip is a finished trimmed artifact produced by the clip job processor.
type Clip struct {
	ID        string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID string `gorm:"column:session_id;type:uuid;index" json:"session_id"`

	SourcePath    string  `gorm:"column:source_path;type:text" json:"source_path"`
	ClipURL       string  `gorm:"column:clip_url;type:text" json:"clip_url"`
	ThumbnailURL  string  `gorm:"column:thumbnail_url;type:text" json:"thumbnail_url"`
	Start         float64 `gorm:"column:start_seconds" json:"start_seconds"`
	End           float64 `gorm:"column:end_seconds" json:"end_seconds"`
	Duration      float64 `gorm:"column:duration_seconds" json:"duration_seconds"`
	TriggerType   string  `gorm:"column:trigger_type;type:text" json:"trigger_type"`
	TriggerSource string  `gorm:"column:trigger_source;type:text" json:"trigger_source"`

	Metadata  datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt time.Time      `gorm:"column:created_at;type:timestamptz;index" json:"created_at"`
}

func (Clip) TableName() string { return "clips" }
