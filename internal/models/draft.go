package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// Output categories produced by content agents.
const (
	OutputSocialPost = "social_post"
	OutputQuote      = "quote"
	OutputChapter    = "chapter"
)

// Validation outcomes for a draft.
const (
	ValidationPassed  = "passed"
	ValidationFailed  = "failed"
	ValidationFixed   = "fixed"
	ValidationSkipped = "skipped"
)

// ValidationIssue is one finding from a validation pass. Ephemeral; issues
// that matter are serialized into the draft's metadata.
type ValidationIssue struct {
	Code       string `json:"code"`
	Severity   string `json:"severity"` // error|warning
	Category   string `json:"category"` // platform_limits|content_policy|brand_voice|quality
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

const (
	IssuePlatformLimits = "platform_limits"
	IssueContentPolicy  = "content_policy"
	IssueBrandVoice     = "brand_voice"
	IssueQuality        = "quality"
)

// Draft is a persisted agent output pending human approval, regardless of
// validation outcome. Immutable after persistence.
type Draft struct {
	ID        string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID string `gorm:"column:session_id;type:uuid;index" json:"session_id"`

	Agent    string `gorm:"column:agent;type:text" json:"agent"`
	Category string `gorm:"column:category;type:text;index" json:"category"`
	Title    string `gorm:"column:title;type:text" json:"title,omitempty"`
	Text     string `gorm:"column:text;type:text;not null" json:"text"`

	ValidationStatus string `gorm:"column:validation_status;type:text" json:"validation_status"`

	// Issues, refs, and agent-specific key/values.
	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`

	// Optional embedding of Text for related-content lookup.
	Embedding pgvector.Vector `gorm:"column:embedding;type:vector(768)" json:"-"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;index" json:"created_at"`
}

func (Draft) TableName() string { return "drafts" }
