package remediation

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SourceCached     = "cached"
	SourceSimilarity = "similarity"
	SourceStructured = "structured_mapping"
	SourceGeneric    = "generic"
	SourceFallback   = "fallback"
)

// PrerequisiteTopic is one topic a student should master before a gap.
type PrerequisiteTopic struct {
	Topic       string  `json:"topic"`
	GradeLevel  string  `json:"grade_level"`
	Priority    int     `json:"priority"`
	SourceLayer string  `json:"source_layer"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description,omitempty"`
}

// PrerequisiteCacheEntry is keyed by (gap code, grade level, subject).
type PrerequisiteCacheEntry struct {
	GapCode    string         `gorm:"column:gap_code;primaryKey;size:128" json:"gap_code"`
	GradeLevel string         `gorm:"column:grade_level;primaryKey;size:32" json:"grade_level"`
	Subject    string         `gorm:"column:subject;primaryKey;size:64" json:"subject"`
	Source     string         `gorm:"column:source;not null" json:"source"`
	Topics     datatypes.JSON `gorm:"column:topics" json:"topics"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
}

func (PrerequisiteCacheEntry) TableName() string { return "prerequisite_cache" }
