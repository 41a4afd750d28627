package content

import (
	"time"

	"gorm.io/datatypes"
)

const (
	WriteAppend = "append"
	WriteSet    = "set"
)

const ScopeStatusCompleted = "completed"

// ArtifactRecord is one stored item under (scope, key). Set keys hold at most
// one row; append keys accumulate rows in insertion order.
type ArtifactRecord struct {
	ID        uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ScopeID   string         `gorm:"column:scope_id;not null;index:idx_artifact_scope_key" json:"scope_id"`
	Key       string         `gorm:"column:key;not null;index:idx_artifact_scope_key" json:"key"`
	Mode      string         `gorm:"column:mode;not null" json:"mode"`
	Value     datatypes.JSON `gorm:"column:value" json:"value"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
}

func (ArtifactRecord) TableName() string { return "artifact_record" }

// ScopeStatus carries the status flag of a content scope (job or session).
type ScopeStatus struct {
	ScopeID   string    `gorm:"column:scope_id;primaryKey;size:128" json:"scope_id"`
	Status    string    `gorm:"column:status;not null" json:"status"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ScopeStatus) TableName() string { return "scope_status" }
