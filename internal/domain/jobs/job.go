package jobs

import (
	"time"

	"gorm.io/datatypes"
)

const (
	KindContent = "content"
	KindPlan    = "plan"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

// Job is the lifecycle record of one content or plan execution.
type Job struct {
	ID          string         `gorm:"column:id;primaryKey;size:64" json:"id"`
	Kind        string         `gorm:"column:kind;not null;index" json:"kind"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	Progress    int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	ResultRef   datatypes.JSON `gorm:"column:result_ref" json:"result_ref,omitempty"`
	Payload     datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`
	ChildJobIDs datatypes.JSON `gorm:"column:child_job_ids" json:"child_job_ids,omitempty"`
	ParentJobID string         `gorm:"column:parent_job_id;index" json:"parent_job_id,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;index" json:"updated_at"`
}

func (Job) TableName() string { return "job" }

// JobStatus is the read view handed to pollers.
type JobStatus struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	Status      string            `json:"status"`
	Progress    int               `json:"progress"`
	Error       string            `json:"error,omitempty"`
	ResultRef   map[string]string `json:"result_ref,omitempty"`
	ChildJobIDs []string          `json:"child_job_ids,omitempty"`
}

func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusPartial, StatusFailed:
		return true
	default:
		return false
	}
}

func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusInProgress, StatusCompleted, StatusPartial, StatusFailed:
		return true
	default:
		return false
	}
}

func rank(status string) int {
	switch status {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	default:
		return 2
	}
}

// CanTransition reports whether a job may move from one status to another.
// Staying in a non-terminal status is allowed so progress can be reported.
func CanTransition(from, to string) bool {
	if !ValidStatus(from) || !ValidStatus(to) || IsTerminal(from) {
		return false
	}
	if from == to {
		return true
	}
	return rank(to) > rank(from)
}

// TerminalStatuses lists the statuses a durable write must not overwrite.
func TerminalStatuses() []string {
	return []string{StatusCompleted, StatusPartial, StatusFailed}
}
