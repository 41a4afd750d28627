package remediation

import (
	"time"

	"gorm.io/datatypes"
)

const (
	PlanStatusCreated            = "created"
	PlanStatusContentJobsCreated = "content_jobs_created"
)

const (
	GapKnowledge    = "knowledge"
	GapConceptual   = "conceptual"
	GapApplication  = "application"
	GapFoundational = "foundational"
	GapRetention    = "retention"
	GapEngagement   = "engagement"
)

// Gap is one learning gap reported for a student.
type Gap struct {
	Code        string   `json:"code"`
	Description string   `json:"description,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	GradeLevel  string   `json:"grade_level,omitempty"`
	Evidence    []string `json:"evidence,omitempty"`
	// Type is an upstream classification such as "conceptual_gap", if any.
	Type string `json:"type,omitempty"`
}

// ClassifiedGap is a gap with its assigned type.
type ClassifiedGap struct {
	Gap
	GapType    string  `json:"gap_type"`
	Confidence float64 `json:"confidence"`
}

// PlanItem is one remediation unit; each item becomes one content job.
type PlanItem struct {
	Index           int      `json:"index"`
	GapCode         string   `json:"gap_code"`
	GapType         string   `json:"gap_type"`
	Modes           []string `json:"modes"`
	Focus           string   `json:"focus"`
	AssessmentFocus string   `json:"assessment_focus,omitempty"`
}

// PlanRecord is the durable plan, kept apart from the plan job itself.
type PlanRecord struct {
	ID          string         `gorm:"column:id;primaryKey;size:64" json:"id"`
	PlanJobID   string         `gorm:"column:plan_job_id;not null;index" json:"plan_job_id"`
	StudentID   string         `gorm:"column:student_id;not null;index" json:"student_id"`
	Status      string         `gorm:"column:status;not null" json:"status"`
	Gaps        datatypes.JSON `gorm:"column:gaps" json:"gaps"`
	Items       datatypes.JSON `gorm:"column:items" json:"items"`
	ContextRefs datatypes.JSON `gorm:"column:context_refs" json:"context_refs,omitempty"`
	ChildJobIDs datatypes.JSON `gorm:"column:child_job_ids" json:"child_job_ids,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (PlanRecord) TableName() string { return "remediation_plan" }
