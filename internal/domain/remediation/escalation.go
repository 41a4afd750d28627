package remediation

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ApproachDirect                = "direct"
	ApproachPrerequisiteDiscovery = "prerequisite_discovery"
	ApproachPrerequisiteChain     = "prerequisite_chain"
)

const (
	FinalStatusResolved  = "resolved"
	FinalStatusEscalated = "escalated"
)

// CycleRecord is the outcome of one escalation cycle.
type CycleRecord struct {
	CycleNumber          int                 `json:"cycle_number"`
	Approach             string              `json:"approach"`
	PlanID               string              `json:"plan_id"`
	AssessmentScore      float64             `json:"assessment_score"`
	GapResolved          bool                `json:"gap_resolved"`
	SpawnedContentJobIDs []string            `json:"spawned_content_job_ids"`
	Prerequisites        []PrerequisiteTopic `json:"prerequisites,omitempty"`
	PrerequisiteSource   string              `json:"prerequisite_source,omitempty"`
	Error                string              `json:"error,omitempty"`
	StartedAt            time.Time           `json:"started_at"`
	FinishedAt           time.Time           `json:"finished_at"`
}

// EscalationLog persists one full escalation session.
type EscalationLog struct {
	ID              string         `gorm:"column:id;primaryKey;size:64" json:"id"`
	GapCode         string         `gorm:"column:gap_code;not null;index" json:"gap_code"`
	StudentID       string         `gorm:"column:student_id;not null;index" json:"student_id"`
	GradeLevel      string         `gorm:"column:grade_level" json:"grade_level"`
	Subject         string         `gorm:"column:subject" json:"subject"`
	FinalStatus     string         `gorm:"column:final_status;not null" json:"final_status"`
	ResolvedAtCycle int            `gorm:"column:resolved_at_cycle" json:"resolved_at_cycle,omitempty"`
	Cycles          datatypes.JSON `gorm:"column:cycles" json:"cycles"`
	Error           string         `gorm:"column:error" json:"error,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`
}

func (EscalationLog) TableName() string { return "escalation_log" }
