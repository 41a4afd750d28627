package bus

import (
	"context"
	"time"
)

const (
	EventJobStatus           = "job.status"
	EventContentCompleted    = "content.completed"
	EventPlanChildrenSpawned = "plan.children_spawned"
	EventEscalationFinished  = "escalation.finished"
)

// Event is a lightweight notification about orchestration progress.
type Event struct {
	Type    string         `json:"type"`
	JobID   string         `json:"job_id,omitempty"`
	ScopeID string         `json:"scope_id,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	At      time.Time      `json:"at"`
}

type Bus interface {
	Publish(ctx context.Context, ev Event) error
	StartForwarder(ctx context.Context, onEvent func(ev Event)) error
	Close() error
}
