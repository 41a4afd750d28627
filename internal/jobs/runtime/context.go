package runtime

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/yungbote/neurobridge-remedy/internal/domain/jobs"
	"github.com/yungbote/neurobridge-remedy/internal/jobs/registry"
	"github.com/yungbote/neurobridge-remedy/internal/observability"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/ctxutil"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

// JobStore is the slice of the job registry a running job may use.
type JobStore interface {
	Lookup(ctx context.Context, id string) (*domain.Job, error)
	Transition(ctx context.Context, id, status string, f registry.Fields) error
}

/*
Context is the execution handle for a single job run.

It wraps the job snapshot taken when the run started, its decoded payload,
and the only sanctioned ways to report progress or finish the job.
Pipelines never write job records directly; they go through this object so
every change passes the registry's transition rules.
*/
type Context struct {
	Ctx   context.Context
	Job   *domain.Job
	Store JobStore
	Log   *logger.Logger

	payload map[string]any
}

func NewContext(ctx context.Context, store JobStore, job *domain.Job, log *logger.Logger) *Context {
	c := &Context{
		Ctx:   ctxutil.Default(ctx),
		Job:   job,
		Store: store,
		Log:   log,
	}
	if job != nil {
		c.Log = log.With("job_id", job.ID, "job_kind", job.Kind)
		c.payload = registry.PayloadOf(job)
	}
	return c
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// PayloadStrings reads a list of strings; a single string is treated as a one-item list.
func (c *Context) PayloadStrings(key string) []string {
	switch v := c.Payload()[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s := strings.TrimSpace(fmt.Sprint(x)); s != "" && x != nil {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{strings.TrimSpace(v)}
	default:
		return nil
	}
}

func (c *Context) PayloadMap(key string) map[string]any {
	if m, ok := c.Payload()[key].(map[string]any); ok {
		return m
	}
	return nil
}

// ScopeID is the artifact scope this job writes under: payload scope_id, else the job id.
func (c *Context) ScopeID() string {
	if s := c.PayloadString("scope_id"); s != "" {
		return s
	}
	if c.Job == nil {
		return ""
	}
	return c.Job.ID
}

func (c *Context) Start() error {
	return c.transition(domain.StatusInProgress, registry.Fields{})
}

// Progress is best effort: a rejected update is logged, not returned.
func (c *Context) Progress(pct int) {
	if err := c.transition(domain.StatusInProgress, registry.Fields{Progress: &pct}); err != nil {
		c.Log.Warn("Progress update rejected", "progress", pct, "error", err)
	}
}

func (c *Context) Succeed(resultRef map[string]string) error {
	pct := 100
	empty := ""
	return c.transition(domain.StatusCompleted, registry.Fields{Progress: &pct, Error: &empty, ResultRef: resultRef})
}

// SucceedDegraded completes the job at 90% and keeps cause in the error field,
// signalling best-effort content.
func (c *Context) SucceedDegraded(resultRef map[string]string, cause error) error {
	pct := 90
	msg := errString(cause)
	return c.transition(domain.StatusCompleted, registry.Fields{Progress: &pct, Error: &msg, ResultRef: resultRef})
}

// Fail leaves progress where it was.
func (c *Context) Fail(cause error) error {
	msg := errString(cause)
	return c.transition(domain.StatusFailed, registry.Fields{Error: &msg})
}

func (c *Context) SetChildren(status string, childIDs []string, pct int) error {
	return c.transition(status, registry.Fields{Progress: &pct, ChildJobIDs: childIDs})
}

func (c *Context) transition(status string, f registry.Fields) error {
	if c == nil || c.Job == nil || c.Store == nil {
		return nil
	}
	if err := c.Store.Transition(c.Ctx, c.Job.ID, status, f); err != nil {
		return err
	}
	if domain.IsTerminal(status) && !domain.IsTerminal(c.Job.Status) {
		observability.Current().IncJobFinished(c.Job.Kind, status)
	}
	c.Job.Status = status
	if f.Progress != nil && *f.Progress > c.Job.Progress {
		c.Job.Progress = *f.Progress
	}
	if f.Error != nil {
		c.Job.Error = *f.Error
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
