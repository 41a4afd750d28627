package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/datatypes"

	jobrepo "github.com/yungbote/neurobridge-remedy/internal/data/repos/jobs"
	domain "github.com/yungbote/neurobridge-remedy/internal/domain/jobs"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/ctxutil"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

// Notifier receives every accepted job change. Implementations must not block.
type Notifier interface {
	JobChanged(ctx context.Context, status domain.JobStatus)
}

// Fields are the optional attributes written alongside a status transition.
// Nil members are left untouched.
type Fields struct {
	Progress    *int
	Error       *string
	ResultRef   map[string]string
	ChildJobIDs []string
}

type entry struct {
	job     domain.Job
	touched time.Time
}

/*
Registry owns every job lifecycle record.

Writes go to the durable repo first and then to the process-local layer.
Reads consult the local layer first and fall back to the durable repo
without repopulating the local layer, so a restarted process treats
durable-only jobs as cold.

Exactly one runner is expected to write a given job at a time; there is no
cross-process locking. Concurrent writers resolve as last-writer-wins.
*/
type Registry struct {
	durable jobrepo.JobRepo
	notify  Notifier
	log     *logger.Logger
	ttl     time.Duration
	now     func() time.Time

	mu  sync.RWMutex
	hot map[string]*entry
}

type Options struct {
	// EphemeralTTL is how long terminal jobs stay in the local layer. Zero keeps them forever.
	EphemeralTTL time.Duration
	Notifier     Notifier
}

func New(durable jobrepo.JobRepo, log *logger.Logger, opts Options) *Registry {
	return &Registry{
		durable: durable,
		notify:  opts.Notifier,
		log:     log.With("component", "JobRegistry"),
		ttl:     opts.EphemeralTTL,
		now:     time.Now,
		hot:     map[string]*entry{},
	}
}

func (r *Registry) Create(ctx context.Context, id, kind string, payload map[string]any, parentJobID string) (*domain.Job, error) {
	ctx = ctxutil.Default(ctx)
	if id == "" {
		return nil, fmt.Errorf("%w: empty job id", pkgerrors.ErrInvalidArgument)
	}
	if kind != domain.KindContent && kind != domain.KindPlan {
		return nil, fmt.Errorf("%w: unknown job kind %q", pkgerrors.ErrInvalidArgument, kind)
	}
	if r.Cached(id) {
		return nil, fmt.Errorf("%w: job %s already exists", pkgerrors.ErrInvalidArgument, id)
	}
	if exists, err := r.durableExists(ctx, id); err != nil {
		return nil, fmt.Errorf("check job %s: %w", id, err)
	} else if exists {
		return nil, fmt.Errorf("%w: job %s already exists", pkgerrors.ErrInvalidArgument, id)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	now := r.now()
	job := domain.Job{
		ID:          id,
		Kind:        kind,
		Status:      domain.StatusPending,
		Payload:     datatypes.JSON(raw),
		ParentJobID: parentJobID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if r.durable != nil {
		row := job
		if err := r.durable.Create(dbctx.Context{Ctx: ctx}, &row); err != nil {
			// Lost a race with a concurrent Create of the same id.
			if exists, _ := r.durableExists(ctx, id); exists {
				return nil, fmt.Errorf("%w: job %s already exists", pkgerrors.ErrInvalidArgument, id)
			}
			return nil, fmt.Errorf("persist job %s: %w", id, err)
		}
	}
	r.mu.Lock()
	r.hot[id] = &entry{job: job, touched: now}
	r.mu.Unlock()

	r.log.Debug("Job created", "job_id", id, "job_kind", kind)
	r.emit(ctx, job)
	out := job
	return &out, nil
}

func (r *Registry) durableExists(ctx context.Context, id string) (bool, error) {
	if r.durable == nil {
		return false, nil
	}
	_, err := r.durable.GetByID(dbctx.Context{Ctx: ctx}, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pkgerrors.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Transition moves a job to status and applies fields. Regressions return
// ErrInvalidTransition; writes to a finished job return ErrTerminal.
func (r *Registry) Transition(ctx context.Context, id, status string, f Fields) error {
	ctx = ctxutil.Default(ctx)
	cur, err := r.Lookup(ctx, id)
	if err != nil {
		return err
	}
	if domain.IsTerminal(cur.Status) {
		return fmt.Errorf("%w: %s is %s", pkgerrors.ErrTerminal, id, cur.Status)
	}
	if !domain.CanTransition(cur.Status, status) {
		return fmt.Errorf("%w: %s -> %s", pkgerrors.ErrInvalidTransition, cur.Status, status)
	}

	next := *cur
	now := r.now()
	next.Status = status
	next.UpdatedAt = now
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": now,
	}
	if f.Progress != nil {
		next.Progress = clampProgress(cur.Progress, *f.Progress)
		updates["progress"] = next.Progress
	}
	if f.Error != nil {
		next.Error = *f.Error
		updates["error"] = next.Error
	}
	if f.ResultRef != nil {
		raw, err := json.Marshal(f.ResultRef)
		if err != nil {
			return fmt.Errorf("encode result ref: %w", err)
		}
		next.ResultRef = datatypes.JSON(raw)
		updates["result_ref"] = next.ResultRef
	}
	if f.ChildJobIDs != nil {
		raw, err := json.Marshal(f.ChildJobIDs)
		if err != nil {
			return fmt.Errorf("encode child ids: %w", err)
		}
		next.ChildJobIDs = datatypes.JSON(raw)
		updates["child_job_ids"] = next.ChildJobIDs
	}

	if r.durable != nil {
		ok, err := r.durable.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, id, domain.TerminalStatuses(), updates)
		if err != nil {
			return fmt.Errorf("persist transition %s: %w", id, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s rejected by durable store", pkgerrors.ErrTerminal, id)
		}
	}

	r.mu.Lock()
	r.hot[id] = &entry{job: next, touched: now}
	r.mu.Unlock()

	r.emit(ctx, next)
	return nil
}

// Get returns the poller view of a job.
func (r *Registry) Get(ctx context.Context, id string) (domain.JobStatus, error) {
	job, err := r.Lookup(ctx, id)
	if err != nil {
		return domain.JobStatus{}, err
	}
	return StatusOf(*job), nil
}

// Lookup returns a copy of the full record, local layer first.
func (r *Registry) Lookup(ctx context.Context, id string) (*domain.Job, error) {
	r.mu.RLock()
	e, ok := r.hot[id]
	var job domain.Job
	if ok {
		job = e.job
	}
	r.mu.RUnlock()
	if ok {
		return &job, nil
	}
	if r.durable == nil {
		return nil, fmt.Errorf("job %s: %w", id, pkgerrors.ErrNotFound)
	}
	row, err := r.durable.GetByID(dbctx.Context{Ctx: ctxutil.Default(ctx)}, id)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, fmt.Errorf("job %s: %w", id, pkgerrors.ErrNotFound)
		}
		return nil, err
	}
	return row, nil
}

// Cached reports whether id is currently held in the local layer.
func (r *Registry) Cached(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.hot[id]
	return ok
}

// Sweep drops terminal jobs older than the TTL from the local layer.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.hot {
		if domain.IsTerminal(e.job.Status) && e.touched.Before(cutoff) {
			delete(r.hot, id)
			n++
		}
	}
	return n
}

// StartJanitor sweeps on interval until ctx is done.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if r.ttl <= 0 || interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := r.Sweep(); n > 0 {
					r.log.Debug("Evicted terminal jobs from local layer", "count", n)
				}
			}
		}
	}()
}

func (r *Registry) emit(ctx context.Context, job domain.Job) {
	if r.notify == nil {
		return
	}
	r.notify.JobChanged(ctx, StatusOf(job))
}

// StatusOf projects a job record into its poller view.
func StatusOf(job domain.Job) domain.JobStatus {
	st := domain.JobStatus{
		ID:       job.ID,
		Kind:     job.Kind,
		Status:   job.Status,
		Progress: job.Progress,
		Error:    job.Error,
	}
	if len(job.ResultRef) > 0 {
		_ = json.Unmarshal(job.ResultRef, &st.ResultRef)
	}
	if len(job.ChildJobIDs) > 0 {
		_ = json.Unmarshal(job.ChildJobIDs, &st.ChildJobIDs)
	}
	return st
}

// PayloadOf decodes a job payload; malformed payloads decode to an empty map.
func PayloadOf(job *domain.Job) map[string]any {
	out := map[string]any{}
	if job == nil || len(job.Payload) == 0 {
		return out
	}
	if err := json.Unmarshal(job.Payload, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func clampProgress(prev, next int) int {
	if next < 0 {
		next = 0
	}
	if next > 100 {
		next = 100
	}
	if next < prev {
		return prev
	}
	return next
}
