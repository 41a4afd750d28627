package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yungbote/neurobridge-remedy/internal/domain/content"
	jobrt "github.com/yungbote/neurobridge-remedy/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
	"github.com/yungbote/neurobridge-remedy/internal/realtime/bus"
)

var ErrCollectorAlreadyRan = errors.New("collector already ran for this execution")

const RouteSession = "session"

// Collector finalizes a content job: it flags the scope complete, records a
// completion event and returns the handles used as the job's resultRef.
type Collector struct {
	Store  ArtifactStore
	Events bus.Bus
	Log    *logger.Logger
}

func (c *Collector) run(jc *jobrt.Context) (map[string]string, error) {
	scope := jc.ScopeID()
	if err := c.Store.MarkStatus(jc.Ctx, scope, content.ScopeStatusCompleted); err != nil {
		return nil, fmt.Errorf("collector: mark %s complete: %w", scope, err)
	}

	ref := handlesFor(jc.PayloadString("route"), scope)
	if c.Events != nil {
		ev := bus.Event{
			Type:    bus.EventContentCompleted,
			JobID:   jc.Job.ID,
			ScopeID: scope,
			Data:    map[string]any{"result_ref": ref},
		}
		if err := c.Events.Publish(jc.Ctx, ev); err != nil {
			jc.Log.Warn("Completion event publish failed", "scope_id", scope, "error", err)
		}
	}
	return ref, nil
}

func handlesFor(route, scope string) map[string]string {
	if route == RouteSession {
		return map[string]string{"session_doc": "sessions/" + scope}
	}
	return map[string]string{"content_doc": "content/" + scope}
}

// CollectorRun guards one execution's collector so it runs at most once,
// whether reached through the graph or through recovery.
type CollectorRun struct {
	collector *Collector

	mu        sync.Mutex
	attempted bool
	ref       map[string]string
	err       error
}

func (c *Collector) NewRun() *CollectorRun {
	return &CollectorRun{collector: c}
}

func (r *CollectorRun) Invoke(ctx context.Context, jc *jobrt.Context) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attempted {
		return nil, ErrCollectorAlreadyRan
	}
	r.attempted = true
	r.ref, r.err = r.collector.run(withCtx(jc, ctx))
	return r.ref, r.err
}

func (r *CollectorRun) Attempted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempted
}

func withCtx(jc *jobrt.Context, ctx context.Context) *jobrt.Context {
	if ctx == nil || ctx == jc.Ctx {
		return jc
	}
	tmp := *jc
	tmp.Ctx = ctx
	return &tmp
}
