package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-remedy/internal/domain/content"
	jobrt "github.com/yungbote/neurobridge-remedy/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-remedy/internal/observability"
)

const (
	progressStagesStart = 10
	progressStagesEnd   = 90
)

// Engine executes stage graphs.
type Engine struct {
	Generator ContentGenerator
	Store     ArtifactStore

	Concurrency  int           // max stages in flight; 0 means unlimited
	StageTimeout time.Duration // per-stage deadline handed to the generator; 0 means none
}

// FinalState is what a completed graph run produced.
type FinalState struct {
	ResultRef map[string]string
	ItemIDs   map[content.StageName]string
	Degraded  []content.StageName
}

// Run executes g for the job in jc. Stage generation problems degrade
// inside the stage; any error returned here escaped the graph itself.
// collector is invoked once all stages finish.
func (e *Engine) Run(jc *jobrt.Context, g *Graph, collector *CollectorRun) (*FinalState, error) {
	ctx, span := otel.Tracer("remedy/orchestrator").Start(jc.Ctx, "stage_graph.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", jc.Job.ID),
		attribute.StringSlice("stages", content.StageStrings(g.Stages())),
	)

	shared := buildShared(jc)
	results := &resultSet{items: map[content.StageName]stageOutput{}}
	jc.Progress(progressStagesStart)

	stageNodes := g.Stages()
	done := make(map[string]chan struct{}, len(stageNodes))
	for _, s := range stageNodes {
		done[string(s)] = make(chan struct{})
	}

	tracker := &progressTracker{jc: jc, total: len(stageNodes)}
	eg, gctx := errgroup.WithContext(ctx)
	if e.Concurrency > 0 {
		eg.SetLimit(e.Concurrency)
	}
	// Topological launch order keeps SetLimit from starving a waiting stage.
	for _, node := range g.Nodes() {
		ch, isStage := done[node]
		if !isStage {
			continue
		}
		name := content.StageName(node)
		preds := g.Predecessors(node)
		eg.Go(func() error {
			for _, p := range preds {
				wait, ok := done[p]
				if !ok {
					continue
				}
				select {
				case <-wait:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			if err := e.safeRunStage(gctx, jc, name, shared, results); err != nil {
				return err
			}
			close(ch)
			tracker.stageDone()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return results.state(nil), err
	}

	ref, err := collector.Invoke(ctx, jc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return results.state(nil), err
	}
	return results.state(ref), nil
}

func (e *Engine) safeRunStage(ctx context.Context, jc *jobrt.Context, name content.StageName, shared sharedContext, results *resultSet) (err error) {
	start := time.Now()
	status := "completed"
	defer func() {
		if err != nil {
			status = "failed"
		}
		observability.Current().ObserveStage(string(name), status, time.Since(start))
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %q panicked: %v", name, r)
		}
	}()
	stage, ok := StageFor(name)
	if !ok {
		return fmt.Errorf("stage %q has no implementation", name)
	}

	ctx, span := otel.Tracer("remedy/orchestrator").Start(ctx, "stage."+string(name))
	defer span.End()

	gctx := ctx
	if e.StageTimeout > 0 {
		var cancel context.CancelFunc
		gctx, cancel = context.WithTimeout(ctx, e.StageTimeout)
		defer cancel()
	}
	res := e.Generator.Generate(gctx, name, shared.focus, shared.bundleFor(name, results))
	if d, degraded := res.Degraded(); degraded {
		status = "degraded"
		span.SetAttributes(attribute.Bool("stage.degraded", true))
		jc.Log.Warn("Stage degraded to fallback payload", "stage", name, "reason", d.Reason)
	}

	id, err := stage.Persist(ctx, e.Store, jc.ScopeID(), res)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("stage %q: persist: %w", name, err)
	}
	results.put(name, res, id)
	return nil
}

type stageOutput struct {
	result content.Result
	itemID string
}

type resultSet struct {
	mu    sync.Mutex
	items map[content.StageName]stageOutput
}

func (r *resultSet) put(name content.StageName, res content.Result, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[name] = stageOutput{result: res, itemID: id}
}

func (r *resultSet) get(name content.StageName) (stageOutput, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, ok := r.items[name]
	return out, ok
}

func (r *resultSet) state(ref map[string]string) *FinalState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := &FinalState{ResultRef: ref, ItemIDs: map[content.StageName]string{}}
	for _, name := range content.AllStages {
		out, ok := r.items[name]
		if !ok {
			continue
		}
		st.ItemIDs[name] = out.itemID
		if out.result.IsDegraded() {
			st.Degraded = append(st.Degraded, name)
		}
	}
	return st
}

// progressTracker serializes progress writes so they stay monotonic.
type progressTracker struct {
	mu    sync.Mutex
	jc    *jobrt.Context
	total int
	done  int
}

func (p *progressTracker) stageDone() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	span := progressStagesEnd - progressStagesStart
	p.jc.Progress(progressStagesStart + span*p.done/p.total)
}

// sharedContext is what the orchestrator node prepares for every stage.
type sharedContext struct {
	focus  string
	bundle map[string]any
}

var sharedPayloadKeys = []string{
	"learning_gaps", "prerequisites", "grade_level", "subject", "gap_type",
	"assessment_focus", "approach", "cycle_number", "context_refs",
}

func buildShared(jc *jobrt.Context) sharedContext {
	bundle := map[string]any{}
	for k, v := range jc.PayloadMap("context_bundle") {
		bundle[k] = v
	}
	payload := jc.Payload()
	for _, k := range sharedPayloadKeys {
		if v, ok := payload[k]; ok && v != nil {
			bundle[k] = v
		}
	}

	focus := jc.PayloadString("focus")
	if focus == "" {
		focus = jc.PayloadString("topic")
	}
	if focus == "" {
		focus = strings.Join(jc.PayloadStrings("learning_gaps"), ", ")
	}
	return sharedContext{focus: focus, bundle: bundle}
}

// bundleFor hands assessment the output of the stages it waited on.
func (s sharedContext) bundleFor(name content.StageName, results *resultSet) map[string]any {
	out := make(map[string]any, len(s.bundle)+1)
	for k, v := range s.bundle {
		out[k] = v
	}
	if name != content.StageAssessment {
		return out
	}
	prior := map[string]any{}
	for _, dep := range assessmentInputs {
		if o, ok := results.get(dep); ok {
			prior[string(dep)] = o.result.Record()
		}
	}
	if len(prior) > 0 {
		out["prior_artifacts"] = prior
	}
	return out
}
