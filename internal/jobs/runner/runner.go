package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/neurobridge-remedy/internal/domain/content"
	domain "github.com/yungbote/neurobridge-remedy/internal/domain/jobs"
	"github.com/yungbote/neurobridge-remedy/internal/jobs/orchestrator"
	"github.com/yungbote/neurobridge-remedy/internal/jobs/registry"
	jobrt "github.com/yungbote/neurobridge-remedy/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/ctxutil"
	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

// Registry is what the runner needs from the job registry.
type Registry interface {
	jobrt.JobStore
	Create(ctx context.Context, id, kind string, payload map[string]any, parentJobID string) (*domain.Job, error)
	Get(ctx context.Context, id string) (domain.JobStatus, error)
}

type Runner struct {
	reg       Registry
	engine    *orchestrator.Engine
	collector *orchestrator.Collector
	log       *logger.Logger

	inflight sync.WaitGroup
}

func New(reg Registry, engine *orchestrator.Engine, collector *orchestrator.Collector, log *logger.Logger) *Runner {
	return &Runner{
		reg:       reg,
		engine:    engine,
		collector: collector,
		log:       log.With("component", "JobRunner"),
	}
}

/*
Execute runs one content job to a terminal status.

The job is created from payload when it does not exist yet. A job that has
already left pending is left alone, so repeated calls are no-ops.

When an error escapes the graph before collector ran, collector is invoked
once out of band over whatever the stages already stored. If that works the
job completes at 90% with the original error kept; otherwise it fails.

The caller's cancellation is not propagated: once called, the job runs to
completion or to its own failure handling.

The returned error covers registry problems only; a failed job is reported
through the returned status.
*/
func (r *Runner) Execute(ctx context.Context, jobID string, selection []content.StageName, payload map[string]any) (domain.JobStatus, error) {
	// A started job must reach a terminal status even if the caller goes away.
	ctx = ctxutil.Detached(ctx)
	ctx, span := otel.Tracer("remedy/runner").Start(ctx, "job_runner.execute")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID))

	job, err := r.reg.Lookup(ctx, jobID)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		job, err = r.reg.Create(ctx, jobID, domain.KindContent, payload, "")
	}
	if err != nil {
		return domain.JobStatus{}, err
	}
	if job.Status != domain.StatusPending {
		r.log.Debug("Job already started, skipping", "job_id", jobID, "status", job.Status)
		return registry.StatusOf(*job), nil
	}

	jc := jobrt.NewContext(ctx, r.reg, job, r.log)
	if err := jc.Start(); err != nil {
		return domain.JobStatus{}, fmt.Errorf("start job %s: %w", jobID, err)
	}

	run := r.collector.NewRun()
	runErr := r.runGraph(jc, selection, run)
	if runErr == nil {
		return r.reg.Get(ctx, jobID)
	}

	span.RecordError(runErr)
	if run.Attempted() {
		jc.Log.Error("Graph failed after collector ran", "error", runErr)
		span.SetStatus(codes.Error, runErr.Error())
		if err := jc.Fail(runErr); err != nil {
			return domain.JobStatus{}, err
		}
		return r.reg.Get(ctx, jobID)
	}

	jc.Log.Warn("Graph failed, attempting partial recovery", "error", runErr)
	ref, recErr := run.Invoke(ctx, jc)
	if recErr != nil {
		jc.Log.Error("Partial recovery failed", "error", recErr, "cause", runErr)
		span.SetStatus(codes.Error, runErr.Error())
		if err := jc.Fail(runErr); err != nil {
			return domain.JobStatus{}, err
		}
		return r.reg.Get(ctx, jobID)
	}
	span.SetAttributes(attribute.Bool("job.recovered", true))
	if err := jc.SucceedDegraded(ref, runErr); err != nil {
		return domain.JobStatus{}, err
	}
	return r.reg.Get(ctx, jobID)
}

func (r *Runner) runGraph(jc *jobrt.Context, selection []content.StageName, run *orchestrator.CollectorRun) error {
	g, err := orchestrator.Build(selection)
	if err != nil {
		return fmt.Errorf("build stage graph: %w", err)
	}
	st, err := r.engine.Run(jc, g, run)
	if err != nil {
		return err
	}
	if err := jc.Succeed(st.ResultRef); err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}
	if len(st.Degraded) > 0 {
		jc.Log.Info("Job completed with degraded stages", "degraded", content.StageStrings(st.Degraded))
	}
	return nil
}
