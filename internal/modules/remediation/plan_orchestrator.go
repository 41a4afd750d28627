package remediation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	remrepo "github.com/yungbote/neurobridge-remedy/internal/data/repos/remediation"
	"github.com/yungbote/neurobridge-remedy/internal/domain/content"
	jobdomain "github.com/yungbote/neurobridge-remedy/internal/domain/jobs"
	domain "github.com/yungbote/neurobridge-remedy/internal/domain/remediation"
	"github.com/yungbote/neurobridge-remedy/internal/jobs/registry"
	jobrt "github.com/yungbote/neurobridge-remedy/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/ctxutil"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
	"github.com/yungbote/neurobridge-remedy/internal/realtime/bus"
)

const (
	planProgressStarted    = 10
	planProgressClassified = 30
	planProgressPersisted  = 50
	planProgressSpawning   = 60

	aggregateConcurrency = 8
)

type PlanRegistry interface {
	jobrt.JobStore
	Create(ctx context.Context, id, kind string, payload map[string]any, parentJobID string) (*jobdomain.Job, error)
	Get(ctx context.Context, id string) (jobdomain.JobStatus, error)
}

type ContentReader interface {
	ReadScope(ctx context.Context, scopeID string) (map[string]any, error)
}

type PlanRequest struct {
	StudentID   string         `json:"student_id"`
	Gaps        []domain.Gap   `json:"gaps"`
	ContextRefs map[string]any `json:"context_refs,omitempty"`
}

// ChildContent is one child job's slot in an aggregate. Error is set when its
// status or content could not be read; the other children are unaffected.
type ChildContent struct {
	JobID   string               `json:"job_id"`
	Status  *jobdomain.JobStatus `json:"status,omitempty"`
	Content map[string]any       `json:"content,omitempty"`
	Error   string               `json:"error,omitempty"`
}

type AggregateView struct {
	PlanJob     jobdomain.JobStatus `json:"plan_job"`
	Plan        *domain.PlanRecord  `json:"plan,omitempty"`
	PlanError   string              `json:"plan_error,omitempty"`
	ChildJobIDs []string            `json:"child_job_ids"`
	Contents    []ChildContent      `json:"contents"`
}

// PlanOrchestrator coordinates plan jobs and the content jobs they spawn.
type PlanOrchestrator struct {
	reg     PlanRegistry
	runner  Executor
	plans   remrepo.PlanRecordRepo
	content ContentReader
	events  bus.Bus
	log     *logger.Logger

	children sync.WaitGroup
}

func NewPlanOrchestrator(reg PlanRegistry, runner Executor, plans remrepo.PlanRecordRepo, content ContentReader, events bus.Bus, log *logger.Logger) *PlanOrchestrator {
	return &PlanOrchestrator{
		reg:     reg,
		runner:  runner,
		plans:   plans,
		content: content,
		events:  events,
		log:     log.With("component", "PlanOrchestrator"),
	}
}

/*
SubmitPlan classifies the gaps, stores a remediation plan and starts one
content job per plan item. It returns the plan job id.

The plan job completes as soon as every child has been created; children run
in the background and are not awaited here. Wait joins them on shutdown.

When an error is returned after the plan job was created, the id is still
returned and the plan job is marked failed.
*/
func (o *PlanOrchestrator) SubmitPlan(ctx context.Context, req PlanRequest) (string, error) {
	if err := validatePlanRequest(req); err != nil {
		return "", err
	}
	ctx = ctxutil.Default(ctx)
	ctx, span := otel.Tracer("remedy/remediation").Start(ctx, "plan.submit")
	defer span.End()

	planJobID := uuid.NewString()
	span.SetAttributes(attribute.String("job.id", planJobID), attribute.Int("gaps", len(req.Gaps)))

	job, err := o.reg.Create(ctx, planJobID, jobdomain.KindPlan, map[string]any{
		"student_id":   req.StudentID,
		"gaps":         req.Gaps,
		"context_refs": req.ContextRefs,
	}, "")
	if err != nil {
		return "", fmt.Errorf("create plan job: %w", err)
	}
	jc := jobrt.NewContext(ctx, o.reg, job, o.log)
	if err := jc.Start(); err != nil {
		return planJobID, fmt.Errorf("start plan job: %w", err)
	}
	jc.Progress(planProgressStarted)

	classified := Classify(req.Gaps)
	jc.Progress(planProgressClassified)

	items := PlanItems(classified)
	planID := "REMEDY_PLAN_" + shortID()
	if err := o.createPlanRecord(ctx, planID, planJobID, req, classified, items); err != nil {
		return planJobID, o.fail(jc, fmt.Errorf("persist plan: %w", err))
	}
	jc.Progress(planProgressPersisted)
	jc.Progress(planProgressSpawning)

	childIDs := make([]string, 0, len(items))
	for _, item := range items {
		id, err := o.spawnChild(ctx, planJobID, planID, req, classified[item.Index], item)
		if err != nil {
			if len(childIDs) > 0 {
				_ = jc.SetChildren(jobdomain.StatusInProgress, childIDs, planProgressSpawning)
			}
			return planJobID, o.fail(jc, fmt.Errorf("spawn child %d: %w", item.Index, err))
		}
		childIDs = append(childIDs, id)
	}

	if err := jc.SetChildren(jobdomain.StatusInProgress, childIDs, planProgressSpawning); err != nil {
		return planJobID, fmt.Errorf("record children: %w", err)
	}
	o.markPlanSpawned(ctx, planID, childIDs)
	if err := jc.Succeed(map[string]string{"remedy_plan_id": planID}); err != nil {
		return planJobID, fmt.Errorf("complete plan job: %w", err)
	}

	o.publish(ctx, planJobID, planID, childIDs)
	o.log.Info("Plan submitted", "job_id", planJobID, "plan_id", planID, "children", len(childIDs), "student_id", req.StudentID)
	return planJobID, nil
}

func validatePlanRequest(req PlanRequest) error {
	if len(req.Gaps) == 0 {
		return fmt.Errorf("%w: at least one gap is required", pkgerrors.ErrInvalidArgument)
	}
	for i, g := range req.Gaps {
		if strings.TrimSpace(g.Code) == "" {
			return fmt.Errorf("%w: gap %d has no code", pkgerrors.ErrInvalidArgument, i)
		}
	}
	return nil
}

func (o *PlanOrchestrator) fail(jc *jobrt.Context, cause error) error {
	if err := jc.Fail(cause); err != nil {
		o.log.Error("Plan job failure not recorded", "job_id", jc.Job.ID, "error", err)
	}
	return cause
}

func (o *PlanOrchestrator) createPlanRecord(ctx context.Context, planID, planJobID string, req PlanRequest, gaps []domain.ClassifiedGap, items []domain.PlanItem) error {
	if o.plans == nil {
		return nil
	}
	gapsJSON, err := json.Marshal(gaps)
	if err != nil {
		return err
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return err
	}
	refsJSON, err := json.Marshal(req.ContextRefs)
	if err != nil {
		return err
	}
	return o.plans.Create(dbctx.Context{Ctx: ctx}, &domain.PlanRecord{
		ID:          planID,
		PlanJobID:   planJobID,
		StudentID:   req.StudentID,
		Status:      domain.PlanStatusCreated,
		Gaps:        datatypes.JSON(gapsJSON),
		Items:       datatypes.JSON(itemsJSON),
		ContextRefs: datatypes.JSON(refsJSON),
	})
}

func (o *PlanOrchestrator) markPlanSpawned(ctx context.Context, planID string, childIDs []string) {
	if o.plans == nil {
		return
	}
	ids, _ := json.Marshal(childIDs)
	err := o.plans.UpdateFields(dbctx.Context{Ctx: ctx}, planID, map[string]interface{}{
		"status":        domain.PlanStatusContentJobsCreated,
		"child_job_ids": datatypes.JSON(ids),
	})
	if err != nil {
		o.log.Warn("Plan record status not updated", "plan_id", planID, "error", err)
	}
}

// spawnChild creates the child job synchronously and runs it in the background.
func (o *PlanOrchestrator) spawnChild(ctx context.Context, planJobID, planID string, req PlanRequest, gap domain.ClassifiedGap, item domain.PlanItem) (string, error) {
	selection, err := content.ParseSelection(item.Modes)
	if err != nil {
		return "", err
	}
	payload := map[string]any{
		"focus":            item.GapCode,
		"topic":            item.GapCode,
		"learning_gaps":    []string{item.GapCode},
		"gap_type":         item.GapType,
		"assessment_focus": item.AssessmentFocus,
		"plan_index":       item.Index,
		"remedy_plan_id":   planID,
		"modes":            item.Modes,
		"context_bundle": map[string]any{
			"strategy_focus": item.Focus,
			"evidence":       gap.Evidence,
		},
	}
	if gap.Subject != "" {
		payload["subject"] = gap.Subject
	}
	if gap.GradeLevel != "" {
		payload["grade_level"] = gap.GradeLevel
	}
	if len(req.ContextRefs) > 0 {
		payload["context_refs"] = req.ContextRefs
	}

	childID := uuid.NewString()
	if _, err := o.reg.Create(ctx, childID, jobdomain.KindContent, payload, planJobID); err != nil {
		return "", err
	}

	childCtx := ctxutil.Detached(ctx)
	o.children.Add(1)
	go func() {
		defer o.children.Done()
		st, err := o.runner.Execute(childCtx, childID, selection, payload)
		if err != nil {
			o.log.Error("Child job did not run", "job_id", childID, "parent_job_id", planJobID, "error", err)
			return
		}
		o.log.Debug("Child job finished", "job_id", childID, "parent_job_id", planJobID, "status", st.Status)
	}()
	return childID, nil
}

func (o *PlanOrchestrator) publish(ctx context.Context, planJobID, planID string, childIDs []string) {
	if o.events == nil {
		return
	}
	err := o.events.Publish(ctx, bus.Event{
		Type:  bus.EventPlanChildrenSpawned,
		JobID: planJobID,
		Data:  map[string]any{"remedy_plan_id": planID, "child_job_ids": childIDs},
		At:    time.Now().UTC(),
	})
	if err != nil {
		o.log.Warn("Plan event not published", "job_id", planJobID, "error", err)
	}
}

// Wait blocks until every spawned child has returned or ctx is done.
func (o *PlanOrchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.children.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

/*
GetAggregate assembles the plan record, the child job ids and each child's
current status and content. Children are read concurrently; a child whose
content cannot be read gets an inline error instead of failing the call.
*/
func (o *PlanOrchestrator) GetAggregate(ctx context.Context, planJobID string) (*AggregateView, error) {
	ctx = ctxutil.Default(ctx)
	ctx, span := otel.Tracer("remedy/remediation").Start(ctx, "plan.aggregate")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", planJobID))

	st, err := o.reg.Get(ctx, planJobID)
	if err != nil {
		return nil, err
	}
	if st.Kind != jobdomain.KindPlan {
		return nil, fmt.Errorf("%w: job %s is not a plan job", pkgerrors.ErrInvalidArgument, planJobID)
	}

	view := &AggregateView{
		PlanJob:     st,
		ChildJobIDs: append([]string{}, st.ChildJobIDs...),
		Contents:    make([]ChildContent, len(st.ChildJobIDs)),
	}
	if o.plans != nil {
		plan, err := o.plans.GetByPlanJobID(dbctx.Context{Ctx: ctx}, planJobID)
		switch {
		case errors.Is(err, pkgerrors.ErrNotFound):
			view.PlanError = "plan record not found"
		case err != nil:
			return nil, fmt.Errorf("load plan record: %w", err)
		default:
			view.Plan = plan
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(aggregateConcurrency)
	for i, id := range view.ChildJobIDs {
		g.Go(func() error {
			view.Contents[i] = o.childContent(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return view, nil
}

func (o *PlanOrchestrator) childContent(ctx context.Context, id string) ChildContent {
	out := ChildContent{JobID: id}
	job, err := o.reg.Lookup(ctx, id)
	if err != nil {
		out.Error = fmt.Sprintf("status unavailable: %v", err)
		return out
	}
	st := registry.StatusOf(*job)
	out.Status = &st
	if o.content == nil {
		out.Error = "content store unavailable"
		return out
	}
	scope := id
	if s, ok := registry.PayloadOf(job)["scope_id"].(string); ok && strings.TrimSpace(s) != "" {
		scope = s
	}
	doc, err := o.content.ReadScope(ctx, scope)
	if err != nil {
		out.Error = fmt.Sprintf("content unavailable: %v", err)
		return out
	}
	out.Content = doc
	return out
}
