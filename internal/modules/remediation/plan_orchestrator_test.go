package remediation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	remrepo "github.com/yungbote/neurobridge-remedy/internal/data/repos/remediation"
	"github.com/yungbote/neurobridge-remedy/internal/data/repos/testutil"
	"github.com/yungbote/neurobridge-remedy/internal/domain/content"
	jobdomain "github.com/yungbote/neurobridge-remedy/internal/domain/jobs"
	domain "github.com/yungbote/neurobridge-remedy/internal/domain/remediation"
	"github.com/yungbote/neurobridge-remedy/internal/jobs/registry"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
	"github.com/yungbote/neurobridge-remedy/internal/realtime/bus"
)

type planFixture struct {
	orch    *PlanOrchestrator
	reg     *registry.Registry
	runner  *blockingRunner
	plans   remrepo.PlanRecordRepo
	content *fakeContent
	events  *bus.MemoryBus
}

func newPlanFixture(t *testing.T) *planFixture {
	t.Helper()
	log := testutil.Logger(t)
	f := &planFixture{
		reg:     registry.New(nil, log, registry.Options{}),
		runner:  &blockingRunner{release: make(chan struct{})},
		plans:   remrepo.NewPlanRecordRepo(testutil.DB(t), log),
		content: &fakeContent{docs: map[string]map[string]any{}},
		events:  bus.NewMemoryBus(16),
	}
	f.orch = NewPlanOrchestrator(f.reg, f.runner, f.plans, f.content, f.events, log)
	t.Cleanup(f.runner.unblock)
	return f
}

func threeGaps() PlanRequest {
	return PlanRequest{
		StudentID: "student-1",
		Gaps: []domain.Gap{
			{Code: "SOLVE_LINEAR", Subject: "mathematics", GradeLevel: "grade_9"},
			{Code: "FRACTION_CONCEPT"},
			{Code: "X9", Type: "engagement_gap"},
		},
		ContextRefs: map[string]any{"class_id": "c-1"},
	}
}

func TestSubmitPlanRecordsChildrenBeforeTheyFinish(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()

	planJobID, err := f.orch.SubmitPlan(ctx, threeGaps())
	if err != nil {
		t.Fatalf("SubmitPlan: %v", err)
	}
	st, err := f.reg.Get(ctx, planJobID)
	if err != nil {
		t.Fatalf("Get plan job: %v", err)
	}
	if st.Kind != jobdomain.KindPlan || st.Status != jobdomain.StatusCompleted || st.Progress != 100 {
		t.Fatalf("plan job: %+v", st)
	}
	if len(st.ChildJobIDs) != 3 {
		t.Fatalf("child ids: want=3 got=%d", len(st.ChildJobIDs))
	}
	if n := f.runner.finished.Load(); n != 0 {
		t.Fatalf("children finished before release: %d", n)
	}
	if st.ResultRef["remedy_plan_id"] == "" {
		t.Fatalf("plan job result ref missing plan id: %v", st.ResultRef)
	}

	for i, id := range st.ChildJobIDs {
		job, err := f.reg.Lookup(ctx, id)
		if err != nil {
			t.Fatalf("child %d lookup: %v", i, err)
		}
		if job.Kind != jobdomain.KindContent || job.ParentJobID != planJobID {
			t.Fatalf("child %d: kind=%q parent=%q", i, job.Kind, job.ParentJobID)
		}
		payload := registry.PayloadOf(job)
		if payload["plan_index"] != float64(i) {
			t.Fatalf("child %d plan_index: got=%v", i, payload["plan_index"])
		}
		if payload["remedy_plan_id"] != st.ResultRef["remedy_plan_id"] {
			t.Fatalf("child %d plan id: got=%v", i, payload["remedy_plan_id"])
		}
	}

	rec, err := f.plans.GetByPlanJobID(dbctx.Context{Ctx: ctx}, planJobID)
	if err != nil {
		t.Fatalf("plan record: %v", err)
	}
	if rec.Status != domain.PlanStatusContentJobsCreated {
		t.Fatalf("plan record status: got=%q", rec.Status)
	}
	var items []domain.PlanItem
	if err := json.Unmarshal(rec.Items, &items); err != nil || len(items) != 3 {
		t.Fatalf("plan items: err=%v len=%d", err, len(items))
	}
	if items[0].GapType != domain.GapApplication || items[2].GapType != domain.GapEngagement {
		t.Fatalf("plan item types: %q %q", items[0].GapType, items[2].GapType)
	}
	if n := len(f.events.Events(bus.EventPlanChildrenSpawned)); n != 1 {
		t.Fatalf("spawn events: want=1 got=%d", n)
	}

	f.runner.unblock()
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := f.orch.Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n := f.runner.finished.Load(); n != 3 {
		t.Fatalf("children finished: want=3 got=%d", n)
	}
	sel := f.runner.selectionFor(st.ChildJobIDs[0])
	want := []content.StageName{content.StagePlaying, content.StageDoing, content.StageSolving}
	if len(sel) != 3 || sel[0] != want[0] || sel[1] != want[1] || sel[2] != want[2] {
		t.Fatalf("child 0 selection: got=%v", sel)
	}
}

func TestGetAggregateCapturesPerChildErrors(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()

	planJobID, err := f.orch.SubmitPlan(ctx, threeGaps())
	if err != nil {
		t.Fatalf("SubmitPlan: %v", err)
	}
	st, _ := f.reg.Get(ctx, planJobID)
	f.content.set(st.ChildJobIDs[1], map[string]any{"texts": []any{"ok"}, "status": "completed"})

	view, err := f.orch.GetAggregate(ctx, planJobID)
	if err != nil {
		t.Fatalf("GetAggregate: %v", err)
	}
	if view.Plan == nil || view.PlanError != "" {
		t.Fatalf("plan: %+v err=%q", view.Plan, view.PlanError)
	}
	if len(view.ChildJobIDs) != 3 || len(view.Contents) != 3 {
		t.Fatalf("aggregate sizes: ids=%d contents=%d", len(view.ChildJobIDs), len(view.Contents))
	}
	for i, c := range view.Contents {
		if c.JobID != st.ChildJobIDs[i] {
			t.Fatalf("content %d order: want=%s got=%s", i, st.ChildJobIDs[i], c.JobID)
		}
		if c.Status == nil || c.Status.Status != jobdomain.StatusPending {
			t.Fatalf("content %d status: %+v", i, c.Status)
		}
		populated := c.Content != nil
		if populated == (c.Error != "") {
			t.Fatalf("content %d must be populated xor errored: %+v", i, c)
		}
	}
	if view.Contents[1].Content == nil {
		t.Fatalf("child 1 content should be populated")
	}
	if view.Contents[0].Error == "" || view.Contents[2].Error == "" {
		t.Fatalf("children 0 and 2 should carry errors")
	}
}

func TestGetAggregateUnknownAndWrongKind(t *testing.T) {
	f := newPlanFixture(t)
	ctx := context.Background()

	if _, err := f.orch.GetAggregate(ctx, "nope"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("unknown: want ErrNotFound, got %v", err)
	}
	if _, err := f.reg.Create(ctx, "content-1", jobdomain.KindContent, nil, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.orch.GetAggregate(ctx, "content-1"); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("content job: want ErrInvalidArgument, got %v", err)
	}
}

func TestSubmitPlanValidates(t *testing.T) {
	f := newPlanFixture(t)
	cases := []PlanRequest{
		{StudentID: "s"},
		{StudentID: "s", Gaps: []domain.Gap{{Code: " "}}},
	}
	for i, req := range cases {
		if _, err := f.orch.SubmitPlan(context.Background(), req); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
			t.Fatalf("case %d: want ErrInvalidArgument, got %v", i, err)
		}
	}
}

func TestWaitHonoursContext(t *testing.T) {
	f := newPlanFixture(t)
	if _, err := f.orch.SubmitPlan(context.Background(), threeGaps()); err != nil {
		t.Fatalf("SubmitPlan: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := f.orch.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait: want deadline exceeded, got %v", err)
	}
}

type blockingRunner struct {
	release  chan struct{}
	once     sync.Once
	finished atomic.Int32

	mu         sync.Mutex
	selections map[string][]content.StageName
}

func (b *blockingRunner) Execute(_ context.Context, jobID string, selection []content.StageName, _ map[string]any) (jobdomain.JobStatus, error) {
	b.mu.Lock()
	if b.selections == nil {
		b.selections = map[string][]content.StageName{}
	}
	b.selections[jobID] = selection
	b.mu.Unlock()

	<-b.release
	b.finished.Add(1)
	return jobdomain.JobStatus{ID: jobID, Status: jobdomain.StatusCompleted, Progress: 100}, nil
}

func (b *blockingRunner) unblock() {
	b.once.Do(func() { close(b.release) })
}

func (b *blockingRunner) selectionFor(id string) []content.StageName {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selections[id]
}

type fakeContent struct {
	mu   sync.Mutex
	docs map[string]map[string]any
}

func (f *fakeContent) set(scope string, doc map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[scope] = doc
}

func (f *fakeContent) ReadScope(_ context.Context, scope string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[scope]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return doc, nil
}
