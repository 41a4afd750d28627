package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-remedy/internal/data/repos/jobs"
	"github.com/yungbote/neurobridge-remedy/internal/data/repos/testutil"
	domain "github.com/yungbote/neurobridge-remedy/internal/domain/jobs"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
)

func newRegistry(t *testing.T, opts Options) (*Registry, jobs.JobRepo) {
	t.Helper()
	log := testutil.Logger(t)
	repo := jobs.NewJobRepo(testutil.DB(t), log)
	return New(repo, log, opts), repo
}

func intp(v int) *int        { return &v }
func strp(v string) *string { return &v }

func TestRegistryLifecycleWritesBothLayers(t *testing.T) {
	ctx := context.Background()
	reg, repo := newRegistry(t, Options{})

	if _, err := reg.Create(ctx, "j1", domain.KindContent, map[string]any{"topic": "fractions"}, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.Transition(ctx, "j1", domain.StatusInProgress, Fields{Progress: intp(10)}); err != nil {
		t.Fatalf("Transition in_progress: %v", err)
	}
	if err := reg.Transition(ctx, "j1", domain.StatusCompleted, Fields{
		Progress:  intp(100),
		ResultRef: map[string]string{"content_doc": "content/j1"},
	}); err != nil {
		t.Fatalf("Transition completed: %v", err)
	}

	st, err := reg.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.Status != domain.StatusCompleted || st.Progress != 100 || st.ResultRef["content_doc"] != "content/j1" {
		t.Fatalf("Get: unexpected status %+v", st)
	}

	row, err := repo.GetByID(dbctx.Context{Ctx: ctx}, "j1")
	if err != nil {
		t.Fatalf("durable GetByID: %v", err)
	}
	if row.Status != domain.StatusCompleted || row.Progress != 100 {
		t.Fatalf("durable row not updated: %+v", row)
	}
}

func TestRegistryRejectsRegressionAndTerminalWrites(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t, Options{})

	if _, err := reg.Create(ctx, "j2", domain.KindContent, nil, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.Transition(ctx, "j2", domain.StatusInProgress, Fields{Progress: intp(40)}); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := reg.Transition(ctx, "j2", domain.StatusPending, Fields{}); !errors.Is(err, pkgerrors.ErrInvalidTransition) {
		t.Fatalf("regression: want ErrInvalidTransition got %v", err)
	}
	// Progress never moves backwards.
	if err := reg.Transition(ctx, "j2", domain.StatusInProgress, Fields{Progress: intp(20)}); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if st, _ := reg.Get(ctx, "j2"); st.Progress != 40 {
		t.Fatalf("progress regressed: got %d", st.Progress)
	}
	if err := reg.Transition(ctx, "j2", domain.StatusFailed, Fields{Error: strp("boom")}); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if err := reg.Transition(ctx, "j2", domain.StatusCompleted, Fields{}); !errors.Is(err, pkgerrors.ErrTerminal) {
		t.Fatalf("terminal write: want ErrTerminal got %v", err)
	}
}

func TestRegistryDurableReadDoesNotRepopulate(t *testing.T) {
	ctx := context.Background()
	reg, repo := newRegistry(t, Options{})

	if err := repo.Create(dbctx.Context{Ctx: ctx}, &domain.Job{
		ID: "cold", Kind: domain.KindContent, Status: domain.StatusInProgress, Progress: 30,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	st, err := reg.Get(ctx, "cold")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.Status != domain.StatusInProgress || st.Progress != 30 {
		t.Fatalf("Get: unexpected %+v", st)
	}
	if reg.Cached("cold") {
		t.Fatalf("durable read repopulated the local layer")
	}
	if _, err := reg.Get(ctx, "missing"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("missing: want ErrNotFound got %v", err)
	}
}

func TestRegistryCreateRejectsDurableOnlyDuplicate(t *testing.T) {
	ctx := context.Background()
	reg, repo := newRegistry(t, Options{})

	if err := repo.Create(dbctx.Context{Ctx: ctx}, &domain.Job{
		ID: "dup", Kind: domain.KindContent, Status: domain.StatusCompleted, Progress: 100,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if reg.Cached("dup") {
		t.Fatalf("seeded job should only be durable")
	}
	_, err := reg.Create(ctx, "dup", domain.KindContent, nil, "")
	if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("duplicate Create: want ErrInvalidArgument got %v", err)
	}
	if reg.Cached("dup") {
		t.Fatalf("rejected Create populated the local layer")
	}
	row, err := repo.GetByID(dbctx.Context{Ctx: ctx}, "dup")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.Status != domain.StatusCompleted {
		t.Fatalf("durable row overwritten: %+v", row)
	}
}

func TestRegistrySweepEvictsOnlyOldTerminalJobs(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t, Options{EphemeralTTL: time.Minute})
	base := time.Now()
	reg.now = func() time.Time { return base }

	for _, id := range []string{"done", "running"} {
		if _, err := reg.Create(ctx, id, domain.KindContent, nil, ""); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
		if err := reg.Transition(ctx, id, domain.StatusInProgress, Fields{}); err != nil {
			t.Fatalf("Transition %s: %v", id, err)
		}
	}
	if err := reg.Transition(ctx, "done", domain.StatusCompleted, Fields{Progress: intp(100)}); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	reg.now = func() time.Time { return base.Add(2 * time.Minute) }
	if n := reg.Sweep(); n != 1 {
		t.Fatalf("Sweep: want=1 got=%d", n)
	}
	if reg.Cached("done") || !reg.Cached("running") {
		t.Fatalf("Sweep evicted the wrong entries")
	}
	// Evicted jobs remain readable from the durable layer.
	if st, err := reg.Get(ctx, "done"); err != nil || st.Status != domain.StatusCompleted {
		t.Fatalf("Get after sweep: st=%+v err=%v", st, err)
	}
}

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []string
}

func (n *recordingNotifier) JobChanged(_ context.Context, st domain.JobStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, st.Status)
}

func TestRegistryMemoryOnlyNotifies(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	reg := New(nil, testutil.Logger(t), Options{Notifier: n})

	if _, err := reg.Create(ctx, "m1", domain.KindPlan, nil, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.Transition(ctx, "m1", domain.StatusInProgress, Fields{}); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := reg.Transition(ctx, "m1", domain.StatusCompleted, Fields{ChildJobIDs: []string{"a", "b"}}); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	st, err := reg.Get(ctx, "m1")
	if err != nil || len(st.ChildJobIDs) != 2 {
		t.Fatalf("Get: st=%+v err=%v", st, err)
	}
	want := []string{domain.StatusPending, domain.StatusInProgress, domain.StatusCompleted}
	if len(n.statuses) != len(want) {
		t.Fatalf("notifications: want=%v got=%v", want, n.statuses)
	}
	for i := range want {
		if n.statuses[i] != want[i] {
			t.Fatalf("notifications: want=%v got=%v", want, n.statuses)
		}
	}
	if _, err := reg.Create(ctx, "bad", "other", nil, ""); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("bad kind: want ErrInvalidArgument got %v", err)
	}
	if _, err := reg.Create(ctx, "m1", domain.KindContent, nil, ""); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("duplicate id: want ErrInvalidArgument got %v", err)
	}
	if st, _ := reg.Get(ctx, "m1"); st.Status != domain.StatusCompleted {
		t.Fatalf("duplicate create must not reset the job: %+v", st)
	}
}
