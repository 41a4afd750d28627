package runtime

import (
	"context"
	"testing"

	domain "github.com/yungbote/neurobridge-remedy/internal/domain/jobs"
	"github.com/yungbote/neurobridge-remedy/internal/jobs/registry"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

func TestContextPayloadAccessors(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	reg := registry.New(nil, log, registry.Options{})
	job, err := reg.Create(context.Background(), "job-1", domain.KindContent, map[string]any{
		"topic":    "fractions",
		"modes":    []any{"reading", "solving"},
		"gaps":     "G1",
		"scope_id": "sess-9",
	}, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	c := NewContext(context.Background(), reg, job, log)

	if got := c.PayloadString("topic"); got != "fractions" {
		t.Fatalf("PayloadString: got %q", got)
	}
	if got := c.PayloadStrings("modes"); len(got) != 2 || got[1] != "solving" {
		t.Fatalf("PayloadStrings: got %v", got)
	}
	if got := c.PayloadStrings("gaps"); len(got) != 1 || got[0] != "G1" {
		t.Fatalf("PayloadStrings single: got %v", got)
	}
	if got := c.ScopeID(); got != "sess-9" {
		t.Fatalf("ScopeID: got %q", got)
	}
	if c.PayloadString("missing") != "" {
		t.Fatalf("missing key should be empty")
	}
}

func TestContextDegradedSuccess(t *testing.T) {
	log, _ := logger.New("test")
	reg := registry.New(nil, log, registry.Options{})
	job, _ := reg.Create(context.Background(), "job-2", domain.KindContent, nil, "")
	c := NewContext(context.Background(), reg, job, log)

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Progress(35)
	if err := c.SucceedDegraded(map[string]string{"content_doc": "content/job-2"}, errBoom("store down")); err != nil {
		t.Fatalf("SucceedDegraded: %v", err)
	}
	st, err := reg.Get(context.Background(), "job-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.Status != domain.StatusCompleted || st.Progress != 90 || st.Error != "store down" {
		t.Fatalf("unexpected status: %+v", st)
	}
	if c.Job.Status != domain.StatusCompleted {
		t.Fatalf("snapshot not updated: %+v", c.Job)
	}
	// Terminal jobs refuse further writes.
	if err := c.Fail(errBoom("late")); err == nil {
		t.Fatalf("Fail after completion: expected error")
	}
}

type errBoom string

func (e errBoom) Error() string { return string(e) }
