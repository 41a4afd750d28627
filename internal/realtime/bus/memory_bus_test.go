package bus

import (
	"context"
	"testing"

	domain "github.com/yungbote/neurobridge-remedy/internal/domain/jobs"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

func TestMemoryBusForwardsAndFilters(t *testing.T) {
	b := NewMemoryBus(2)
	var seen []string
	if err := b.StartForwarder(context.Background(), func(ev Event) { seen = append(seen, ev.Type) }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	for _, typ := range []string{EventJobStatus, EventContentCompleted, EventJobStatus} {
		if err := b.Publish(context.Background(), Event{Type: typ}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if len(seen) != 3 {
		t.Fatalf("forwarded: want=3 got=%d", len(seen))
	}
	// History is capped at the limit.
	if got := b.Events(""); len(got) != 2 {
		t.Fatalf("history: want=2 got=%d", len(got))
	}
	if got := b.Events(EventContentCompleted); len(got) != 1 || got[0].At.IsZero() {
		t.Fatalf("filter: got %+v", got)
	}
}

func TestJobNotifierPublishesStatus(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	b := NewMemoryBus(0)
	n := NewJobNotifier(b, log)
	n.JobChanged(context.Background(), domain.JobStatus{ID: "j1", Kind: "content", Status: "failed", Error: "x"})
	if err := n.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	evs := b.Events(EventJobStatus)
	if len(evs) != 1 {
		t.Fatalf("events: want=1 got=%d", len(evs))
	}
	if evs[0].JobID != "j1" || evs[0].Data["status"] != "failed" || evs[0].Data["error"] != "x" {
		t.Fatalf("unexpected event: %+v", evs[0])
	}
}
