package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	domain "github.com/yungbote/neurobridge-remedy/internal/domain/jobs"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

// gatedBus blocks every Publish until release is closed.
type gatedBus struct {
	release chan struct{}

	mu        sync.Mutex
	published []Event
}

func (b *gatedBus) Publish(ctx context.Context, ev Event) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.mu.Lock()
	b.published = append(b.published, ev)
	b.mu.Unlock()
	return nil
}

func (b *gatedBus) StartForwarder(context.Context, func(Event)) error { return nil }
func (b *gatedBus) Close() error                                     { return nil }

func (b *gatedBus) snapshot() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.published...)
}

func TestJobNotifierDoesNotBlockOnSlowBus(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	b := &gatedBus{release: make(chan struct{})}
	n := NewJobNotifierSize(b, log, 8)

	start := time.Now()
	for i := 0; i <= 100; i += 25 {
		n.JobChanged(context.Background(), domain.JobStatus{ID: "j1", Kind: "content", Status: "running", Progress: i})
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("JobChanged blocked for %v", elapsed)
	}
	if got := len(b.snapshot()); got != 0 {
		t.Fatalf("published before release: %d", got)
	}

	close(b.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	evs := b.snapshot()
	if len(evs) != 5 {
		t.Fatalf("published: want=5 got=%d", len(evs))
	}
	for i, ev := range evs {
		if ev.Type != EventJobStatus || ev.JobID != "j1" || ev.Data["progress"] != i*25 {
			t.Fatalf("event %d out of order: %+v", i, ev)
		}
	}
}

func TestJobNotifierDropsWhenQueueFull(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	b := &gatedBus{release: make(chan struct{})}
	n := NewJobNotifierSize(b, log, 2)

	// One event may be held by the worker; the queue holds two more.
	for i := 0; i < 10; i++ {
		n.JobChanged(context.Background(), domain.JobStatus{ID: "j2", Status: "running", Progress: i})
	}
	close(b.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := len(b.snapshot()); got < 2 || got > 3 {
		t.Fatalf("published: want 2..3 got=%d", got)
	}

	// Changes after Close are ignored.
	n.JobChanged(context.Background(), domain.JobStatus{ID: "j2", Status: "completed"})
}
