package bus

import (
	"context"
	"sync"
	"time"

	domain "github.com/yungbote/neurobridge-remedy/internal/domain/jobs"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

const defaultNotifierQueue = 256

// JobNotifier forwards job status changes onto a Bus. JobChanged only
// enqueues; a single worker publishes in arrival order. When the queue is
// full the change is dropped and logged.
type JobNotifier struct {
	bus     Bus
	log     *logger.Logger
	timeout time.Duration

	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewJobNotifier(b Bus, log *logger.Logger) *JobNotifier {
	return NewJobNotifierSize(b, log, defaultNotifierQueue)
}

// NewJobNotifierSize is NewJobNotifier with an explicit queue capacity.
func NewJobNotifierSize(b Bus, log *logger.Logger, size int) *JobNotifier {
	if size <= 0 {
		size = defaultNotifierQueue
	}
	n := &JobNotifier{
		bus:     b,
		log:     log.With("component", "JobNotifier"),
		timeout: 2 * time.Second,
		queue:   make(chan Event, size),
		done:    make(chan struct{}),
	}
	go n.loop()
	return n
}

func (n *JobNotifier) JobChanged(_ context.Context, st domain.JobStatus) {
	if n == nil || n.bus == nil {
		return
	}
	data := map[string]any{
		"kind":     st.Kind,
		"status":   st.Status,
		"progress": st.Progress,
	}
	if st.Error != "" {
		data["error"] = st.Error
	}
	ev := Event{Type: EventJobStatus, JobID: st.ID, Data: data, At: time.Now().UTC()}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- ev:
	default:
		n.log.Warn("Job status queue full, dropping", "job_id", st.ID, "status", st.Status)
	}
}

func (n *JobNotifier) loop() {
	defer close(n.done)
	for ev := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		if err := n.bus.Publish(ctx, ev); err != nil {
			n.log.Warn("Job status publish failed", "job_id", ev.JobID, "error", err)
		}
		cancel()
	}
}

// Close stops accepting changes and waits for queued ones to be published
// or for ctx to end.
func (n *JobNotifier) Close(ctx context.Context) error {
	if n == nil || n.queue == nil {
		return nil
	}
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		close(n.queue)
		n.mu.Unlock()
	})
	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
