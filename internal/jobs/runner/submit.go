package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-remedy/internal/domain/content"
	domain "github.com/yungbote/neurobridge-remedy/internal/domain/jobs"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/ctxutil"
)

// Submit registers a content job and runs it in the background. The job id
// is returned as soon as the job is recorded as pending; an empty jobID gets
// a generated one.
func (r *Runner) Submit(ctx context.Context, jobID string, modes []string, payload map[string]any) (string, error) {
	selection, err := content.ParseSelection(modes)
	if err != nil {
		return "", err
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		jobID = uuid.NewString()
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["modes"] = content.StageStrings(selection)

	if _, err := r.reg.Create(ctx, jobID, domain.KindContent, payload, ""); err != nil {
		return "", fmt.Errorf("create content job: %w", err)
	}

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		if _, err := r.Execute(ctxutil.Detached(ctx), jobID, selection, payload); err != nil {
			r.log.Error("Background content job failed", "job_id", jobID, "error", err)
		}
	}()
	return jobID, nil
}

// Wait blocks until every job started by Submit has returned, or ctx ends.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
