package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	jobdomain "github.com/yungbote/neurobridge-remedy/internal/domain/jobs"
	"github.com/yungbote/neurobridge-remedy/internal/http/response"
	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
)

type ContentSubmitter interface {
	Submit(ctx context.Context, jobID string, modes []string, payload map[string]any) (string, error)
}

type JobReader interface {
	Get(ctx context.Context, id string) (jobdomain.JobStatus, error)
}

type JobHandler struct {
	submit ContentSubmitter
	jobs   JobReader
}

func NewJobHandler(submit ContentSubmitter, jobs JobReader) *JobHandler {
	return &JobHandler{submit: submit, jobs: jobs}
}

type createContentJobRequest struct {
	JobID   string         `json:"job_id"`
	Modes   []string       `json:"modes"`
	Payload map[string]any `json:"payload"`
}

// POST /v1/content/jobs
func (h *JobHandler) CreateContentJob(c *gin.Context) {
	var req createContentJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondErr(c, "invalid_request", fmt.Errorf("%w: %v", pkgerrors.ErrInvalidArgument, err))
		return
	}
	id, err := h.submit.Submit(c.Request.Context(), req.JobID, req.Modes, req.Payload)
	if err != nil {
		response.RespondErr(c, "create_job_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"job_id": id})
}

// GET /v1/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	st, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, "job_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"job": st})
}
