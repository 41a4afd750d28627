package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-remedy/internal/http/response"
	"github.com/yungbote/neurobridge-remedy/internal/modules/remediation"
	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
)

type PlanService interface {
	SubmitPlan(ctx context.Context, req remediation.PlanRequest) (string, error)
	GetAggregate(ctx context.Context, planJobID string) (*remediation.AggregateView, error)
}

type PlanHandler struct {
	plans PlanService
}

func NewPlanHandler(plans PlanService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// POST /v1/plans
//
// A plan job id may come back alongside an error when the job was recorded
// and then failed; the id is still returned so callers can inspect it.
func (h *PlanHandler) SubmitPlan(c *gin.Context) {
	var req remediation.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondErr(c, "invalid_request", fmt.Errorf("%w: %v", pkgerrors.ErrInvalidArgument, err))
		return
	}
	id, err := h.plans.SubmitPlan(c.Request.Context(), req)
	if err != nil {
		status := response.StatusFor(err)
		c.JSON(status, gin.H{
			"plan_job_id": id,
			"error":       response.APIError{Message: err.Error(), Code: "submit_plan_failed"},
		})
		return
	}
	response.RespondAccepted(c, gin.H{"plan_job_id": id})
}

// GET /v1/plans/:id/aggregate
func (h *PlanHandler) GetAggregate(c *gin.Context) {
	view, err := h.plans.GetAggregate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.RespondErr(c, "aggregate_failed", err)
		return
	}
	response.RespondOK(c, view)
}
