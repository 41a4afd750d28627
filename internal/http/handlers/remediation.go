package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-remedy/internal/http/response"
	"github.com/yungbote/neurobridge-remedy/internal/modules/prerequisites"
	"github.com/yungbote/neurobridge-remedy/internal/modules/remediation"
	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
)

type Escalator interface {
	Escalate(ctx context.Context, req remediation.EscalationRequest) (*remediation.OrchestrationResult, error)
}

type PrerequisiteService interface {
	Discover(ctx context.Context, gapCode, gradeLevel, subject string, depth int) prerequisites.Discovery
	Invalidate(ctx context.Context, gapCode, gradeLevel, subject string) error
}

type RemediationHandler struct {
	escalator Escalator
	prereqs   PrerequisiteService
}

func NewRemediationHandler(escalator Escalator, prereqs PrerequisiteService) *RemediationHandler {
	return &RemediationHandler{escalator: escalator, prereqs: prereqs}
}

// POST /v1/remediation/escalate
func (h *RemediationHandler) Escalate(c *gin.Context) {
	var req remediation.EscalationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondErr(c, "invalid_request", fmt.Errorf("%w: %v", pkgerrors.ErrInvalidArgument, err))
		return
	}
	res, err := h.escalator.Escalate(c.Request.Context(), req)
	if err != nil {
		response.RespondErr(c, "escalation_failed", err)
		return
	}
	response.RespondOK(c, res)
}

type prerequisiteKey struct {
	GapCode    string `form:"gap_code" json:"gap_code"`
	GradeLevel string `form:"grade_level" json:"grade_level"`
	Subject    string `form:"subject" json:"subject"`
}

func (k prerequisiteKey) validate() error {
	if strings.TrimSpace(k.GapCode) == "" || strings.TrimSpace(k.GradeLevel) == "" {
		return fmt.Errorf("%w: gap_code and grade_level are required", pkgerrors.ErrInvalidArgument)
	}
	return nil
}

// GET /v1/prerequisites?gap_code=&grade_level=&subject=&depth=
func (h *RemediationHandler) Discover(c *gin.Context) {
	var key prerequisiteKey
	_ = c.ShouldBindQuery(&key)
	if err := key.validate(); err != nil {
		response.RespondErr(c, "invalid_request", err)
		return
	}
	depth := prerequisites.DefaultDepth
	if raw := strings.TrimSpace(c.Query("depth")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.RespondErr(c, "invalid_request", fmt.Errorf("%w: depth must be a positive integer", pkgerrors.ErrInvalidArgument))
			return
		}
		depth = n
	}
	response.RespondOK(c, h.prereqs.Discover(c.Request.Context(), key.GapCode, key.GradeLevel, key.Subject, depth))
}

// DELETE /v1/prerequisites/cache
func (h *RemediationHandler) InvalidateCache(c *gin.Context) {
	var key prerequisiteKey
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&key); err != nil {
			response.RespondErr(c, "invalid_request", fmt.Errorf("%w: %v", pkgerrors.ErrInvalidArgument, err))
			return
		}
	} else {
		_ = c.ShouldBindQuery(&key)
	}
	if err := key.validate(); err != nil {
		response.RespondErr(c, "invalid_request", err)
		return
	}
	if err := h.prereqs.Invalidate(c.Request.Context(), key.GapCode, key.GradeLevel, key.Subject); err != nil {
		response.RespondErr(c, "invalidate_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"invalidated": true})
}
