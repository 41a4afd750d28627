package remediation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	remrepo "github.com/yungbote/neurobridge-remedy/internal/data/repos/remediation"
	"github.com/yungbote/neurobridge-remedy/internal/domain/content"
	jobdomain "github.com/yungbote/neurobridge-remedy/internal/domain/jobs"
	domain "github.com/yungbote/neurobridge-remedy/internal/domain/remediation"
	"github.com/yungbote/neurobridge-remedy/internal/modules/prerequisites"
	"github.com/yungbote/neurobridge-remedy/internal/observability"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/ctxutil"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
	"github.com/yungbote/neurobridge-remedy/internal/realtime/bus"
)

const (
	DefaultMasteryThreshold = 0.8

	maxCycles        = 3
	discoveryDepth   = 2
	chainDepth       = 3
	fallbackTopic    = "basic_foundations"
	fallbackConf     = 0.5
	cycleGapType     = domain.GapFoundational
	cycleFocusDirect = "current_topic_comprehension"
)

var cycleModes = []content.StageName{content.StageReading, content.StageWatching, content.StageAssessment}

// Executor runs one content job to a terminal status.
type Executor interface {
	Execute(ctx context.Context, jobID string, selection []content.StageName, payload map[string]any) (jobdomain.JobStatus, error)
}

type Discoverer interface {
	Discover(ctx context.Context, gapCode, gradeLevel, subject string, depth int) prerequisites.Discovery
}

// Attempt is one finished remediation cycle awaiting a score.
type Attempt struct {
	GapCode     string
	StudentID   string
	CycleNumber int
	Job         jobdomain.JobStatus
}

// Scorer reports the student's assessment score in [0,1] for an attempt.
type Scorer interface {
	Score(ctx context.Context, a Attempt) (float64, error)
}

type CaseRecorder interface {
	RecordCase(ctx context.Context, c prerequisites.SuccessfulCase) error
}

type EscalationRequest struct {
	GapCode     string         `json:"gap_code"`
	StudentID   string         `json:"student_id"`
	GradeLevel  string         `json:"grade_level"`
	Subject     string         `json:"subject,omitempty"`
	ContextRefs map[string]any `json:"context_refs,omitempty"`
	// Scores, when set, replace the configured scorer for this request.
	Scores []float64 `json:"scores,omitempty"`
}

type OrchestrationResult struct {
	SessionID       string               `json:"session_id"`
	GapCode         string               `json:"gap_code"`
	StudentID       string               `json:"student_id"`
	GradeLevel      string               `json:"grade_level"`
	Subject         string               `json:"subject,omitempty"`
	Cycles          []domain.CycleRecord `json:"cycles"`
	FinalStatus     string               `json:"final_status"`
	ResolvedAtCycle int                  `json:"resolved_at_cycle,omitempty"`
	Error           string               `json:"error,omitempty"`
}

type EscalatorOptions struct {
	MasteryThreshold float64
	Logs             remrepo.EscalationLogRepo
	Plans            remrepo.PlanRecordRepo
	Cases            CaseRecorder
	Events           bus.Bus
}

type Escalator struct {
	runner    Executor
	discover  Discoverer
	scorer    Scorer
	threshold float64
	logs      remrepo.EscalationLogRepo
	plans     remrepo.PlanRecordRepo
	cases     CaseRecorder
	events    bus.Bus
	log       *logger.Logger
}

func NewEscalator(runner Executor, discover Discoverer, scorer Scorer, log *logger.Logger, opts EscalatorOptions) *Escalator {
	if opts.MasteryThreshold <= 0 {
		opts.MasteryThreshold = DefaultMasteryThreshold
	}
	return &Escalator{
		runner:    runner,
		discover:  discover,
		scorer:    scorer,
		threshold: opts.MasteryThreshold,
		logs:      opts.Logs,
		plans:     opts.Plans,
		cases:     opts.Cases,
		events:    opts.Events,
		log:       log.With("component", "RemediationEscalator"),
	}
}

/*
Escalate runs up to three remediation cycles for one gap of one student.

	Cycle 1  direct                  the gap's own topic only
	Cycle 2  prerequisite_discovery  prerequisites two grades back, or a fallback stub
	Cycle 3  prerequisite_chain      three grades back merged with cycle 2's set

Each cycle runs a content job and is scored; the first score at or above the
mastery threshold resolves the gap and stops. A failed job scores 0 and the
next cycle still runs. After cycle 3 an unresolved gap is escalated.
Cancelling ctx does not stop the cycles once Escalate has started.

The only error returned is for an invalid request.
*/
func (e *Escalator) Escalate(ctx context.Context, req EscalationRequest) (*OrchestrationResult, error) {
	req.GapCode = strings.TrimSpace(req.GapCode)
	if req.GapCode == "" {
		return nil, fmt.Errorf("%w: gap_code is required", pkgerrors.ErrInvalidArgument)
	}
	ctx = ctxutil.Detached(ctx)
	ctx, span := otel.Tracer("remedy/remediation").Start(ctx, "remediation.escalate")
	defer span.End()

	res := &OrchestrationResult{
		SessionID:  "FOUNDATIONAL_" + shortID(),
		GapCode:    req.GapCode,
		StudentID:  req.StudentID,
		GradeLevel: req.GradeLevel,
		Subject:    req.Subject,
	}
	span.SetAttributes(attribute.String("session.id", res.SessionID), attribute.String("gap.code", req.GapCode))
	log := e.log.With("session_id", res.SessionID, "gap_code", req.GapCode, "student_id", req.StudentID)

	scorer := e.scorer
	if len(req.Scores) > 0 {
		scorer = ScriptedScorer{Scores: req.Scores}
	}

	var cycle2Topics []domain.PrerequisiteTopic
	for n := 1; n <= maxCycles; n++ {
		var rec domain.CycleRecord
		switch n {
		case 1:
			rec = e.runCycle(ctx, req, scorer, n, domain.ApproachDirect, nil, "")
		case 2:
			d := e.discover.Discover(ctx, req.GapCode, req.GradeLevel, req.Subject, discoveryDepth)
			topics, source := d.Topics, d.Source
			if !prerequisites.Useful(topics) {
				log.Warn("No prerequisites found, using fallback stub")
				topics, source = fallbackPrerequisites(req), domain.SourceFallback
			}
			cycle2Topics = topics
			rec = e.runCycle(ctx, req, scorer, n, domain.ApproachPrerequisiteDiscovery, topics, source)
		case 3:
			d := e.discover.Discover(ctx, req.GapCode, req.GradeLevel, req.Subject, chainDepth)
			chain := MergeByGrade(cycle2Topics, d.Topics)
			rec = e.runCycle(ctx, req, scorer, n, domain.ApproachPrerequisiteChain, chain, d.Source)
		}
		res.Cycles = append(res.Cycles, rec)
		log.Info("Cycle finished", "cycle", n, "score", rec.AssessmentScore, "resolved", rec.GapResolved)
		if rec.GapResolved {
			res.FinalStatus = domain.FinalStatusResolved
			res.ResolvedAtCycle = n
			break
		}
	}
	if res.FinalStatus == "" {
		res.FinalStatus = domain.FinalStatusEscalated
		res.Error = res.Cycles[len(res.Cycles)-1].Error
		log.Warn("Gap not resolved after final cycle, requires manual intervention")
	}
	span.SetAttributes(attribute.String("final_status", res.FinalStatus), attribute.Int("cycles", len(res.Cycles)))
	observability.Current().ObserveEscalation(res.FinalStatus, len(res.Cycles))

	e.persist(ctx, log, res)
	e.recordCase(ctx, log, req, res)
	e.publish(ctx, log, res)
	return res, nil
}

func (e *Escalator) runCycle(ctx context.Context, req EscalationRequest, scorer Scorer, n int, approach string, topics []domain.PrerequisiteTopic, source string) domain.CycleRecord {
	rec := domain.CycleRecord{
		CycleNumber:        n,
		Approach:           approach,
		PlanID:             fmt.Sprintf("CYCLE_%d_%s", n, shortID()),
		Prerequisites:      topics,
		PrerequisiteSource: source,
		StartedAt:          time.Now().UTC(),
	}
	jobID := uuid.NewString()
	rec.SpawnedContentJobIDs = []string{jobID}

	focus := cycleFocusDirect
	if len(topics) > 0 {
		focus = "prerequisite_knowledge"
	}
	payload := map[string]any{
		"focus":          req.GapCode,
		"topic":          req.GapCode,
		"learning_gaps":  []string{req.GapCode},
		"grade_level":    req.GradeLevel,
		"subject":        req.Subject,
		"gap_type":       cycleGapType,
		"approach":       approach,
		"cycle_number":   n,
		"remedy_plan_id": rec.PlanID,
		"context_bundle": map[string]any{"strategy_focus": focus},
	}
	if len(req.ContextRefs) > 0 {
		payload["context_refs"] = req.ContextRefs
	}
	if len(topics) > 0 {
		payload["prerequisites"] = topics
	}

	e.savePlan(ctx, req, rec, jobID, focus)

	st, err := e.runner.Execute(ctx, jobID, cycleModes, payload)
	switch {
	case err != nil:
		rec.Error = err.Error()
	case st.Status == jobdomain.StatusFailed:
		rec.Error = st.Error
		if rec.Error == "" {
			rec.Error = "content job failed"
		}
	default:
		score, serr := scorer.Score(ctx, Attempt{GapCode: req.GapCode, StudentID: req.StudentID, CycleNumber: n, Job: st})
		if serr != nil {
			rec.Error = serr.Error()
		} else {
			rec.AssessmentScore = clampScore(score)
		}
	}
	rec.GapResolved = rec.Error == "" && rec.AssessmentScore >= e.threshold
	rec.FinishedAt = time.Now().UTC()
	return rec
}

func (e *Escalator) savePlan(ctx context.Context, req EscalationRequest, rec domain.CycleRecord, jobID, focus string) {
	if e.plans == nil {
		return
	}
	gaps, _ := json.Marshal([]domain.ClassifiedGap{{
		Gap:     domain.Gap{Code: req.GapCode, Subject: req.Subject, GradeLevel: req.GradeLevel},
		GapType: cycleGapType,
	}})
	items, _ := json.Marshal([]domain.PlanItem{{
		GapCode: req.GapCode,
		GapType: cycleGapType,
		Modes:   content.StageStrings(cycleModes),
		Focus:   focus,
	}})
	refs, _ := json.Marshal(req.ContextRefs)
	children, _ := json.Marshal([]string{jobID})
	plan := &domain.PlanRecord{
		ID:          rec.PlanID,
		PlanJobID:   jobID,
		StudentID:   req.StudentID,
		Status:      domain.PlanStatusContentJobsCreated,
		Gaps:        datatypes.JSON(gaps),
		Items:       datatypes.JSON(items),
		ContextRefs: datatypes.JSON(refs),
		ChildJobIDs: datatypes.JSON(children),
	}
	if err := e.plans.Create(dbctx.Context{Ctx: ctx}, plan); err != nil {
		e.log.Warn("Cycle plan not stored", "plan_id", rec.PlanID, "error", err)
	}
}

func (e *Escalator) persist(ctx context.Context, log *logger.Logger, res *OrchestrationResult) {
	if e.logs == nil {
		return
	}
	cycles, err := json.Marshal(res.Cycles)
	if err != nil {
		log.Warn("Escalation log encode failed", "error", err)
		return
	}
	row := &domain.EscalationLog{
		ID:              res.SessionID,
		GapCode:         res.GapCode,
		StudentID:       res.StudentID,
		GradeLevel:      res.GradeLevel,
		Subject:         res.Subject,
		FinalStatus:     res.FinalStatus,
		ResolvedAtCycle: res.ResolvedAtCycle,
		Cycles:          datatypes.JSON(cycles),
		Error:           res.Error,
	}
	if err := e.logs.Create(dbctx.Context{Ctx: ctxutil.Detached(ctx)}, row); err != nil {
		log.Warn("Escalation log not stored", "error", err)
	}
}

// recordCase feeds a prerequisite-based success back into the similarity corpus.
func (e *Escalator) recordCase(ctx context.Context, log *logger.Logger, req EscalationRequest, res *OrchestrationResult) {
	if e.cases == nil || res.FinalStatus != domain.FinalStatusResolved || res.ResolvedAtCycle < 2 {
		return
	}
	last := res.Cycles[len(res.Cycles)-1]
	err := e.cases.RecordCase(ctx, prerequisites.SuccessfulCase{
		ID:         res.SessionID,
		GapCode:    req.GapCode,
		GradeLevel: req.GradeLevel,
		Subject:    req.Subject,
		Score:      last.AssessmentScore,
		Topics:     last.Prerequisites,
	})
	if err != nil {
		log.Warn("Successful case not recorded", "error", err)
	}
}

func (e *Escalator) publish(ctx context.Context, log *logger.Logger, res *OrchestrationResult) {
	if e.events == nil {
		return
	}
	ev := bus.Event{
		Type:    bus.EventEscalationFinished,
		ScopeID: res.SessionID,
		Data: map[string]any{
			"gap_code":          res.GapCode,
			"final_status":      res.FinalStatus,
			"cycles":            len(res.Cycles),
			"resolved_at_cycle": res.ResolvedAtCycle,
		},
		At: time.Now().UTC(),
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		log.Warn("Escalation event not published", "error", err)
	}
}

func fallbackPrerequisites(req EscalationRequest) []domain.PrerequisiteTopic {
	return []domain.PrerequisiteTopic{{
		Topic:       fallbackTopic,
		GradeLevel:  prerequisites.GradeBelow(req.GradeLevel),
		Priority:    1,
		SourceLayer: domain.SourceFallback,
		Confidence:  fallbackConf,
		Description: "Basic foundational concepts for " + req.GapCode,
	}}
}

// MergeByGrade combines two prerequisite sets grade band by grade band,
// highest grade first. Within a band a's topics come first and topic names
// are unique regardless of case.
func MergeByGrade(a, b []domain.PrerequisiteTopic) []domain.PrerequisiteTopic {
	bands := map[string][]domain.PrerequisiteTopic{}
	seen := map[string]map[string]bool{}
	var grades []string
	for _, t := range append(append([]domain.PrerequisiteTopic{}, a...), b...) {
		g := t.GradeLevel
		if _, ok := bands[g]; !ok {
			grades = append(grades, g)
			bands[g] = nil
			seen[g] = map[string]bool{}
		}
		key := strings.ToLower(strings.TrimSpace(t.Topic))
		if seen[g][key] {
			continue
		}
		seen[g][key] = true
		bands[g] = append(bands[g], t)
	}
	sort.SliceStable(grades, func(i, j int) bool {
		return prerequisites.GradeRank(grades[i]) > prerequisites.GradeRank(grades[j])
	})
	out := make([]domain.PrerequisiteTopic, 0, len(a)+len(b))
	for _, g := range grades {
		out = append(out, bands[g]...)
	}
	return out
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// ScriptedScorer returns Scores[cycle-1]; cycles past the end reuse the last score.
type ScriptedScorer struct {
	Scores []float64
}

func (s ScriptedScorer) Score(_ context.Context, a Attempt) (float64, error) {
	if len(s.Scores) == 0 {
		return 0, errors.New("no scripted scores")
	}
	i := a.CycleNumber - 1
	if i >= len(s.Scores) {
		i = len(s.Scores) - 1
	}
	if i < 0 {
		i = 0
	}
	return s.Scores[i], nil
}
