package prerequisites

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/yungbote/neurobridge-remedy/internal/domain/remediation"
)

// SuccessfulCase is a remediation that resolved a gap through prerequisites.
type SuccessfulCase struct {
	ID         string
	GapCode    string
	GradeLevel string
	Subject    string
	Score      float64
	Topics     []domain.PrerequisiteTopic
}

type DocumentWriter interface {
	Upsert(ctx context.Context, corpus, id string, vector []float32, metadata map[string]any) error
}

// CaseIndex writes successful cases into the remediation_cases corpus,
// one document per grade band, so later similarity lookups can reuse them.
type CaseIndex struct {
	embedder Embedder
	docs     DocumentWriter
}

func NewCaseIndex(embedder Embedder, docs DocumentWriter) *CaseIndex {
	return &CaseIndex{embedder: embedder, docs: docs}
}

func (x *CaseIndex) RecordCase(ctx context.Context, c SuccessfulCase) error {
	if x == nil || x.embedder == nil || x.docs == nil || len(c.Topics) == 0 {
		return nil
	}
	query := strings.TrimSpace(fmt.Sprintf("%s %s %s prerequisites", c.GapCode, c.GradeLevel, c.Subject))
	vec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("embed case: %w", err)
	}

	var grades []string
	byGrade := map[string][]string{}
	for _, t := range c.Topics {
		if t.SourceLayer == domain.SourceGeneric || t.SourceLayer == domain.SourceFallback {
			continue
		}
		if _, ok := byGrade[t.GradeLevel]; !ok {
			grades = append(grades, t.GradeLevel)
		}
		byGrade[t.GradeLevel] = append(byGrade[t.GradeLevel], t.Topic)
	}
	for _, g := range grades {
		meta := map[string]any{
			"gap_code":                 c.GapCode,
			"grade_level":              g,
			"subject":                  c.Subject,
			"successful_prerequisites": byGrade[g],
			"success_rate":             c.Score,
		}
		if err := x.docs.Upsert(ctx, CorpusRemediationCases, c.ID+":"+g, vec, meta); err != nil {
			return err
		}
	}
	return nil
}
