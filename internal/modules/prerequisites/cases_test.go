package prerequisites

import (
	"context"
	"testing"

	domain "github.com/yungbote/neurobridge-remedy/internal/domain/remediation"
)

func TestCaseIndexWritesOneDocumentPerGrade(t *testing.T) {
	docs := &fakeDocs{}
	idx := NewCaseIndex(fakeEmbedder{}, docs)

	err := idx.RecordCase(context.Background(), SuccessfulCase{
		ID:         "FOUNDATIONAL_1",
		GapCode:    "MATH_ALGEBRA",
		GradeLevel: "grade_10",
		Subject:    "mathematics",
		Score:      0.85,
		Topics: []domain.PrerequisiteTopic{
			{Topic: "linear_equations", GradeLevel: "grade_9", SourceLayer: domain.SourceStructured},
			{Topic: "graphing", GradeLevel: "grade_9", SourceLayer: domain.SourceStructured},
			{Topic: "fractions", GradeLevel: "grade_8", SourceLayer: domain.SourceSimilarity},
			{Topic: "basic_foundations", GradeLevel: "grade_9", SourceLayer: domain.SourceFallback},
		},
	})
	if err != nil {
		t.Fatalf("RecordCase: %v", err)
	}
	if len(docs.ids) != 2 || docs.ids[0] != "FOUNDATIONAL_1:grade_9" || docs.ids[1] != "FOUNDATIONAL_1:grade_8" {
		t.Fatalf("ids: got=%v", docs.ids)
	}
	if docs.corpus != CorpusRemediationCases {
		t.Fatalf("corpus: want=%q got=%q", CorpusRemediationCases, docs.corpus)
	}
	first := docs.meta[0]["successful_prerequisites"].([]string)
	if len(first) != 2 || first[0] != "linear_equations" || first[1] != "graphing" {
		t.Fatalf("grade_9 prerequisites: got=%v", first)
	}
	if docs.meta[0]["success_rate"] != 0.85 {
		t.Fatalf("success_rate: got=%v", docs.meta[0]["success_rate"])
	}
}

func TestCaseIndexNoopWithoutWriter(t *testing.T) {
	var idx *CaseIndex
	if err := idx.RecordCase(context.Background(), SuccessfulCase{Topics: []domain.PrerequisiteTopic{{Topic: "x"}}}); err != nil {
		t.Fatalf("nil index: %v", err)
	}
}

type fakeDocs struct {
	corpus string
	ids    []string
	meta   []map[string]any
}

func (f *fakeDocs) Upsert(_ context.Context, corpus, id string, _ []float32, metadata map[string]any) error {
	f.corpus = corpus
	f.ids = append(f.ids, id)
	f.meta = append(f.meta, metadata)
	return nil
}
