package prerequisites

import (
	"context"
	"errors"
	"reflect"
	"testing"

	remrepo "github.com/yungbote/neurobridge-remedy/internal/data/repos/remediation"
	"github.com/yungbote/neurobridge-remedy/internal/data/repos/testutil"
	domain "github.com/yungbote/neurobridge-remedy/internal/domain/remediation"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-remedy/internal/platform/pgvector"
)

func newCascade(t *testing.T, emb Embedder, search SimilaritySearch) (*Cascade, remrepo.PrerequisiteCacheRepo) {
	t.Helper()
	log := testutil.Logger(t)
	cache := remrepo.NewPrerequisiteCacheRepo(testutil.DB(t), log)
	return New(cache, emb, search, nil, log), cache
}

func TestDiscoverStructuredThenCached(t *testing.T) {
	c, _ := newCascade(t, nil, nil)
	ctx := context.Background()

	first := c.Discover(ctx, "MATH_ALGEBRA_01", "grade_10", "mathematics", 2)
	if first.Source != domain.SourceStructured {
		t.Fatalf("first source: want=%q got=%q", domain.SourceStructured, first.Source)
	}
	if len(first.Topics) != 6 {
		t.Fatalf("first topics: want=6 got=%d (%+v)", len(first.Topics), first.Topics)
	}
	if first.Topics[0].Topic != "linear_equations" || first.Topics[0].GradeLevel != "grade_9" {
		t.Fatalf("first topic: got=%+v", first.Topics[0])
	}
	if first.Topics[1].Topic != "fractions" || first.Topics[1].GradeLevel != "grade_8" {
		t.Fatalf("second topic: got=%+v", first.Topics[1])
	}

	second := c.Discover(ctx, "MATH_ALGEBRA_01", "grade_10", "mathematics", 2)
	if second.Source != domain.SourceCached {
		t.Fatalf("second source: want=%q got=%q", domain.SourceCached, second.Source)
	}
	if !reflect.DeepEqual(first.Topics, second.Topics) {
		t.Fatalf("cached topics differ:\nfirst=%+v\nsecond=%+v", first.Topics, second.Topics)
	}

	// depth is not part of the key
	deeper := c.Discover(ctx, "MATH_ALGEBRA_01", "grade_10", "mathematics", 3)
	if deeper.Source != domain.SourceCached || len(deeper.Topics) != 6 {
		t.Fatalf("deeper lookup: source=%q topics=%d", deeper.Source, len(deeper.Topics))
	}
}

func TestDiscoverInvalidateForcesRediscovery(t *testing.T) {
	c, _ := newCascade(t, nil, nil)
	ctx := context.Background()

	_ = c.Discover(ctx, "physics_mechanics_force", "grade_11", "physics", 2)
	if err := c.Invalidate(ctx, "physics_mechanics_force", "grade_11", "physics"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	again := c.Discover(ctx, "physics_mechanics_force", "grade_11", "physics", 2)
	if again.Source != domain.SourceStructured {
		t.Fatalf("after invalidate: want=%q got=%q", domain.SourceStructured, again.Source)
	}
}

func TestDiscoverGenericPlaceholder(t *testing.T) {
	c, cache := newCascade(t, nil, nil)
	ctx := context.Background()

	got := c.Discover(ctx, "HIST_01", "grade_6", "history", 2)
	if got.Source != domain.SourceGeneric {
		t.Fatalf("source: want=%q got=%q", domain.SourceGeneric, got.Source)
	}
	if len(got.Topics) != 1 {
		t.Fatalf("topics: want=1 got=%d", len(got.Topics))
	}
	if got.Topics[0].Topic != "foundations_of_hist_01" || got.Topics[0].GradeLevel != "grade_5" {
		t.Fatalf("placeholder: got=%+v", got.Topics[0])
	}
	if Useful(got.Topics) {
		t.Fatalf("placeholder should not count as useful")
	}
	entry, err := cache.Get(dbctx.Context{Ctx: ctx}, "HIST_01", "grade_6", "history")
	if err != nil {
		t.Fatalf("cache Get: %v", err)
	}
	if entry.Source != domain.SourceGeneric {
		t.Fatalf("cached source: want=%q got=%q", domain.SourceGeneric, entry.Source)
	}
}

func TestDiscoverMathFallbackWithoutSubject(t *testing.T) {
	c, _ := newCascade(t, nil, nil)
	got := c.Discover(context.Background(), "geometry_angles", "grade_9", "", 1)
	if got.Source != domain.SourceStructured {
		t.Fatalf("source: want=%q got=%q", domain.SourceStructured, got.Source)
	}
	if len(got.Topics) != 3 || got.Topics[0].Topic != "angles" {
		t.Fatalf("topics: got=%+v", got.Topics)
	}
}

func TestDiscoverSimilarityDedupesAndSorts(t *testing.T) {
	search := &fakeSearch{results: map[string][]pgvector.Match{
		CorpusRemediationCases: {
			{ID: "c1", Score: 0.9, Metadata: map[string]any{
				"grade_level":              "grade_8",
				"successful_prerequisites": []any{"Fractions", "ratios"},
			}},
			{ID: "c2", Score: 0.8, Metadata: map[string]any{
				"grade_level":              "grade_5",
				"successful_prerequisites": []any{"counting"},
			}},
		},
		CorpusCurriculumContent: {
			{ID: "k1", Score: 0.95, Metadata: map[string]any{
				"grade_level":   "grade_8",
				"prerequisites": []any{"fractions"},
				"success_rate":  0.5,
			}},
			{ID: "k2", Score: 0.7, Metadata: map[string]any{
				"grade_level":   "grade_7",
				"prerequisites": []any{"decimals"},
			}},
		},
	}}
	c, _ := newCascade(t, fakeEmbedder{}, search)

	got := c.Discover(context.Background(), "MATH_RATIO", "grade_9", "mathematics", 2)
	if got.Source != domain.SourceSimilarity {
		t.Fatalf("source: want=%q got=%q", domain.SourceSimilarity, got.Source)
	}
	if search.filters["subject"] != "mathematics" {
		t.Fatalf("subject filter: got=%v", search.filters)
	}
	if search.topK[CorpusRemediationCases] != 10 || search.topK[CorpusCurriculumContent] != 15 {
		t.Fatalf("topK: got=%v", search.topK)
	}
	// grade_5 is outside the window; "fractions" keeps the 0.9 case over 0.95*0.5
	want := []struct {
		topic string
		grade string
		prio  int
	}{
		{"Fractions", "grade_8", 1},
		{"decimals", "grade_7", 1},
		{"ratios", "grade_8", 2},
	}
	if len(got.Topics) != len(want) {
		t.Fatalf("topics: want=%d got=%+v", len(want), got.Topics)
	}
	for i, w := range want {
		tp := got.Topics[i]
		if tp.Topic != w.topic || tp.GradeLevel != w.grade || tp.Priority != w.prio {
			t.Fatalf("topic %d: want=%+v got=%+v", i, w, tp)
		}
		if tp.SourceLayer != domain.SourceSimilarity {
			t.Fatalf("topic %d source: got=%q", i, tp.SourceLayer)
		}
	}
	if got.Topics[0].Confidence != 0.9 {
		t.Fatalf("confidence: want=0.9 got=%v", got.Topics[0].Confidence)
	}
}

func TestDiscoverSimilarityFailureFallsThrough(t *testing.T) {
	c, _ := newCascade(t, fakeEmbedder{err: errors.New("rate limited")}, &fakeSearch{})
	got := c.Discover(context.Background(), "chemistry_atomic_structure", "grade_11", "chemistry", 2)
	if got.Source != domain.SourceStructured {
		t.Fatalf("source: want=%q got=%q", domain.SourceStructured, got.Source)
	}
	if got.Topics[0].Topic != "periodic_table" {
		t.Fatalf("first topic: got=%+v", got.Topics[0])
	}
}

func TestDiscoverWithoutCache(t *testing.T) {
	c := New(nil, nil, nil, nil, testutil.Logger(t))
	a := c.Discover(context.Background(), "algebra", "grade_8", "mathematics", 1)
	b := c.Discover(context.Background(), "algebra", "grade_8", "mathematics", 1)
	if a.Source != domain.SourceStructured || b.Source != domain.SourceStructured {
		t.Fatalf("sources: %q %q", a.Source, b.Source)
	}
}

func TestGradeWindow(t *testing.T) {
	cases := []struct {
		grade string
		depth int
		want  []string
	}{
		{"grade_10", 2, []string{"grade_9", "grade_8"}},
		{"grade_2", 3, []string{"grade_1"}},
		{"senior", 1, []string{"grade_9"}},
		{"grade_1", 2, []string{}},
	}
	for _, tc := range cases {
		got := gradeWindow(tc.grade, tc.depth)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("gradeWindow(%q,%d): want=%v got=%v", tc.grade, tc.depth, tc.want, got)
		}
	}
}

func TestParseTableRejectsEmptyTopic(t *testing.T) {
	_, err := ParseTable([]byte("table: structured_prerequisites\nsubjects:\n  math:\n    algebra:\n      grade_1:\n        - {priority: 1}\n"))
	if err == nil {
		t.Fatalf("expected error for missing topic")
	}
}

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeSearch struct {
	results map[string][]pgvector.Match
	filters map[string]string
	topK    map[string]int
}

func (f *fakeSearch) Query(_ context.Context, corpus string, _ []float32, filters map[string]string, topK int) ([]pgvector.Match, error) {
	f.filters = filters
	if f.topK == nil {
		f.topK = map[string]int{}
	}
	f.topK[corpus] = topK
	return f.results[corpus], nil
}
