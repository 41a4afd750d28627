package prerequisites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	remrepo "github.com/yungbote/neurobridge-remedy/internal/data/repos/remediation"
	domain "github.com/yungbote/neurobridge-remedy/internal/domain/remediation"
	"github.com/yungbote/neurobridge-remedy/internal/observability"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
	"github.com/yungbote/neurobridge-remedy/internal/platform/pgvector"
)

const (
	CorpusRemediationCases  = "remediation_cases"
	CorpusCurriculumContent = "curriculum_content"

	remediationCasesTopK  = 10
	curriculumContentTopK = 15

	DefaultDepth = 2

	genericConfidence = 0.3
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type SimilaritySearch interface {
	Query(ctx context.Context, corpus string, vector []float32, filters map[string]string, topK int) ([]pgvector.Match, error)
}

// Discovery is the answer of one Discover call. Source names the layer that
// answered it; topics keep the layer that originally produced them.
type Discovery struct {
	Topics []domain.PrerequisiteTopic `json:"topics"`
	Source string                     `json:"source"`
}

type Cascade struct {
	cache    remrepo.PrerequisiteCacheRepo
	embedder Embedder
	search   SimilaritySearch
	table    *StructuredTable
	log      *logger.Logger
}

// New builds a cascade. cache, embedder and search may each be nil; the
// similarity layer runs only when both embedder and search are set.
func New(cache remrepo.PrerequisiteCacheRepo, embedder Embedder, search SimilaritySearch, table *StructuredTable, log *logger.Logger) *Cascade {
	if table == nil {
		table = DefaultTable(log)
	}
	return &Cascade{
		cache:    cache,
		embedder: embedder,
		search:   search,
		table:    table,
		log:      log.With("component", "PrerequisiteDiscoveryCascade"),
	}
}

/*
Discover resolves the prerequisites of gapCode for a student at gradeLevel.

Layers are tried in order and the first non-empty answer wins:
  - the cache, returned verbatim
  - similarity search over prior remediation cases and curriculum content
  - the structured table, or a single generic topic when nothing matches

A non-cached answer is stored before it is returned. Discover never fails;
problems in one layer are logged and the next layer is tried.

depth bounds how many grade levels below gradeLevel are searched. It is not
part of the cache key.
*/
func (c *Cascade) Discover(ctx context.Context, gapCode, gradeLevel, subject string, depth int) Discovery {
	ctx, span := otel.Tracer("remedy/prerequisites").Start(ctx, "prerequisites.discover")
	defer span.End()
	if depth <= 0 {
		depth = DefaultDepth
	}
	span.SetAttributes(
		attribute.String("gap.code", gapCode),
		attribute.String("grade.level", gradeLevel),
		attribute.Int("depth", depth),
	)

	if topics, ok := c.fromCache(ctx, gapCode, gradeLevel, subject); ok {
		span.SetAttributes(attribute.String("source", domain.SourceCached))
		observability.Current().IncPrerequisiteLookup(domain.SourceCached)
		return Discovery{Topics: topics, Source: domain.SourceCached}
	}

	levels := gradeWindow(gradeLevel, depth)

	source := domain.SourceSimilarity
	topics, err := c.fromSimilarity(ctx, gapCode, gradeLevel, subject, levels)
	if err != nil {
		c.log.Warn("Similarity layer failed", "gap_code", gapCode, "error", err)
	}
	if len(topics) == 0 {
		source = domain.SourceStructured
		topics = c.fromTable(gapCode, subject, levels)
	}
	if len(topics) == 0 {
		source = domain.SourceGeneric
		topics = []domain.PrerequisiteTopic{genericTopic(gapCode, gradeLevel)}
	}

	c.store(ctx, gapCode, gradeLevel, subject, source, topics)
	span.SetAttributes(attribute.String("source", source))
	observability.Current().IncPrerequisiteLookup(source)
	return Discovery{Topics: topics, Source: source}
}

// Invalidate drops the cached answer for a key, if any.
func (c *Cascade) Invalidate(ctx context.Context, gapCode, gradeLevel, subject string) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Invalidate(dbctx.Context{Ctx: ctx}, gapCode, gradeLevel, subject)
}

func (c *Cascade) fromCache(ctx context.Context, gapCode, gradeLevel, subject string) ([]domain.PrerequisiteTopic, bool) {
	if c.cache == nil {
		return nil, false
	}
	entry, err := c.cache.Get(dbctx.Context{Ctx: ctx}, gapCode, gradeLevel, subject)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		c.log.Warn("Prerequisite cache read failed", "gap_code", gapCode, "error", err)
		return nil, false
	}
	var topics []domain.PrerequisiteTopic
	if err := json.Unmarshal(entry.Topics, &topics); err != nil {
		c.log.Warn("Prerequisite cache entry unreadable", "gap_code", gapCode, "error", err)
		return nil, false
	}
	if len(topics) == 0 {
		return nil, false
	}
	return topics, true
}

func (c *Cascade) store(ctx context.Context, gapCode, gradeLevel, subject, source string, topics []domain.PrerequisiteTopic) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(topics)
	if err != nil {
		c.log.Warn("Prerequisite cache encode failed", "gap_code", gapCode, "error", err)
		return
	}
	entry := &domain.PrerequisiteCacheEntry{
		GapCode:    gapCode,
		GradeLevel: gradeLevel,
		Subject:    subject,
		Source:     source,
		Topics:     datatypes.JSON(raw),
		CreatedAt:  time.Now().UTC(),
	}
	if err := c.cache.PutIfAbsent(dbctx.Context{Ctx: ctx}, entry); err != nil {
		c.log.Warn("Prerequisite cache write failed", "gap_code", gapCode, "error", err)
	}
}

func (c *Cascade) fromSimilarity(ctx context.Context, gapCode, gradeLevel, subject string, levels []string) ([]domain.PrerequisiteTopic, error) {
	if c.embedder == nil || c.search == nil || len(levels) == 0 {
		return nil, nil
	}
	query := strings.TrimSpace(fmt.Sprintf("%s %s %s prerequisites", gapCode, gradeLevel, subject))
	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	filters := map[string]string{}
	if strings.TrimSpace(subject) != "" {
		filters["subject"] = subject
	}
	cases, err := c.search.Query(ctx, CorpusRemediationCases, vec, filters, remediationCasesTopK)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", CorpusRemediationCases, err)
	}
	curriculum, err := c.search.Query(ctx, CorpusCurriculumContent, vec, filters, curriculumContentTopK)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", CorpusCurriculumContent, err)
	}

	var candidates []domain.PrerequisiteTopic
	for _, level := range levels {
		floor := []domain.PrerequisiteTopic{}
		floor = appendCandidates(floor, cases, level, "successful_prerequisites")
		floor = appendCandidates(floor, curriculum, level, "prerequisites")
		candidates = append(candidates, floor...)
	}
	return dedupeAndSort(candidates), nil
}

// appendCandidates adds the topics listed under field by every match at level.
// Priority is the topic's position within its grade level.
func appendCandidates(floor []domain.PrerequisiteTopic, matches []pgvector.Match, level, field string) []domain.PrerequisiteTopic {
	for _, m := range matches {
		if metaString(m.Metadata, "grade_level") != level {
			continue
		}
		confidence := m.Score
		if rate, ok := metaFloat(m.Metadata, "success_rate"); ok {
			confidence *= rate
		}
		for _, name := range metaStrings(m.Metadata, field) {
			floor = append(floor, domain.PrerequisiteTopic{
				Topic:       name,
				GradeLevel:  level,
				Priority:    len(floor) + 1,
				SourceLayer: domain.SourceSimilarity,
				Confidence:  confidence,
			})
		}
	}
	return floor
}

func (c *Cascade) fromTable(gapCode, subject string, levels []string) []domain.PrerequisiteTopic {
	var out []domain.PrerequisiteTopic
	for _, level := range levels {
		out = append(out, c.table.Lookup(gapCode, level, subject)...)
	}
	return dedupeAndSort(out)
}

func genericTopic(gapCode, gradeLevel string) domain.PrerequisiteTopic {
	return domain.PrerequisiteTopic{
		Topic:       "foundations_of_" + strings.ToLower(strings.TrimSpace(gapCode)),
		GradeLevel:  GradeBelow(gradeLevel),
		Priority:    1,
		SourceLayer: domain.SourceGeneric,
		Confidence:  genericConfidence,
		Description: "General foundational review for " + gapCode,
	}
}

// dedupeAndSort keeps one entry per topic name (case-insensitive), the most
// confident one, ordered by priority then confidence.
func dedupeAndSort(in []domain.PrerequisiteTopic) []domain.PrerequisiteTopic {
	if len(in) == 0 {
		return nil
	}
	best := map[string]int{}
	out := make([]domain.PrerequisiteTopic, 0, len(in))
	for _, t := range in {
		key := strings.ToLower(strings.TrimSpace(t.Topic))
		if key == "" {
			continue
		}
		if i, ok := best[key]; ok {
			if t.Confidence > out[i].Confidence {
				out[i] = t
			}
			continue
		}
		best[key] = len(out)
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return GradeRank(out[i].GradeLevel) > GradeRank(out[j].GradeLevel)
	})
	return out
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func metaFloat(meta map[string]any, key string) (float64, bool) {
	switch v := meta[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

func metaStrings(meta map[string]any, key string) []string {
	switch v := meta[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Useful reports whether any topic came from a real source rather than the
// generic placeholder.
func Useful(topics []domain.PrerequisiteTopic) bool {
	for _, t := range topics {
		if t.SourceLayer != domain.SourceGeneric && t.SourceLayer != domain.SourceFallback {
			return true
		}
	}
	return false
}
