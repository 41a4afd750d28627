package remediation

import (
	"strings"

	"github.com/yungbote/neurobridge-remedy/internal/domain/content"
	domain "github.com/yungbote/neurobridge-remedy/internal/domain/remediation"
)

type gapRule struct {
	gapType  string
	keywords []string
	modes    []content.StageName
	focus    string
	assess   string
}

// gapRules is ordered; ties go to the earlier rule.
var gapRules = []gapRule{
	{
		gapType:  domain.GapKnowledge,
		keywords: []string{"basic", "fact", "term", "definition", "information", "recall", "memory"},
		modes:    []content.StageName{content.StageReading, content.StageWatching, content.StageAssessment},
		focus:    "factual_information",
		assess:   "recall",
	},
	{
		gapType:  domain.GapConceptual,
		keywords: []string{"concept", "principle", "theory", "understanding", "relationship", "why", "how"},
		modes:    []content.StageName{content.StageDebating, content.StageDoing, content.StageReading},
		focus:    "understanding_relationships",
		assess:   "analysis",
	},
	{
		gapType:  domain.GapApplication,
		keywords: []string{"apply", "solve", "practice", "problem", "exercise", "implementation"},
		modes:    []content.StageName{content.StageSolving, content.StagePlaying, content.StageDoing},
		focus:    "practical_problem_solving",
		assess:   "application",
	},
	{
		gapType:  domain.GapFoundational,
		keywords: []string{"foundation", "prerequisite", "basic", "elementary", "grade", "level", "fundamental"},
		modes:    []content.StageName{content.StageReading, content.StageWatching},
		focus:    "prerequisite_knowledge",
		assess:   "foundation_check",
	},
	{
		gapType:  domain.GapRetention,
		keywords: []string{"forgot", "remember", "recall", "retention", "spaced", "repetition"},
		modes:    []content.StageName{content.StageReading, content.StageSolving, content.StagePlaying},
		focus:    "spaced_repetition",
		assess:   "retention_check",
	},
	{
		gapType:  domain.GapEngagement,
		keywords: []string{"motivation", "interest", "attention", "participation", "bored", "disengaged"},
		modes:    []content.StageName{content.StagePlaying, content.StageListeningSpeaking, content.StageWatching},
		focus:    "motivational_content",
		assess:   "engagement_check",
	},
}

var defaultModes = []content.StageName{content.StageReading, content.StageAssessment}

const preclassifiedConfidence = 0.95

func ruleFor(gapType string) (gapRule, bool) {
	for _, r := range gapRules {
		if r.gapType == gapType {
			return r, true
		}
	}
	return gapRule{}, false
}

// Classify assigns a gap type to every gap. An upstream type wins; otherwise
// keywords in the code count twice as much as keywords in the evidence.
func Classify(gaps []domain.Gap) []domain.ClassifiedGap {
	out := make([]domain.ClassifiedGap, 0, len(gaps))
	for _, g := range gaps {
		if t := strings.TrimSpace(g.Type); t != "" {
			t = strings.TrimSuffix(strings.ToLower(t), "_gap")
			out = append(out, domain.ClassifiedGap{Gap: g, GapType: t, Confidence: preclassifiedConfidence})
			continue
		}

		code := strings.ToLower(g.Code)
		evidence := strings.ToLower(strings.Join(g.Evidence, " "))
		best, bestScore := gapRules[0], -1
		for _, r := range gapRules {
			score := 0
			for _, kw := range r.keywords {
				if strings.Contains(code, kw) {
					score += 2
				}
				if strings.Contains(evidence, kw) {
					score++
				}
			}
			if score > bestScore {
				best, bestScore = r, score
			}
		}
		confidence := float64(bestScore) / float64(len(best.keywords)*2+len(g.Evidence))
		out = append(out, domain.ClassifiedGap{Gap: g, GapType: best.gapType, Confidence: confidence})
	}
	return out
}

// PlanItems turns classified gaps into one remediation item each, in order.
func PlanItems(gaps []domain.ClassifiedGap) []domain.PlanItem {
	items := make([]domain.PlanItem, 0, len(gaps))
	for i, g := range gaps {
		modes := defaultModes
		focus, assess := "", ""
		if r, ok := ruleFor(g.GapType); ok {
			modes, focus, assess = r.modes, r.focus, r.assess
		}
		items = append(items, domain.PlanItem{
			Index:           i,
			GapCode:         g.Code,
			GapType:         g.GapType,
			Modes:           content.StageStrings(modes),
			Focus:           focus,
			AssessmentFocus: assess,
		})
	}
	return items
}
