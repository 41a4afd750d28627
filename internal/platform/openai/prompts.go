package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/neurobridge-remedy/internal/domain/content"
)

type stagePrompt struct {
	task string
	keys []string
}

var stagePrompts = map[content.StageName]stagePrompt{
	content.StageReading: {
		task: "Create concise, structured notes that close the student's learning gaps. Include one or two gap explanations tied directly to the gaps.",
		keys: []string{"five_min_summary", "sections", "glossary", "memory_hacks", "gap_explanations", "visual_questions"},
	},
	content.StageWriting: {
		task: "Design a short writing exercise that makes the student explain the idea in their own words, with a rubric and a model answer.",
		keys: []string{"prompts", "rubric", "model_answer"},
	},
	content.StageWatching: {
		task: "Recommend short explainer videos. For each give a title, what to look for, and a search query that finds it.",
		keys: []string{"videos", "watch_questions"},
	},
	content.StagePlaying: {
		task: "Design a small learning game with levels that gradually exercise the gap.",
		keys: []string{"game_title", "rules", "levels", "win_condition"},
	},
	content.StageDoing: {
		task: "Design a safe hands-on activity the student can do at home.",
		keys: []string{"materials", "steps", "post_task_questions", "safety_notes", "evaluation_criteria"},
	},
	content.StageSolving: {
		task: "Create five problems with progressive difficulty tightly focused on the misconception. Each problem has type, difficulty (easy/medium/hard), stem, options for multiple choice, answer and explanation. Add scheduling hints naming weak areas to resurface later.",
		keys: []string{"problems", "scheduling_hints"},
	},
	content.StageDebating: {
		task: "Create a structured debate setup with personas and prompts that surface the misconception.",
		keys: []string{"settings", "personas", "prompts", "closing_summary_cue"},
	},
	content.StageListeningSpeaking: {
		task: "Write a short spoken explanation script and three verbal checks for understanding.",
		keys: []string{"script", "verbal_checks"},
	},
	content.StageAssessment: {
		task: "Create an assessment that checks whether the gap is closed. Reuse ideas from the prior artifacts when present. Each question has stem, options when relevant, answer, marks and the skill it targets.",
		keys: []string{"questions", "answer_key", "total_marks"},
	},
}

const systemPrompt = "You are an expert teacher producing remediation material for a single student. Respond with one JSON object and nothing else."

// buildPrompt renders the user prompt for one stage. Unknown bundle keys are
// ignored; long context is clipped.
func buildPrompt(stage content.StageName, focus string, bundle map[string]any) (string, []string) {
	sp, ok := stagePrompts[stage]
	if !ok {
		sp = stagePrompt{task: "Create learning material for the stage " + string(stage) + ".", keys: []string{"content"}}
	}

	var b strings.Builder
	b.WriteString(sp.task)
	b.WriteString("\n\nFocus: ")
	b.WriteString(orDefault(focus, "unspecified"))
	b.WriteString("\nGrade level: ")
	b.WriteString(orDefault(str(bundle["grade_level"]), "NA"))
	if s := str(bundle["subject"]); s != "" {
		b.WriteString("\nSubject: ")
		b.WriteString(s)
	}
	if s := str(bundle["gap_type"]); s != "" {
		b.WriteString("\nGap type: ")
		b.WriteString(s)
	}
	if s := str(bundle["assessment_focus"]); s != "" {
		b.WriteString("\nAssessment focus: ")
		b.WriteString(s)
	}
	if s := str(bundle["strategy_focus"]); s != "" {
		b.WriteString("\nStrategy: ")
		b.WriteString(s)
	}
	if codes, evidence := gapDetails(bundle["learning_gaps"]); len(codes) > 0 {
		b.WriteString("\nLearning gaps: ")
		b.WriteString(strings.Join(codes, ", "))
		if len(evidence) > 0 {
			b.WriteString("\nEvidence: ")
			b.WriteString(strings.Join(evidence, "; "))
		}
	}
	if ev := strs(bundle["evidence"]); len(ev) > 0 {
		b.WriteString("\nObserved: ")
		b.WriteString(strings.Join(ev, "; "))
	}
	if topics := prerequisiteTopics(bundle["prerequisites"]); len(topics) > 0 {
		b.WriteString("\nBuild up from these prerequisites first: ")
		b.WriteString(strings.Join(topics, ", "))
	}
	if s := str(bundle["lesson_script"]); s != "" {
		b.WriteString("\nLesson script excerpt: ")
		b.WriteString(clip(s, 200))
	}
	if prior, ok := bundle["prior_artifacts"].(map[string]any); ok && len(prior) > 0 {
		raw, _ := json.Marshal(prior)
		b.WriteString("\nPrior artifacts: ")
		b.WriteString(clip(string(raw), 1500))
	}
	fmt.Fprintf(&b, "\n\nReturn only valid JSON with keys: %s.", strings.Join(sp.keys, ", "))
	return b.String(), sp.keys
}

func gapDetails(v any) ([]string, []string) {
	var codes, evidence []string
	list, _ := v.([]any)
	for _, item := range list {
		switch g := item.(type) {
		case string:
			if s := strings.TrimSpace(g); s != "" {
				codes = append(codes, s)
			}
		case map[string]any:
			if s := str(g["code"]); s != "" {
				codes = append(codes, s)
			}
			evidence = append(evidence, strs(g["evidence"])...)
		}
	}
	if s, ok := v.([]string); ok {
		codes = append(codes, s...)
	}
	return codes, evidence
}

// prerequisiteTopics keeps the incoming order; cycles already arrive grouped
// nearest grade first.
func prerequisiteTopics(v any) []string {
	type entry struct {
		topic string
		grade string
	}
	var entries []entry
	list, _ := v.([]any)
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if t := str(m["topic"]); t != "" {
			entries = append(entries, entry{topic: t, grade: str(m["grade_level"])})
		}
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.grade != "" {
			out = append(out, e.topic+" ("+e.grade+")")
		} else {
			out = append(out, e.topic)
		}
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func strs(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s := str(x); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
