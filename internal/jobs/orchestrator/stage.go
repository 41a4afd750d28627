package orchestrator

import (
	"context"
	"fmt"

	"github.com/yungbote/neurobridge-remedy/internal/domain/content"
)

// ContentGenerator produces content for one stage. It must not panic or
// return errors; failures come back as a Degraded result.
type ContentGenerator interface {
	Generate(ctx context.Context, stage content.StageName, focus string, bundle map[string]any) content.Result
}

// ArtifactStore persists generated content under a job or session scope.
type ArtifactStore interface {
	Append(ctx context.Context, scopeID, key string, item any) (string, error)
	Set(ctx context.Context, scopeID, key string, value any) (string, error)
	MarkStatus(ctx context.Context, scopeID, status string) error
}

// Stage is one content-producing node of the graph.
type Stage interface {
	Name() content.StageName
	// Persist writes a generated result into the store and returns the item id.
	Persist(ctx context.Context, store ArtifactStore, scopeID string, res content.Result) (string, error)
}

const (
	KeyTexts               = "texts"
	KeyVideos              = "videos"
	KeyGames               = "games"
	KeyPracticeQuestions   = "practice_questions"
	KeyAssessmentQuestions = "assessment_questions"
)

type appendStage struct {
	name content.StageName
	key  string
}

func (s appendStage) Name() content.StageName { return s.name }

func (s appendStage) Persist(ctx context.Context, store ArtifactStore, scopeID string, res content.Result) (string, error) {
	return store.Append(ctx, scopeID, s.key, res.Record())
}

type setStage struct {
	name content.StageName
	key  string
}

func (s setStage) Name() content.StageName { return s.name }

func (s setStage) Persist(ctx context.Context, store ArtifactStore, scopeID string, res content.Result) (string, error) {
	return store.Set(ctx, scopeID, s.key, res.Record())
}

// stages is the compile-time registration of every StageName.
var stages = map[content.StageName]Stage{
	content.StageReading:           appendStage{content.StageReading, KeyTexts},
	content.StageWriting:           appendStage{content.StageWriting, KeyTexts},
	content.StageWatching:          appendStage{content.StageWatching, KeyVideos},
	content.StagePlaying:           appendStage{content.StagePlaying, KeyGames},
	content.StageDoing:             appendStage{content.StageDoing, KeyTexts},
	content.StageSolving:           setStage{content.StageSolving, KeyPracticeQuestions},
	content.StageDebating:          appendStage{content.StageDebating, KeyTexts},
	content.StageListeningSpeaking: appendStage{content.StageListeningSpeaking, KeyTexts},
	content.StageAssessment:        setStage{content.StageAssessment, KeyAssessmentQuestions},
}

func init() {
	for _, name := range content.AllStages {
		if _, ok := stages[name]; !ok {
			panic(fmt.Sprintf("orchestrator: stage %q has no implementation", name))
		}
	}
}

func StageFor(name content.StageName) (Stage, bool) {
	s, ok := stages[name]
	return s, ok
}
