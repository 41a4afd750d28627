package content

import (
	"fmt"
	"strings"

	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
)

// StageName identifies one unit of content production.
type StageName string

const (
	StageReading           StageName = "reading"
	StageWriting           StageName = "writing"
	StageWatching          StageName = "watching"
	StagePlaying           StageName = "playing"
	StageDoing             StageName = "doing"
	StageSolving           StageName = "solving"
	StageDebating          StageName = "debating"
	StageListeningSpeaking StageName = "listening_speaking"
	StageAssessment        StageName = "assessment"
)

// AllStages is the closed set of stage names, in canonical order.
var AllStages = []StageName{
	StageReading,
	StageWriting,
	StageWatching,
	StagePlaying,
	StageDoing,
	StageSolving,
	StageDebating,
	StageListeningSpeaking,
	StageAssessment,
}

func (s StageName) Valid() bool {
	for _, n := range AllStages {
		if n == s {
			return true
		}
	}
	return false
}

// ParseStageName accepts canonical names and the learn_by_/learning_by_ aliases.
func ParseStageName(raw string) (StageName, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "learning_by_")
	s = strings.TrimPrefix(s, "learn_by_")
	if s == "questioning_debating" {
		s = string(StageDebating)
	}
	name := StageName(s)
	if !name.Valid() {
		return "", fmt.Errorf("%w: unknown stage %q", pkgerrors.ErrInvalidArgument, raw)
	}
	return name, nil
}

// ParseSelection canonicalizes a requested stage list, dropping duplicates
// and keeping canonical order.
func ParseSelection(raw []string) ([]StageName, error) {
	seen := map[StageName]bool{}
	for _, r := range raw {
		name, err := ParseStageName(r)
		if err != nil {
			return nil, err
		}
		seen[name] = true
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("%w: empty stage selection", pkgerrors.ErrInvalidArgument)
	}
	out := make([]StageName, 0, len(seen))
	for _, n := range AllStages {
		if seen[n] {
			out = append(out, n)
		}
	}
	return out, nil
}

func StageStrings(names []StageName) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}
