package prerequisites

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	domain "github.com/yungbote/neurobridge-remedy/internal/domain/remediation"
	"github.com/yungbote/neurobridge-remedy/internal/pkg/logger"
)

const structuredTableEnv = "STRUCTURED_PREREQUISITES_YAML"

const structuredConfidence = 0.7

//go:embed structured_prerequisites.yaml
var structuredFS embed.FS

type yamlTable struct {
	Table    string                                           `yaml:"table"`
	Version  int                                              `yaml:"version"`
	Subjects map[string]map[string]map[string][]yamlTopicSpec `yaml:"subjects"`
}

type yamlTopicSpec struct {
	Topic       string `yaml:"topic"`
	Priority    int    `yaml:"priority"`
	Description string `yaml:"description"`
}

// family is one topic family of a subject, e.g. mathematics/algebra.
type family struct {
	name   string
	grades map[string][]yamlTopicSpec
}

// StructuredTable is the static (subject, family, grade) prerequisite mapping.
type StructuredTable struct {
	subjects map[string][]family
}

var tableOnce sync.Once
var tableCache *StructuredTable
var tableErr error

// DefaultTable returns the embedded table, or the one named by
// STRUCTURED_PREREQUISITES_YAML. A broken table yields an empty one.
func DefaultTable(log *logger.Logger) *StructuredTable {
	tableOnce.Do(func() {
		tableCache, tableErr = loadTable()
	})
	if tableErr != nil {
		if log != nil {
			log.Warn("prerequisites: structured table load failed; using empty table", "error", tableErr)
		}
		return &StructuredTable{subjects: map[string][]family{}}
	}
	return tableCache
}

func loadTable() (*StructuredTable, error) {
	data, err := readTable()
	if err != nil {
		return nil, err
	}
	return ParseTable(data)
}

func readTable() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(structuredTableEnv)); path != "" {
		return os.ReadFile(path)
	}
	return structuredFS.ReadFile("structured_prerequisites.yaml")
}

// ParseTable decodes and validates a structured table document.
func ParseTable(data []byte) (*StructuredTable, error) {
	var doc yamlTable
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Table) != "structured_prerequisites" {
		return nil, fmt.Errorf("unexpected table: %s", doc.Table)
	}
	if len(doc.Subjects) == 0 {
		return nil, errors.New("no subjects defined")
	}
	t := &StructuredTable{subjects: make(map[string][]family, len(doc.Subjects))}
	for subject, families := range doc.Subjects {
		names := make([]string, 0, len(families))
		for name := range families {
			names = append(names, name)
		}
		// map order is random; keep family matching deterministic
		sort.Strings(names)
		list := make([]family, 0, len(names))
		for _, name := range names {
			for grade, topics := range families[name] {
				for _, tp := range topics {
					if strings.TrimSpace(tp.Topic) == "" {
						return nil, fmt.Errorf("%s.%s.%s: topic is required", subject, name, grade)
					}
				}
			}
			list = append(list, family{name: strings.ToLower(name), grades: families[name]})
		}
		t.subjects[strings.ToLower(subject)] = list
	}
	return t, nil
}

// Lookup returns the fixed topics for gapCode at one grade level.
// The subject's families are tried first; gaps that look mathematical
// fall back to the mathematics families.
func (t *StructuredTable) Lookup(gapCode, gradeLevel, subject string) []domain.PrerequisiteTopic {
	if t == nil {
		return nil
	}
	gap := strings.ToLower(gapCode)
	var specs []yamlTopicSpec
	if fams, ok := t.subjects[strings.ToLower(strings.TrimSpace(subject))]; ok {
		specs = matchFamily(fams, gap, gradeLevel)
	}
	if len(specs) == 0 && looksMathematical(gap) {
		specs = matchFamily(t.subjects["mathematics"], gap, gradeLevel)
	}
	out := make([]domain.PrerequisiteTopic, 0, len(specs))
	for _, s := range specs {
		out = append(out, domain.PrerequisiteTopic{
			Topic:       s.Topic,
			GradeLevel:  gradeLevel,
			Priority:    s.Priority,
			SourceLayer: domain.SourceStructured,
			Confidence:  structuredConfidence,
			Description: s.Description,
		})
	}
	return out
}

func matchFamily(fams []family, gap, gradeLevel string) []yamlTopicSpec {
	for _, f := range fams {
		if !strings.Contains(gap, f.name) {
			continue
		}
		if topics, ok := f.grades[gradeLevel]; ok {
			return topics
		}
	}
	return nil
}

func looksMathematical(gap string) bool {
	return strings.Contains(gap, "math") || strings.Contains(gap, "algebra") || strings.Contains(gap, "geometry")
}
