package orchestrator

import (
	"testing"

	"github.com/yungbote/neurobridge-remedy/internal/domain/content"
)

func TestBuildScenarioAEdges(t *testing.T) {
	sel, err := content.ParseSelection([]string{"reading", "solving", "learning_by_assessment"})
	if err != nil {
		t.Fatalf("ParseSelection: %v", err)
	}
	g, err := Build(sel)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []Edge{
		{NodeOrchestrator, "reading"},
		{NodeOrchestrator, "solving"},
		{"reading", "assessment"},
		{"solving", "assessment"},
		{"reading", NodeCollector},
		{"solving", NodeCollector},
		{"assessment", NodeCollector},
		{NodeCollector, NodeEnd},
	}
	for _, e := range want {
		if !g.HasEdge(e.From, e.To) {
			t.Fatalf("missing edge %s -> %s", e.From, e.To)
		}
	}
	if got := len(g.Edges()); got != len(want) {
		t.Fatalf("edge count: want=%d got=%d (%v)", len(want), got, g.Edges())
	}
	if g.HasEdge(NodeOrchestrator, "assessment") {
		t.Fatalf("assessment should not hang off orchestrator when it has inputs")
	}
}

func TestBuildAssessmentAloneIsParallelChild(t *testing.T) {
	g, err := Build([]content.StageName{content.StageAssessment, content.StageWatching})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !g.HasEdge(NodeOrchestrator, "assessment") {
		t.Fatalf("assessment without inputs should be a child of orchestrator")
	}
	if g.HasEdge("watching", "assessment") {
		t.Fatalf("watching must not feed assessment")
	}
}

func TestBuildInvariantsForEverySelection(t *testing.T) {
	all := content.AllStages
	for mask := 1; mask < 1<<len(all); mask++ {
		var sel []content.StageName
		for i, s := range all {
			if mask&(1<<i) != 0 {
				sel = append(sel, s)
			}
		}
		g, err := Build(sel)
		if err != nil {
			t.Fatalf("Build(%v): %v", sel, err)
		}
		nodes := g.Nodes()
		counts := map[string]int{}
		for _, n := range nodes {
			counts[n]++
		}
		if counts[NodeOrchestrator] != 1 || counts[NodeCollector] != 1 || counts[NodeEnd] != 1 {
			t.Fatalf("Build(%v): bad node counts %v", sel, counts)
		}
		if len(nodes) != len(sel)+3 {
			t.Fatalf("Build(%v): topological order dropped nodes (cycle?) %v", sel, nodes)
		}
		if nodes[0] != NodeOrchestrator || nodes[len(nodes)-1] != NodeEnd {
			t.Fatalf("Build(%v): bad order %v", sel, nodes)
		}
		for _, s := range sel {
			if !g.HasPath(string(s), NodeCollector) {
				t.Fatalf("Build(%v): %s cannot reach collector", sel, s)
			}
			if !g.HasPath(NodeOrchestrator, string(s)) {
				t.Fatalf("Build(%v): %s unreachable from orchestrator", sel, s)
			}
		}
	}
}

func TestBuildRejectsEmptyAndUnknown(t *testing.T) {
	if _, err := Build(nil); err == nil {
		t.Fatalf("Build(nil): expected error")
	}
	if _, err := Build([]content.StageName{"singing"}); err == nil {
		t.Fatalf("Build(unknown): expected error")
	}
}

func TestEveryStageNameIsRegistered(t *testing.T) {
	for _, name := range content.AllStages {
		s, ok := StageFor(name)
		if !ok || s.Name() != name {
			t.Fatalf("stage %q not registered correctly", name)
		}
	}
}
