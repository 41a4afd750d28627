package orchestrator

import (
	"fmt"
	"sort"

	"github.com/yungbote/neurobridge-remedy/internal/domain/content"
	pkgerrors "github.com/yungbote/neurobridge-remedy/internal/pkg/errors"
)

const (
	NodeOrchestrator = "orchestrator"
	NodeCollector    = "collector"
	NodeEnd          = "END"
)

// assessment waits on whichever of these are selected.
var assessmentInputs = []content.StageName{content.StageReading, content.StageWriting, content.StageSolving}

type Edge struct {
	From string
	To   string
}

// Graph is the per-job stage DAG: orchestrator fans out to the selected
// stages, which fan in at collector, which leads to END.
type Graph struct {
	stages []content.StageName
	deps   map[string][]string
	order  []string
}

// Build derives the graph for a stage selection. Duplicates are ignored.
func Build(selected []content.StageName) (*Graph, error) {
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no stages selected", pkgerrors.ErrInvalidArgument)
	}
	chosen := map[content.StageName]bool{}
	for _, s := range selected {
		if !s.Valid() {
			return nil, fmt.Errorf("%w: unknown stage %q", pkgerrors.ErrInvalidArgument, s)
		}
		chosen[s] = true
	}

	g := &Graph{deps: map[string][]string{NodeOrchestrator: nil}}
	for _, s := range content.AllStages {
		if chosen[s] {
			g.stages = append(g.stages, s)
		}
	}

	for _, s := range g.stages {
		if s != content.StageAssessment {
			g.deps[string(s)] = []string{NodeOrchestrator}
			continue
		}
		var in []string
		for _, dep := range assessmentInputs {
			if chosen[dep] {
				in = append(in, string(dep))
			}
		}
		if len(in) == 0 {
			in = []string{NodeOrchestrator}
		}
		g.deps[string(s)] = in
	}

	collectorDeps := make([]string, 0, len(g.stages))
	for _, s := range g.stages {
		collectorDeps = append(collectorDeps, string(s))
	}
	g.deps[NodeCollector] = collectorDeps
	g.deps[NodeEnd] = []string{NodeCollector}

	order, err := g.topoOrder()
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

func (g *Graph) Stages() []content.StageName {
	return append([]content.StageName(nil), g.stages...)
}

// Nodes returns every node in topological order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.order...)
}

func (g *Graph) Predecessors(node string) []string {
	return append([]string(nil), g.deps[node]...)
}

// Edges lists edges ordered by target topological position, then source.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, to := range g.order {
		from := append([]string(nil), g.deps[to]...)
		sort.Strings(from)
		for _, f := range from {
			out = append(out, Edge{From: f, To: to})
		}
	}
	return out
}

func (g *Graph) HasEdge(from, to string) bool {
	for _, d := range g.deps[to] {
		if d == from {
			return true
		}
	}
	return false
}

// HasPath reports whether to is reachable from from.
func (g *Graph) HasPath(from, to string) bool {
	if from == to {
		return true
	}
	for _, d := range g.deps[to] {
		if g.HasPath(from, d) {
			return true
		}
	}
	return false
}

// topoOrder is a Kahn sort, stable by canonical node order.
func (g *Graph) topoOrder() ([]string, error) {
	nodes := []string{NodeOrchestrator}
	for _, s := range g.stages {
		nodes = append(nodes, string(s))
	}
	nodes = append(nodes, NodeCollector, NodeEnd)

	deg := map[string]int{}
	out := map[string][]string{}
	for _, n := range nodes {
		for _, dep := range g.deps[n] {
			if _, ok := g.deps[dep]; !ok {
				return nil, fmt.Errorf("node %q depends on unknown node %q", n, dep)
			}
			deg[n]++
			out[dep] = append(out[dep], n)
		}
	}

	order := make([]string, 0, len(nodes))
	added := map[string]bool{}
	for {
		progressed := false
		for _, n := range nodes {
			if added[n] || deg[n] != 0 {
				continue
			}
			added[n] = true
			order = append(order, n)
			for _, next := range out[n] {
				deg[next]--
			}
			progressed = true
		}
		if !progressed {
			break
		}
	}
	if len(order) != len(nodes) {
		return nil, fmt.Errorf("stage graph has a cycle")
	}
	return order, nil
}
