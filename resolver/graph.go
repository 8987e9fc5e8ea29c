// Package resolver turns a flat action list into a staged, optimized
// execution plan: dependency inference, cycle detection, level assignment,
// and non-semantic plan optimizations.
package resolver

import (
	"fmt"
	"sort"
	"time"

	conductor "github.com/goliatone/go-conductor"
)

// DependencyNode wraps one action for the duration of a resolution pass.
type DependencyNode struct {
	Action           conductor.Action
	DependsOn        map[string]struct{}
	Dependents       map[string]struct{}
	Level            int
	CanRunInParallel bool
}

// DependencyLevel groups actions with equal graph depth.
type DependencyLevel struct {
	Level             int
	Actions           []conductor.Action
	Parallelizable    bool
	EstimatedDuration time.Duration
}

// DependencyGraph is built fresh per command and never mutated once Levels
// is finalized.
type DependencyGraph struct {
	Nodes  map[string]*DependencyNode
	Edges  map[string]struct{}
	Levels []DependencyLevel
}

// Resolver analyzes dependencies using a fixed implicit-rule table.
type Resolver struct {
	rules []Rule
}

// New builds a resolver with the default rule table.
func New() *Resolver {
	return &Resolver{rules: DefaultRules()}
}

// NewWithRules builds a resolver with a custom rule table.
func NewWithRules(rules []Rule) *Resolver {
	return &Resolver{rules: rules}
}

// AnalyzeDependencies builds the dependency graph for one action list.
// Explicit dependencies come first, then the implicit rule table; levels are
// longest-path distances from graph sources. A cycle is fatal: no partial
// graph is returned.
func (r *Resolver) AnalyzeDependencies(actions []conductor.Action) (*DependencyGraph, error) {
	if len(actions) == 0 {
		return nil, conductor.CloneError(conductor.ErrInvalidInput,
			"cannot analyze an empty action list", nil, nil)
	}

	graph := &DependencyGraph{
		Nodes: make(map[string]*DependencyNode, len(actions)),
		Edges: make(map[string]struct{}),
	}

	for _, action := range actions {
		if !action.Type.Valid() {
			return nil, conductor.CloneError(conductor.ErrUnsupportedActionType,
				fmt.Sprintf("action %s has unsupported type %q", action.ID, action.Type),
				nil, map[string]any{"action_id": action.ID})
		}
		if _, exists := graph.Nodes[action.ID]; exists {
			return nil, conductor.CloneError(conductor.ErrInvalidInput,
				fmt.Sprintf("duplicate action id %s", action.ID), nil,
				map[string]any{"action_id": action.ID})
		}
		graph.Nodes[action.ID] = &DependencyNode{
			Action:     action,
			DependsOn:  make(map[string]struct{}),
			Dependents: make(map[string]struct{}),
			Level:      -1,
		}
	}

	for _, action := range actions {
		for _, depID := range action.Dependencies {
			if _, ok := graph.Nodes[depID]; !ok {
				return nil, conductor.CloneError(conductor.ErrInvalidInput,
					fmt.Sprintf("action %s depends on unknown action %s", action.ID, depID),
					nil, map[string]any{"action_id": action.ID, "dependency_id": depID})
			}
			graph.addEdge(depID, action.ID)
		}
	}

	r.applyImplicitRules(graph, actions)

	if err := computeLevels(graph); err != nil {
		return nil, err
	}

	// Independent back-edge check; a cycle surviving level computation would
	// otherwise corrupt the stage ordering.
	if cycleID := findCycleDFS(graph); cycleID != "" {
		return nil, circularDependencyError(cycleID)
	}

	buildLevels(graph)
	return graph, nil
}

func (g *DependencyGraph) addEdge(from, to string) {
	key := from + "->" + to
	if _, dup := g.Edges[key]; dup {
		return
	}
	g.Edges[key] = struct{}{}
	g.Nodes[to].DependsOn[from] = struct{}{}
	g.Nodes[from].Dependents[to] = struct{}{}
}

// applyImplicitRules adds rule-table edges in input order so repeated runs
// produce identical graphs.
func (r *Resolver) applyImplicitRules(graph *DependencyGraph, actions []conductor.Action) {
	for _, rule := range r.rules {
		for _, prerequisite := range actions {
			if prerequisite.Type != rule.Prerequisite {
				continue
			}
			for _, dependent := range actions {
				if dependent.Type != rule.Dependent || dependent.ID == prerequisite.ID {
					continue
				}
				if rule.Matches != nil && !rule.Matches(prerequisite, dependent) {
					continue
				}
				graph.addEdge(prerequisite.ID, dependent.ID)
			}
		}
	}
}

func circularDependencyError(actionID string) error {
	return conductor.CloneError(conductor.ErrCircularDependency,
		fmt.Sprintf("circular dependency involving action %s", actionID), nil,
		map[string]any{"action_id": actionID})
}

// computeLevels assigns each node its longest-path distance from the graph
// sources via memoized recursion; revisiting a node already on the recursion
// stack signals a cycle.
func computeLevels(graph *DependencyGraph) error {
	onStack := make(map[string]bool, len(graph.Nodes))

	var visit func(id string) (int, error)
	visit = func(id string) (int, error) {
		node := graph.Nodes[id]
		if node.Level >= 0 {
			return node.Level, nil
		}
		if onStack[id] {
			return 0, circularDependencyError(id)
		}
		onStack[id] = true
		defer delete(onStack, id)

		level := 0
		for depID := range node.DependsOn {
			depLevel, err := visit(depID)
			if err != nil {
				return 0, err
			}
			if depLevel+1 > level {
				level = depLevel + 1
			}
		}
		node.Level = level
		return level, nil
	}

	for id := range graph.Nodes {
		if _, err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// findCycleDFS runs a plain white/grey/black DFS looking for a back edge and
// returns the offending action id, or "".
func findCycleDFS(graph *DependencyGraph) string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(graph.Nodes))

	var visit func(id string) string
	visit = func(id string) string {
		color[id] = grey
		for depID := range graph.Nodes[id].Dependents {
			switch color[depID] {
			case grey:
				return depID
			case white:
				if hit := visit(depID); hit != "" {
					return hit
				}
			}
		}
		color[id] = black
		return ""
	}

	for id := range graph.Nodes {
		if color[id] == white {
			if hit := visit(id); hit != "" {
				return hit
			}
		}
	}
	return ""
}

// buildLevels finalizes the graph's ordered level list. A level is
// parallelizable when it holds more than one action, none of them require
// input, and no intra-level edge exists.
func buildLevels(graph *DependencyGraph) {
	byLevel := map[int][]*DependencyNode{}
	maxLevel := 0
	for _, node := range graph.Nodes {
		byLevel[node.Level] = append(byLevel[node.Level], node)
		if node.Level > maxLevel {
			maxLevel = node.Level
		}
	}

	for level := 0; level <= maxLevel; level++ {
		nodes := byLevel[level]
		sort.Slice(nodes, func(i, j int) bool {
			return nodes[i].Action.ID < nodes[j].Action.ID
		})

		parallelizable := len(nodes) > 1
		for _, node := range nodes {
			if node.Action.Metadata.RequiresInput {
				parallelizable = false
				break
			}
			for depID := range node.DependsOn {
				if graph.Nodes[depID].Level == level {
					parallelizable = false
				}
			}
		}

		actions := make([]conductor.Action, 0, len(nodes))
		var sum, longest time.Duration
		for _, node := range nodes {
			node.CanRunInParallel = parallelizable
			actions = append(actions, node.Action)
			d := node.Action.Metadata.EstimatedDuration
			sum += d
			if d > longest {
				longest = d
			}
		}

		estimate := sum
		if parallelizable {
			estimate = longest
		}

		graph.Levels = append(graph.Levels, DependencyLevel{
			Level:             level,
			Actions:           actions,
			Parallelizable:    parallelizable,
			EstimatedDuration: estimate,
		})
	}
}
