package resolver

import (
	"fmt"
	"sort"
	"time"

	conductor "github.com/goliatone/go-conductor"
)

// RiskLevel grades a plan for logging and telemetry; it never gates
// execution.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskAssessment explains the grade.
type RiskAssessment struct {
	Level   RiskLevel `json:"level"`
	Factors []string  `json:"factors,omitempty"`
}

// ExecutionStage mirrors a dependency level plus the prerequisite ids drawn
// from earlier levels.
type ExecutionStage struct {
	Stage             int                `json:"stage"`
	Actions           []conductor.Action `json:"actions"`
	ParallelExecution bool               `json:"parallel_execution"`
	Prerequisites     []string           `json:"prerequisites,omitempty"`
	EstimatedDuration time.Duration      `json:"estimated_duration"`
}

// ExecutionPlan is a value object; the executor never mutates it.
type ExecutionPlan struct {
	Stages             []ExecutionStage `json:"stages"`
	TotalEstimatedTime time.Duration    `json:"total_estimated_time"`
	Risk               RiskAssessment   `json:"risk"`
}

// ActionCount returns the number of actions across all stages.
func (p ExecutionPlan) ActionCount() int {
	n := 0
	for _, s := range p.Stages {
		n += len(s.Actions)
	}
	return n
}

// CreateExecutionPlan converts the graph's levels into execution stages.
// Total estimated time accumulates stage durations: max-of-parallel for
// parallel stages, sum for sequential ones (already folded into each
// level's estimate).
func (r *Resolver) CreateExecutionPlan(graph *DependencyGraph) (ExecutionPlan, error) {
	if graph == nil || len(graph.Levels) == 0 {
		return ExecutionPlan{}, conductor.CloneError(conductor.ErrInvalidInput,
			"cannot plan from an empty dependency graph", nil, nil)
	}

	plan := ExecutionPlan{Stages: make([]ExecutionStage, 0, len(graph.Levels))}
	for _, level := range graph.Levels {
		prereqs := map[string]struct{}{}
		for _, action := range level.Actions {
			for depID := range graph.Nodes[action.ID].DependsOn {
				prereqs[depID] = struct{}{}
			}
		}
		ids := make([]string, 0, len(prereqs))
		for id := range prereqs {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		plan.Stages = append(plan.Stages, ExecutionStage{
			Stage:             level.Level,
			Actions:           level.Actions,
			ParallelExecution: level.Parallelizable,
			Prerequisites:     ids,
			EstimatedDuration: level.EstimatedDuration,
		})
		plan.TotalEstimatedTime += level.EstimatedDuration
	}

	plan.Risk = assessRisk(plan)
	return plan, nil
}

func assessRisk(plan ExecutionPlan) RiskAssessment {
	var factors []string

	if len(plan.Stages) > 5 {
		factors = append(factors, fmt.Sprintf("%d execution stages", len(plan.Stages)))
	}

	parallelStages := 0
	for _, s := range plan.Stages {
		if s.ParallelExecution {
			parallelStages++
		}
	}
	if parallelStages > 2 {
		factors = append(factors, fmt.Sprintf("%d parallel stages", parallelStages))
	}

	external := map[conductor.ActionType]struct{}{}
	for _, s := range plan.Stages {
		for _, a := range s.Actions {
			if a.Type.External() {
				external[a.Type] = struct{}{}
			}
		}
	}
	for t := range external {
		factors = append(factors, fmt.Sprintf("external action type %s", t))
	}
	sort.Strings(factors)

	level := RiskLow
	if len(factors) > 0 {
		level = RiskMedium
	}
	return RiskAssessment{Level: level, Factors: factors}
}
