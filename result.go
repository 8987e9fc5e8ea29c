package conductor

import (
	"sort"
	"time"
)

// ActionExecutionResult records one attempted action. Immutable once built.
type ActionExecutionResult struct {
	ActionID         string         `json:"action_id"`
	ActionType       ActionType     `json:"action_type"`
	Success          bool           `json:"success"`
	Result           map[string]any `json:"result,omitempty"`
	Error            string         `json:"error,omitempty"`
	ExecutionTime    time.Duration  `json:"execution_time"`
	AffectedEntities []string       `json:"affected_entities,omitempty"`
	RollbackData     map[string]any `json:"rollback_data,omitempty"`
}

// TypeBreakdown aggregates outcomes for one action type.
type TypeBreakdown struct {
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	AverageTime time.Duration `json:"average_time"`
}

// ExecutionSummary condenses a run's results for audit and reporting.
type ExecutionSummary struct {
	TotalActions      int                          `json:"total_actions"`
	SucceededActions  int                          `json:"succeeded_actions"`
	FailedActions     int                          `json:"failed_actions"`
	AverageActionTime time.Duration                `json:"average_action_time"`
	AffectedEntities  []string                     `json:"affected_entities,omitempty"`
	ByType            map[ActionType]TypeBreakdown `json:"by_type,omitempty"`
}

// Summarize builds an ExecutionSummary from the attempted-action results.
// Skipped actions never reach the result list, so they are not counted.
func Summarize(executed, failed []ActionExecutionResult) ExecutionSummary {
	summary := ExecutionSummary{
		TotalActions:     len(executed) + len(failed),
		SucceededActions: len(executed),
		FailedActions:    len(failed),
		ByType:           make(map[ActionType]TypeBreakdown),
	}

	entities := map[string]struct{}{}
	var total time.Duration
	perTypeTotals := map[ActionType]time.Duration{}
	perTypeCounts := map[ActionType]int{}

	record := func(r ActionExecutionResult, ok bool) {
		total += r.ExecutionTime
		bd := summary.ByType[r.ActionType]
		if ok {
			bd.Succeeded++
		} else {
			bd.Failed++
		}
		summary.ByType[r.ActionType] = bd
		perTypeTotals[r.ActionType] += r.ExecutionTime
		perTypeCounts[r.ActionType]++
		for _, e := range r.AffectedEntities {
			entities[e] = struct{}{}
		}
	}

	for _, r := range executed {
		record(r, true)
	}
	for _, r := range failed {
		record(r, false)
	}

	if summary.TotalActions > 0 {
		summary.AverageActionTime = total / time.Duration(summary.TotalActions)
	}
	for t, bd := range summary.ByType {
		if n := perTypeCounts[t]; n > 0 {
			bd.AverageTime = perTypeTotals[t] / time.Duration(n)
			summary.ByType[t] = bd
		}
	}

	summary.AffectedEntities = make([]string, 0, len(entities))
	for e := range entities {
		summary.AffectedEntities = append(summary.AffectedEntities, e)
	}
	sort.Strings(summary.AffectedEntities)

	return summary
}

// MultiActionResult is the uniform outcome contract returned to callers.
// The executor never lets an error escape past this boundary.
type MultiActionResult struct {
	CommandID         string                  `json:"command_id"`
	Success           bool                    `json:"success"`
	ExecutedActions   []ActionExecutionResult `json:"executed_actions"`
	FailedActions     []ActionExecutionResult `json:"failed_actions"`
	Summary           ExecutionSummary        `json:"summary"`
	Error             string                  `json:"error,omitempty"`
	RollbackRequired  bool                    `json:"rollback_required"`
	RollbackCompleted bool                    `json:"rollback_completed"`
	TotalTime         time.Duration           `json:"total_time"`
}
