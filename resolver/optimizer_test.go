package resolver

import (
	"testing"

	conductor "github.com/goliatone/go-conductor"
)

func TestOptimizeExecutionOrderBatchesNotifications(t *testing.T) {
	plan := mustPlan(t,
		action("n1", conductor.ActionSendNotification, map[string]any{"message": "a"}),
		action("n2", conductor.ActionSendNotification, map[string]any{"message": "b"}),
		action("n3", conductor.ActionSendNotification, map[string]any{"message": "c"}),
	)

	optimized := New().OptimizeExecutionOrder(plan)

	var batching *Optimization
	for i := range optimized.Optimizations {
		if optimized.Optimizations[i].Type == OptimizationBatching {
			batching = &optimized.Optimizations[i]
		}
	}
	if batching == nil {
		t.Fatal("expected a batching optimization for repeated notifications")
	}
	if want := 2 * batchOverhead; batching.Impact != want {
		t.Fatalf("expected batching impact %s, got %s", want, batching.Impact)
	}
}

func TestOptimizeExecutionOrderNeverIncreasesEstimate(t *testing.T) {
	plans := []ExecutionPlan{
		mustPlan(t,
			action("create", conductor.ActionCreateTask, map[string]any{"task_id": "t1"}),
			action("assign", conductor.ActionAssignTask, map[string]any{"task_id": "t1", "assignee_id": "u1"}),
		),
		mustPlan(t,
			action("n1", conductor.ActionSendNotification, nil),
			action("n2", conductor.ActionSendNotification, nil),
		),
		mustPlan(t,
			action("report", conductor.ActionGenerateReport, nil),
		),
	}

	for i, plan := range plans {
		optimized := New().OptimizeExecutionOrder(plan)
		if optimized.TotalEstimatedTime > plan.TotalEstimatedTime {
			t.Errorf("plan %d: optimization raised the estimate from %s to %s",
				i, plan.TotalEstimatedTime, optimized.TotalEstimatedTime)
		}
		if optimized.Gains.OriginalEstimate != plan.TotalEstimatedTime {
			t.Errorf("plan %d: gains must record the original estimate", i)
		}
	}
}

func TestOptimizeExecutionOrderFloor(t *testing.T) {
	// Many identical cached-candidate actions would otherwise drive the
	// estimate to zero.
	actions := make([]conductor.Action, 0, 8)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		actions = append(actions, action(id, conductor.ActionSendNotification, map[string]any{"message": "same"}))
	}
	plan := mustPlan(t, actions...)

	optimized := New().OptimizeExecutionOrder(plan)

	floor := plan.TotalEstimatedTime * 3 / 10
	if optimized.TotalEstimatedTime < floor {
		t.Fatalf("estimate %s dropped below the floor %s", optimized.TotalEstimatedTime, floor)
	}
	if optimized.Gains.Improvement != plan.TotalEstimatedTime-optimized.TotalEstimatedTime {
		t.Fatal("improvement must equal original minus optimized")
	}
}

func TestOptimizeExecutionOrderDetectsRepeats(t *testing.T) {
	plan := mustPlan(t,
		action("r1", conductor.ActionScheduleMeeting, map[string]any{"title": "sync"}),
		action("r2", conductor.ActionScheduleMeeting, map[string]any{"title": "sync"}),
	)

	optimized := New().OptimizeExecutionOrder(plan)

	found := false
	for _, o := range optimized.Optimizations {
		if o.Type == OptimizationCaching {
			found = true
			want := conductor.ActionScheduleMeeting.EstimatedDuration() * 8 / 10
			if o.Impact != want {
				t.Fatalf("expected caching impact %s, got %s", want, o.Impact)
			}
		}
	}
	if !found {
		t.Fatal("expected a caching optimization for identical actions")
	}
}

func TestOptimizeExecutionOrderDoesNotMutateInput(t *testing.T) {
	plan := mustPlan(t,
		action("m1", conductor.ActionScheduleMeeting, map[string]any{"title": "long"}),
		action("m2", conductor.ActionScheduleMeeting, map[string]any{"title": "short"}),
	)
	before := make([]string, 0, 2)
	for _, a := range plan.Stages[0].Actions {
		before = append(before, a.ID)
	}
	beforeTotal := plan.TotalEstimatedTime

	_ = New().OptimizeExecutionOrder(plan)

	if plan.TotalEstimatedTime != beforeTotal {
		t.Fatal("input plan estimate mutated")
	}
	for i, a := range plan.Stages[0].Actions {
		if a.ID != before[i] {
			t.Fatal("input plan stage ordering mutated")
		}
	}
}

func TestOptimizeExecutionOrderParallelStageEstimate(t *testing.T) {
	plan := mustPlan(t,
		action("m1", conductor.ActionScheduleMeeting, map[string]any{"meeting_id": "a"}),
		action("m2", conductor.ActionScheduleMeeting, map[string]any{"meeting_id": "b"}),
	)

	optimized := New().OptimizeExecutionOrder(plan)

	if len(optimized.Stages) != 1 {
		t.Fatalf("expected a single stage, got %d", len(optimized.Stages))
	}
	stage := optimized.Stages[0]
	if !stage.ParallelExecution {
		// Independent meetings neither require input nor share entities.
		t.Fatal("independent same-level actions should run in parallel")
	}
	if want := conductor.ActionScheduleMeeting.EstimatedDuration(); stage.EstimatedDuration != want {
		t.Fatalf("parallel stage estimate should be the longest action, got %s", stage.EstimatedDuration)
	}
}
