package resolver

import (
	"strings"
	"testing"

	conductor "github.com/goliatone/go-conductor"
)

func action(id string, t conductor.ActionType, params map[string]any, deps ...string) conductor.Action {
	return conductor.NewAction(0, conductor.ParsedAction{
		ID:           id,
		Type:         string(t),
		Parameters:   params,
		Dependencies: deps,
	})
}

func TestAnalyzeDependenciesEmptyList(t *testing.T) {
	_, err := New().AnalyzeDependencies(nil)
	if err == nil {
		t.Fatal("expected error for empty action list")
	}
	if code := conductor.ErrorCode(err); code != conductor.ErrCodeInvalidInput {
		t.Fatalf("expected %s, got %s", conductor.ErrCodeInvalidInput, code)
	}
}

func TestAnalyzeDependenciesImplicitTaskOrdering(t *testing.T) {
	graph, err := New().AnalyzeDependencies([]conductor.Action{
		action("assign", conductor.ActionAssignTask, map[string]any{"task_id": "t1", "assignee_id": "sarah"}),
		action("create", conductor.ActionCreateTask, map[string]any{"task_id": "t1", "title": "Review proposal"}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(graph.Levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(graph.Levels))
	}
	if graph.Nodes["create"].Level != 0 {
		t.Errorf("create should be level 0, got %d", graph.Nodes["create"].Level)
	}
	if graph.Nodes["assign"].Level != 1 {
		t.Errorf("assign should be level 1, got %d", graph.Nodes["assign"].Level)
	}
	if _, ok := graph.Edges["create->assign"]; !ok {
		t.Error("expected implicit edge create->assign")
	}
}

func TestAnalyzeDependenciesExplicitDependencies(t *testing.T) {
	graph, err := New().AnalyzeDependencies([]conductor.Action{
		action("report", conductor.ActionGenerateReport, nil),
		action("notify", conductor.ActionSendNotification, nil, "report"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if graph.Nodes["notify"].Level != 1 {
		t.Fatalf("notify should wait for report, got level %d", graph.Nodes["notify"].Level)
	}
}

func TestAnalyzeDependenciesUnknownDependency(t *testing.T) {
	_, err := New().AnalyzeDependencies([]conductor.Action{
		action("notify", conductor.ActionSendNotification, nil, "ghost"),
	})
	if err == nil {
		t.Fatal("expected error for unknown dependency id")
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("error should name the missing id, got: %v", err)
	}
}

func TestAnalyzeDependenciesDuplicateID(t *testing.T) {
	_, err := New().AnalyzeDependencies([]conductor.Action{
		action("dup", conductor.ActionCreateTask, nil),
		action("dup", conductor.ActionCreateTask, nil),
	})
	if err == nil {
		t.Fatal("expected error for duplicate action id")
	}
}

func TestAnalyzeDependenciesUnsupportedType(t *testing.T) {
	_, err := New().AnalyzeDependencies([]conductor.Action{
		{ID: "x", Type: conductor.ActionType("teleport_user")},
	})
	if err == nil {
		t.Fatal("expected error for unsupported action type")
	}
	if code := conductor.ErrorCode(err); code != conductor.ErrCodeUnsupportedActionType {
		t.Fatalf("expected %s, got %s", conductor.ErrCodeUnsupportedActionType, code)
	}
}

func TestAnalyzeDependenciesCycleDetected(t *testing.T) {
	_, err := New().AnalyzeDependencies([]conductor.Action{
		action("a", conductor.ActionCreateTask, nil, "b"),
		action("b", conductor.ActionUpdateTask, map[string]any{"task_id": "t9"}, "a"),
	})
	if err == nil {
		t.Fatal("expected circular dependency error")
	}
	if !conductor.IsCircularDependency(err) {
		t.Fatalf("expected circular dependency classification, got: %v", err)
	}
	if !strings.Contains(err.Error(), "a") && !strings.Contains(err.Error(), "b") {
		t.Fatalf("error should name an action in the cycle, got: %v", err)
	}
}

func TestAnalyzeDependenciesLevelsRespectEdges(t *testing.T) {
	graph, err := New().AnalyzeDependencies([]conductor.Action{
		action("channel", conductor.ActionCreateChannel, map[string]any{"channel_id": "c1", "name": "launch"}),
		action("invite", conductor.ActionInviteUser, map[string]any{"channel_id": "c1", "user_id": "u2"}),
		action("message", conductor.ActionSendMessage, map[string]any{"channel_id": "c1", "body": "welcome"}),
		action("notify", conductor.ActionSendNotification, nil, "message"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for edge := range graph.Edges {
		parts := strings.SplitN(edge, "->", 2)
		from, to := graph.Nodes[parts[0]], graph.Nodes[parts[1]]
		if to.Level <= from.Level {
			t.Errorf("edge %s violates level ordering: %d <= %d", edge, to.Level, from.Level)
		}
	}
}

func TestBuildLevelsParallelizable(t *testing.T) {
	graph, err := New().AnalyzeDependencies([]conductor.Action{
		action("n1", conductor.ActionSendNotification, map[string]any{"message": "a"}),
		action("n2", conductor.ActionSendNotification, map[string]any{"message": "b"}),
		action("n3", conductor.ActionSendNotification, map[string]any{"message": "c"}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(graph.Levels) != 1 {
		t.Fatalf("expected a single level, got %d", len(graph.Levels))
	}
	level := graph.Levels[0]
	if !level.Parallelizable {
		t.Fatal("independent notifications should be parallelizable")
	}
	want := conductor.ActionSendNotification.EstimatedDuration()
	if level.EstimatedDuration != want {
		t.Fatalf("parallel estimate should be the longest action (%s), got %s", want, level.EstimatedDuration)
	}
}

func TestBuildLevelsSequentialWhenInputRequired(t *testing.T) {
	graph, err := New().AnalyzeDependencies([]conductor.Action{
		action("m1", conductor.ActionSendMessage, map[string]any{"channel_id": "c1"}),
		action("m2", conductor.ActionSendMessage, map[string]any{"channel_id": "c2"}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if graph.Levels[0].Parallelizable {
		t.Fatal("input-consuming actions must not be marked parallelizable")
	}
}

func TestDefaultRulesMatchOnSharedEntity(t *testing.T) {
	create := action("create", conductor.ActionCreateTask, map[string]any{"task_id": "t1"})
	update := action("update", conductor.ActionUpdateTask, map[string]any{"task_id": "t1"})
	other := action("other", conductor.ActionUpdateTask, map[string]any{"task_id": "t2"})

	if !relatedActions(create, update) {
		t.Error("same target entity should relate the pair")
	}
	// Different entities still relate through produces/requires metadata.
	if !relatedActions(create, other) {
		t.Error("output-producing prerequisite should relate to input-requiring dependent")
	}

	notifyA := action("na", conductor.ActionSendNotification, nil)
	notifyB := action("nb", conductor.ActionSendNotification, nil)
	if relatedActions(notifyA, notifyB) {
		t.Error("unrelated notification pair should not match")
	}
}

func TestAnalyzeDependenciesIsDeterministic(t *testing.T) {
	actions := []conductor.Action{
		action("channel", conductor.ActionCreateChannel, map[string]any{"channel_id": "c1"}),
		action("invite", conductor.ActionInviteUser, map[string]any{"channel_id": "c1", "user_id": "u1"}),
		action("message", conductor.ActionSendMessage, map[string]any{"channel_id": "c1"}),
	}

	first, err := New().AnalyzeDependencies(actions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		next, err := New().AnalyzeDependencies(actions)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(next.Edges) != len(first.Edges) {
			t.Fatalf("edge count changed between runs: %d vs %d", len(next.Edges), len(first.Edges))
		}
		for j, level := range next.Levels {
			for k, a := range level.Actions {
				if a.ID != first.Levels[j].Actions[k].ID {
					t.Fatalf("level ordering changed between runs at level %d", j)
				}
			}
		}
	}
}
