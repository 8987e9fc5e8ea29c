package resolver

import (
	conductor "github.com/goliatone/go-conductor"
)

// Rule declares an implicit ordering between two action types. The rule
// fires only when Matches accepts the concrete action pair.
type Rule struct {
	Prerequisite conductor.ActionType
	Dependent    conductor.ActionType
	Matches      func(prerequisite, dependent conductor.Action) bool
}

// relatedActions is the default matcher: the pair must reference the same
// target entity, or the prerequisite must produce output the dependent
// declares it requires.
func relatedActions(prerequisite, dependent conductor.Action) bool {
	if pt, dt := prerequisite.TargetEntity(), dependent.TargetEntity(); pt != "" && pt == dt {
		return true
	}
	return prerequisite.Metadata.ProducesOutput && dependent.Metadata.RequiresInput
}

// DefaultRules returns the fixed implicit-dependency table. Kept as data so
// individual rules stay unit-testable apart from the graph algorithm.
func DefaultRules() []Rule {
	pairs := []struct {
		prerequisite conductor.ActionType
		dependent    conductor.ActionType
	}{
		{conductor.ActionCreateTask, conductor.ActionAssignTask},
		{conductor.ActionCreateTask, conductor.ActionUpdateTask},
		{conductor.ActionCreateTask, conductor.ActionSendNotification},
		{conductor.ActionCreateChannel, conductor.ActionSendMessage},
		{conductor.ActionCreateChannel, conductor.ActionInviteUser},
		{conductor.ActionInviteUser, conductor.ActionAssignTask},
		{conductor.ActionUploadFile, conductor.ActionSendMessage},
	}

	rules := make([]Rule, 0, len(pairs))
	for _, p := range pairs {
		rules = append(rules, Rule{
			Prerequisite: p.prerequisite,
			Dependent:    p.dependent,
			Matches:      relatedActions,
		})
	}
	return rules
}
