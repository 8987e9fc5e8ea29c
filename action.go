package conductor

import (
	"fmt"
	"time"
)

// ActionType enumerates the fixed set of supported action types.
type ActionType string

const (
	ActionCreateTask       ActionType = "create_task"
	ActionAssignTask       ActionType = "assign_task"
	ActionUpdateTask       ActionType = "update_task"
	ActionCreateChannel    ActionType = "create_channel"
	ActionSendMessage      ActionType = "send_message"
	ActionInviteUser       ActionType = "invite_user"
	ActionUploadFile       ActionType = "upload_file"
	ActionSendNotification ActionType = "send_notification"
	ActionScheduleMeeting  ActionType = "schedule_meeting"
	ActionGenerateReport   ActionType = "generate_report"
)

// ActionTypes returns every supported action type in declaration order.
func ActionTypes() []ActionType {
	return []ActionType{
		ActionCreateTask,
		ActionAssignTask,
		ActionUpdateTask,
		ActionCreateChannel,
		ActionSendMessage,
		ActionInviteUser,
		ActionUploadFile,
		ActionSendNotification,
		ActionScheduleMeeting,
		ActionGenerateReport,
	}
}

// Valid reports whether t is one of the supported action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionCreateTask, ActionAssignTask, ActionUpdateTask,
		ActionCreateChannel, ActionSendMessage, ActionInviteUser,
		ActionUploadFile, ActionSendNotification, ActionScheduleMeeting,
		ActionGenerateReport:
		return true
	}
	return false
}

func (t ActionType) String() string { return string(t) }

// ActionMetadata carries the scheduling hints derived from the type catalog.
type ActionMetadata struct {
	Priority          int           `json:"priority" yaml:"priority"`
	EstimatedDuration time.Duration `json:"estimated_duration" yaml:"estimated_duration"`
	RequiresInput     bool          `json:"requires_input" yaml:"requires_input"`
	ProducesOutput    bool          `json:"produces_output" yaml:"produces_output"`
}

// Action is one unit of work inside a command. Immutable once submitted
// to the resolver for a given run.
type Action struct {
	ID           string         `json:"id" yaml:"id"`
	Type         ActionType     `json:"type" yaml:"type"`
	Parameters   map[string]any `json:"parameters" yaml:"parameters"`
	Dependencies []string       `json:"dependencies" yaml:"dependencies"`
	Metadata     ActionMetadata `json:"metadata" yaml:"metadata"`
}

// TargetEntity returns the entity id this action operates on, if declared.
// Handlers and the implicit-dependency rules use the same parameter keys.
func (a Action) TargetEntity() string {
	for _, key := range []string{"task_id", "channel_id", "file_id", "user_id", "meeting_id", "report_id"} {
		if v, ok := a.Parameters[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// estimatedDurations is the fixed per-type duration table used when callers
// do not supply their own estimate.
var estimatedDurations = map[ActionType]time.Duration{
	ActionCreateTask:       500 * time.Millisecond,
	ActionAssignTask:       300 * time.Millisecond,
	ActionUpdateTask:       300 * time.Millisecond,
	ActionCreateChannel:    800 * time.Millisecond,
	ActionSendMessage:      200 * time.Millisecond,
	ActionInviteUser:       400 * time.Millisecond,
	ActionUploadFile:       2 * time.Second,
	ActionSendNotification: 100 * time.Millisecond,
	ActionScheduleMeeting:  600 * time.Millisecond,
	ActionGenerateReport:   3 * time.Second,
}

// requiresInputTypes consume output produced by a prerequisite action.
var requiresInputTypes = map[ActionType]bool{
	ActionAssignTask:  true,
	ActionSendMessage: true,
	ActionUpdateTask:  true,
}

// producesOutputTypes create entities later actions may reference.
var producesOutputTypes = map[ActionType]bool{
	ActionCreateTask:    true,
	ActionCreateChannel: true,
	ActionUploadFile:    true,
	ActionInviteUser:    true,
}

// batchableTypes may be grouped by the optimizer when repeated in one stage.
var batchableTypes = map[ActionType]bool{
	ActionSendNotification: true,
	ActionSendMessage:      true,
	ActionInviteUser:       true,
}

// externalTypes reach out past the persistence layer; their presence bumps
// the plan's risk assessment.
var externalTypes = map[ActionType]bool{
	ActionUploadFile:      true,
	ActionGenerateReport:  true,
	ActionScheduleMeeting: true,
}

// EstimatedDuration returns the catalog estimate for the type.
func (t ActionType) EstimatedDuration() time.Duration {
	if d, ok := estimatedDurations[t]; ok {
		return d
	}
	return 500 * time.Millisecond
}

// RequiresInput reports whether the type consumes a prerequisite's output.
func (t ActionType) RequiresInput() bool { return requiresInputTypes[t] }

// ProducesOutput reports whether the type produces output for dependents.
func (t ActionType) ProducesOutput() bool { return producesOutputTypes[t] }

// Batchable reports whether same-type actions of this type may be batched.
func (t ActionType) Batchable() bool { return batchableTypes[t] }

// External reports whether the type touches an external system or API.
func (t ActionType) External() bool { return externalTypes[t] }

// ParsedAction is the caller-facing action shape produced by the upstream
// command parser. NewAction converts it to the internal Action, deriving
// metadata from the type catalog.
type ParsedAction struct {
	ID           string         `json:"id" yaml:"id"`
	Type         string         `json:"type" yaml:"type"`
	Parameters   map[string]any `json:"parameters" yaml:"parameters"`
	Dependencies []string       `json:"dependencies" yaml:"dependencies"`
	Priority     int            `json:"priority" yaml:"priority"`
}

// NewAction converts a parsed action into the internal shape. The id falls
// back to "action_<index>" when the parser did not assign one.
func NewAction(index int, parsed ParsedAction) Action {
	id := parsed.ID
	if id == "" {
		id = fmt.Sprintf("action_%d", index)
	}
	at := ActionType(parsed.Type)
	params := parsed.Parameters
	if params == nil {
		params = map[string]any{}
	}
	return Action{
		ID:           id,
		Type:         at,
		Parameters:   params,
		Dependencies: append([]string(nil), parsed.Dependencies...),
		Metadata: ActionMetadata{
			Priority:          parsed.Priority,
			EstimatedDuration: at.EstimatedDuration(),
			RequiresInput:     at.RequiresInput(),
			ProducesOutput:    at.ProducesOutput(),
		},
	}
}
