package conductor

import (
	apperrors "github.com/goliatone/go-errors"
)

// ParsedCommand is the inbound contract from the upstream natural-language
// parser: a flat action list plus the intent and transcript it came from.
type ParsedCommand struct {
	ID                 string         `json:"id" yaml:"id"`
	Actions            []ParsedAction `json:"actions" yaml:"actions"`
	Intent             string         `json:"intent" yaml:"intent"`
	OriginalTranscript string         `json:"original_transcript" yaml:"original_transcript"`
}

// Type implements the message contract for dispatch and logging.
func (c ParsedCommand) Type() string { return "conductor::parsed_command" }

// Validate rejects empty or malformed action lists before any planning work.
func (c ParsedCommand) Validate() error {
	if len(c.Actions) == 0 {
		return CloneError(ErrInvalidInput, "command has no actions", nil, map[string]any{
			"command_id": c.ID,
		})
	}
	for i, a := range c.Actions {
		if !ActionType(a.Type).Valid() {
			return CloneError(ErrUnsupportedActionType, "unknown action type", nil, map[string]any{
				"command_id":   c.ID,
				"action_index": i,
				"action_type":  a.Type,
			})
		}
	}
	return nil
}

// InternalActions converts the parsed actions into the internal shape.
func (c ParsedCommand) InternalActions() []Action {
	actions := make([]Action, 0, len(c.Actions))
	for i, parsed := range c.Actions {
		actions = append(actions, NewAction(i, parsed))
	}
	return actions
}

// UserContext identifies the caller for one run.
type UserContext struct {
	UserID         string `json:"user_id" yaml:"user_id"`
	OrganizationID string `json:"organization_id" yaml:"organization_id"`
	SessionID      string `json:"session_id" yaml:"session_id"`
}

// Validate ensures the minimum identity fields are present.
func (u UserContext) Validate() error {
	if u.UserID == "" {
		return apperrors.New("user id is required", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidInput)
	}
	if u.OrganizationID == "" {
		return apperrors.New("organization id is required", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidInput)
	}
	return nil
}
