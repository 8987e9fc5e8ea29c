package conductor

import (
	"context"
	"fmt"
)

// Role is a coarse organization role mapped to a fixed capability set.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// Capability names one permission the executor's gate can require.
type Capability string

const (
	CanCreateTasks       Capability = "canCreateTasks"
	CanAssignTasks       Capability = "canAssignTasks"
	CanUpdateTasks       Capability = "canUpdateTasks"
	CanCreateChannels    Capability = "canCreateChannels"
	CanSendMessages      Capability = "canSendMessages"
	CanInviteUsers       Capability = "canInviteUsers"
	CanUploadFiles       Capability = "canUploadFiles"
	CanSendNotifications Capability = "canSendNotifications"
	CanScheduleMeetings  Capability = "canScheduleMeetings"
	CanGenerateReports   Capability = "canGenerateReports"
)

// CapabilitySet is the resolved permission set for one user.
type CapabilitySet map[Capability]bool

// Has reports whether the capability is granted.
func (s CapabilitySet) Has(c Capability) bool { return s[c] }

// requiredCapabilities maps each action type to the capability its handler
// demands before touching storage.
var requiredCapabilities = map[ActionType]Capability{
	ActionCreateTask:       CanCreateTasks,
	ActionAssignTask:       CanAssignTasks,
	ActionUpdateTask:       CanUpdateTasks,
	ActionCreateChannel:    CanCreateChannels,
	ActionSendMessage:      CanSendMessages,
	ActionInviteUser:       CanInviteUsers,
	ActionUploadFile:       CanUploadFiles,
	ActionSendNotification: CanSendNotifications,
	ActionScheduleMeeting:  CanScheduleMeetings,
	ActionGenerateReport:   CanGenerateReports,
}

// RequiredCapability returns the capability gate for an action type.
func RequiredCapability(t ActionType) (Capability, error) {
	c, ok := requiredCapabilities[t]
	if !ok {
		return "", CloneError(ErrUnsupportedActionType,
			fmt.Sprintf("no capability mapping for action type %q", t), nil, nil)
	}
	return c, nil
}

// RoleSource resolves a user's role; the concrete implementation lives with
// the caller (auth middleware, directory service, test stub).
type RoleSource interface {
	RoleFor(ctx context.Context, userID string) (Role, error)
}

// RoleSourceFunc adapts a function to the RoleSource interface.
type RoleSourceFunc func(ctx context.Context, userID string) (Role, error)

func (f RoleSourceFunc) RoleFor(ctx context.Context, userID string) (Role, error) {
	return f(ctx, userID)
}

// StaticRoleSource maps user ids to roles from a fixed table; users not in
// the table resolve to member.
type StaticRoleSource map[string]Role

func (s StaticRoleSource) RoleFor(_ context.Context, userID string) (Role, error) {
	if r, ok := s[userID]; ok {
		return r, nil
	}
	return RoleMember, nil
}

// CapabilitiesForRole expands a role into its fixed capability set.
// Admin holds everything; manager everything except channel creation and
// report generation; member only the low-impact messaging capabilities.
func CapabilitiesForRole(role Role) CapabilitySet {
	switch role {
	case RoleAdmin:
		set := make(CapabilitySet, len(requiredCapabilities))
		for _, c := range requiredCapabilities {
			set[c] = true
		}
		return set
	case RoleManager:
		return CapabilitySet{
			CanCreateTasks:       true,
			CanAssignTasks:       true,
			CanUpdateTasks:       true,
			CanSendMessages:      true,
			CanInviteUsers:       true,
			CanUploadFiles:       true,
			CanSendNotifications: true,
			CanScheduleMeetings:  true,
		}
	default:
		return CapabilitySet{
			CanSendMessages:      true,
			CanSendNotifications: true,
			CanUploadFiles:       true,
		}
	}
}
