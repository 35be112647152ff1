// Package policy implements the pure authorization decision procedure for
// conversation actions. It layers per-conversation policy settings on top of
// the four-level role ladder and performs no I/O, so every (action, state)
// pair can be tested exhaustively.
package policy

import (
	"parley/internal/models"
)

// Action identifies a class of conversation operations.
type Action string

const (
	ActionSendMessage    Action = "send_message"
	ActionEditInfo       Action = "edit_info"
	ActionCreateSubroom  Action = "create_subroom"
	ActionJoin           Action = "join"
	ActionManageMembers  Action = "manage_members"
	ActionManageSettings Action = "manage_settings"
	ActionArchive        Action = "archive"
	ActionLock           Action = "lock"
)

// KnownAction reports whether the action is part of the decision table.
func KnownAction(a Action) bool {
	switch a {
	case ActionSendMessage, ActionEditInfo, ActionCreateSubroom, ActionJoin,
		ActionManageMembers, ActionManageSettings, ActionArchive, ActionLock:
		return true
	}
	return false
}

// Stable machine-readable denial reasons.
const (
	ReasonNotAMember       = "not_a_member"
	ReasonBlocked          = "blocked"
	ReasonInsufficientRole = "insufficient_role"
	ReasonSubroomDisabled  = "subroom_disabled"
	ReasonInviteRequired   = "invite_required"
	ReasonRoomLocked       = "room_locked"
	ReasonUnknownAction    = "unknown_action"
)

// Env carries request facts the engine cannot derive from stored state: the
// external collaborators verify invite tokens and admin invitations before
// the engine runs.
type Env struct {
	// HasInviteToken is true when the request carried a link token the
	// invite store validated for this conversation.
	HasInviteToken bool
	// InvitedByAdmin is true when an existing admin/owner is performing the
	// join on the target user's behalf.
	InvitedByAdmin bool
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow is the positive decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny is a negative decision with a stable reason code.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Authorize decides whether the acting user may perform action on the
// conversation. membership is the actor's active membership, or nil when the
// actor has none (expected for join). First matching rule wins; the function
// is total and deterministic.
func Authorize(action Action, conv *models.Conversation, settings *models.ConversationSettings, membership *models.Membership, env Env) Decision {
	if !KnownAction(action) {
		return Deny(ReasonUnknownAction)
	}

	active := membership != nil && membership.IsActive()

	if !active {
		if action == ActionJoin {
			return decideJoin(conv, settings, env)
		}
		return Deny(ReasonNotAMember)
	}

	if membership.IsBlocked {
		return Deny(ReasonBlocked)
	}

	// A join request from someone already active is not a policy violation;
	// the membership manager reports the duplicate.
	if action == ActionJoin {
		return Allow()
	}

	if action == ActionCreateSubroom && settings.SubroomPolicy == models.SubroomDisabled {
		return Deny(ReasonSubroomDisabled)
	}

	threshold := requiredRole(action, settings)
	if !membership.BaseRole.AtLeast(threshold) {
		return Deny(ReasonInsufficientRole)
	}

	// A locked room raises the send threshold to admin regardless of
	// send_policy; report the lock, not the role, when that is what denied.
	if action == ActionSendMessage && conv.IsLocked && !membership.BaseRole.AtLeast(models.RoleAdmin) {
		return Deny(ReasonRoomLocked)
	}

	return Allow()
}

// requiredRole maps an action to its role threshold given the settings.
func requiredRole(action Action, settings *models.ConversationSettings) models.Role {
	switch action {
	case ActionSendMessage:
		if settings.SendPolicy == models.SendAdminsOnly {
			return models.RoleAdmin
		}
		return models.RoleMember
	case ActionEditInfo:
		switch settings.InfoEditPolicy {
		case models.InfoEditOwnerOnly:
			return models.RoleOwner
		case models.InfoEditAdminsOnly:
			return models.RoleAdmin
		default:
			return models.RoleMember
		}
	case ActionCreateSubroom:
		if settings.SubroomPolicy == models.SubroomAdminsOnly {
			return models.RoleAdmin
		}
		return models.RoleMember
	case ActionManageMembers, ActionManageSettings:
		return models.RoleAdmin
	case ActionArchive, ActionLock:
		return models.RoleOwner
	}
	// Unreachable for known actions; owner threshold keeps the function
	// closed under future additions.
	return models.RoleOwner
}

// decideJoin evaluates a join attempt from a user with no active membership.
func decideJoin(conv *models.Conversation, settings *models.ConversationSettings, env Env) Decision {
	// A locked room refuses joins under any join policy, valid invite tokens
	// included. An admin/owner adding the user directly goes through
	// manage_members instead, which is the bypass.
	if conv.IsLocked {
		return Deny(ReasonRoomLocked)
	}

	switch settings.JoinPolicy {
	case models.JoinOpen:
		return Allow()
	case models.JoinLinkJoin:
		if env.HasInviteToken || env.InvitedByAdmin {
			return Allow()
		}
		return Deny(ReasonInviteRequired)
	default: // invite_only
		if env.InvitedByAdmin {
			return Allow()
		}
		return Deny(ReasonInviteRequired)
	}
}
