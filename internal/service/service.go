// Package service provides the application business logic for conversations,
// memberships, threads, and activity sync.
package service

import (
	"context"

	"parley/internal/models"
	"parley/internal/observability"
	"parley/internal/policy"

	"github.com/google/uuid"
)

// recordDecision emits the log line and metric for one policy decision.
func recordDecision(ctx context.Context, action policy.Action, conversationID uuid.UUID, userID uint, d policy.Decision) {
	outcome := "allow"
	if !d.Allowed {
		outcome = d.Reason
	}
	observability.AuthzDecisions.WithLabelValues(string(action), outcome).Inc()
	observability.NewAuthzLogger().LogDecision(ctx, string(action), conversationID.String(), userID, d.Allowed, d.Reason)
}

// denialError maps a policy denial reason to the application error surfaced
// to the caller.
func denialError(reason string) error {
	switch reason {
	case policy.ReasonNotAMember:
		return models.NewNotAMemberError()
	case policy.ReasonRoomLocked:
		return models.NewRoomLockedError()
	case policy.ReasonInsufficientRole:
		return models.NewInsufficientRoleError("Your role does not permit this action")
	case policy.ReasonSubroomDisabled:
		return models.NewSubroomDisabledError()
	case policy.ReasonInviteRequired:
		return models.NewInviteRequiredError()
	case policy.ReasonUnknownAction:
		return models.NewValidationError("Unknown action")
	default:
		return models.NewForbiddenError("Action not permitted", reason)
	}
}

// authorize evaluates, records, and converts a denial into an error.
func authorize(ctx context.Context, action policy.Action, conv *models.Conversation, membership *models.Membership, userID uint, env policy.Env) error {
	d := policy.Authorize(action, conv, conv.Settings, membership, env)
	recordDecision(ctx, action, conv.ID, userID, d)
	if !d.Allowed {
		return denialError(d.Reason)
	}
	return nil
}
