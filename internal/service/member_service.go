package service

import (
	"context"
	"time"

	"parley/internal/cache"
	"parley/internal/models"
	"parley/internal/observability"
	"parley/internal/policy"
	"parley/internal/repository"

	"github.com/google/uuid"
)

// MemberService provides membership lifecycle business logic.
type MemberService struct {
	convRepo     repository.ConversationRepository
	memberRepo   repository.MembershipRepository
	lookupInvite func(ctx context.Context, token string) (*cache.Invite, error)
}

// NewMemberService returns a new MemberService. lookupInvite resolves an
// invite token to its payload; pass cache.LookupInvite in production.
func NewMemberService(
	convRepo repository.ConversationRepository,
	memberRepo repository.MembershipRepository,
	lookupInvite func(ctx context.Context, token string) (*cache.Invite, error),
) *MemberService {
	return &MemberService{
		convRepo:     convRepo,
		memberRepo:   memberRepo,
		lookupInvite: lookupInvite,
	}
}

// UpdateSelfInput carries the per-member preference fields a user may change
// on their own membership.
type UpdateSelfInput struct {
	DisplayName       *string
	NotificationLevel *models.NotificationLevel
	Color             *string
	IsMuted           *bool
}

// Join adds the caller to the conversation subject to its join policy. A
// non-empty inviteToken is checked against the invite store; tokens are not
// consumed, they expire or are revoked.
func (s *MemberService) Join(ctx context.Context, conversationID uuid.UUID, userID uint, inviteToken string) (*models.Membership, error) {
	conv, err := s.convRepo.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.IsArchived {
		return nil, models.NewConflictError("Conversation is archived")
	}

	existing, err := s.memberRepo.Active(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewAlreadyActiveMemberError()
	}

	env := policy.Env{}
	if inviteToken != "" && s.lookupInvite != nil {
		invite, err := s.lookupInvite(ctx, inviteToken)
		if err != nil {
			return nil, err
		}
		env.HasInviteToken = invite != nil && invite.ConversationID == conversationID
		env.InvitedByAdmin = env.HasInviteToken && invite.InvitedByAdmin
	}

	if err := authorize(ctx, policy.ActionJoin, conv, nil, userID, env); err != nil {
		return nil, err
	}

	m := models.NewActiveMembership(conversationID, userID, models.RoleMember)
	if err := s.memberRepo.Insert(ctx, m); err != nil {
		if models.IsUniqueViolation(err) {
			// Lost a race against a concurrent join by the same user.
			return nil, models.NewAlreadyActiveMemberError()
		}
		return nil, err
	}
	observability.MembershipMutations.WithLabelValues("join").Inc()
	cache.InvalidateMembership(ctx, conversationID, userID)
	s.touch(ctx, conversationID)
	return m, nil
}

// AddMember lets an admin or owner add another user directly, bypassing the
// join policy. The granted role must not outrank the actor's own.
func (s *MemberService) AddMember(ctx context.Context, conversationID uuid.UUID, actorID, targetID uint, role models.Role) (*models.Membership, error) {
	if !role.Valid() {
		return nil, models.NewValidationError("Invalid role")
	}
	conv, err := s.convRepo.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.IsArchived {
		return nil, models.NewConflictError("Conversation is archived")
	}

	actor, err := s.memberRepo.Active(ctx, conversationID, actorID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, policy.ActionManageMembers, conv, actor, actorID, policy.Env{}); err != nil {
		return nil, err
	}
	if role.Outranks(actor.BaseRole) {
		return nil, models.NewInsufficientRoleError("Cannot grant a role above your own")
	}

	m := models.NewActiveMembership(conversationID, targetID, role)
	if err := s.memberRepo.Insert(ctx, m); err != nil {
		if models.IsUniqueViolation(err) {
			return nil, models.NewAlreadyActiveMemberError()
		}
		return nil, err
	}
	observability.MembershipMutations.WithLabelValues("join").Inc()
	cache.InvalidateMembership(ctx, conversationID, targetID)
	s.touch(ctx, conversationID)
	return m, nil
}

// Leave closes the caller's active membership. The last remaining owner of a
// non-direct conversation cannot leave; direct conversations are exempt.
func (s *MemberService) Leave(ctx context.Context, conversationID uuid.UUID, userID uint) error {
	conv, err := s.convRepo.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	m, err := s.memberRepo.Active(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if m == nil {
		return models.NewNotAMemberError()
	}

	if err := s.closeMembership(ctx, conv, m); err != nil {
		return err
	}
	observability.MembershipMutations.WithLabelValues("leave").Inc()
	cache.InvalidateMembership(ctx, conversationID, userID)
	s.touch(ctx, conversationID)
	return nil
}

// RemoveMember closes another user's active membership. The actor needs the
// manage-members permission and must strictly outrank the target.
func (s *MemberService) RemoveMember(ctx context.Context, conversationID uuid.UUID, actorID, targetID uint) error {
	if actorID == targetID {
		return s.Leave(ctx, conversationID, actorID)
	}
	conv, err := s.convRepo.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	actor, err := s.memberRepo.Active(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	if err := authorize(ctx, policy.ActionManageMembers, conv, actor, actorID, policy.Env{}); err != nil {
		return err
	}

	target, err := s.memberRepo.Active(ctx, conversationID, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return models.NewNotAMemberError()
	}
	if !actor.BaseRole.Outranks(target.BaseRole) {
		return models.NewInsufficientRoleError("Cannot remove a member of equal or higher role")
	}

	if err := s.closeMembership(ctx, conv, target); err != nil {
		return err
	}
	observability.MembershipMutations.WithLabelValues("remove").Inc()
	cache.InvalidateMembership(ctx, conversationID, targetID)
	s.touch(ctx, conversationID)
	return nil
}

// ChangeRole sets a member's base role. Promotions are capped at the actor's
// own role, demoting another member requires outranking them, and the last
// owner of a non-direct conversation cannot be demoted.
func (s *MemberService) ChangeRole(ctx context.Context, conversationID uuid.UUID, actorID, targetID uint, newRole models.Role) (*models.Membership, error) {
	if !newRole.Valid() {
		return nil, models.NewValidationError("Invalid role")
	}
	conv, err := s.convRepo.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	actor, err := s.memberRepo.Active(ctx, conversationID, actorID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, policy.ActionManageMembers, conv, actor, actorID, policy.Env{}); err != nil {
		return nil, err
	}
	if newRole.Outranks(actor.BaseRole) {
		return nil, models.NewInsufficientRoleError("Cannot grant a role above your own")
	}

	target := actor
	if targetID != actorID {
		target, err = s.memberRepo.Active(ctx, conversationID, targetID)
		if err != nil {
			return nil, err
		}
		if target == nil {
			return nil, models.NewNotAMemberError()
		}
		if !actor.BaseRole.Outranks(target.BaseRole) {
			return nil, models.NewInsufficientRoleError("Cannot change the role of a member of equal or higher role")
		}
	}
	if target.BaseRole == newRole {
		return target, nil
	}

	if target.BaseRole == models.RoleOwner && conv.Kind != models.KindDirect {
		rows, err := s.memberRepo.DemoteOwnerGuarded(ctx, target, newRole)
		if err != nil {
			return nil, err
		}
		if rows == 0 {
			return nil, models.NewLastOwnerViolationError()
		}
	} else if err := s.memberRepo.ChangeRole(ctx, target.ID, newRole); err != nil {
		return nil, err
	}

	observability.MembershipMutations.WithLabelValues("role_change").Inc()
	cache.InvalidateMembership(ctx, conversationID, target.UserID)
	target.BaseRole = newRole
	return target, nil
}

// UpdateSelf changes the caller's own per-membership preferences.
func (s *MemberService) UpdateSelf(ctx context.Context, conversationID uuid.UUID, userID uint, in UpdateSelfInput) (*models.Membership, error) {
	m, err := s.memberRepo.Active(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, models.NewNotAMemberError()
	}

	updates := map[string]interface{}{}
	if in.DisplayName != nil {
		updates["display_name"] = *in.DisplayName
	}
	if in.NotificationLevel != nil {
		switch *in.NotificationLevel {
		case models.NotifyAll, models.NotifyMentions, models.NotifyNone:
		default:
			return nil, models.NewValidationError("Invalid notification_level")
		}
		updates["notification_level"] = *in.NotificationLevel
	}
	if in.Color != nil {
		updates["color"] = *in.Color
	}
	if in.IsMuted != nil {
		updates["is_muted"] = *in.IsMuted
	}
	if len(updates) == 0 {
		return m, nil
	}
	if err := s.memberRepo.UpdateSelf(ctx, m.ID, updates); err != nil {
		return nil, err
	}
	return s.memberRepo.Active(ctx, conversationID, userID)
}

// ListMembers returns the conversation's active members, callable by active
// members only.
func (s *MemberService) ListMembers(ctx context.Context, conversationID uuid.UUID, userID uint) ([]*models.Membership, error) {
	m, err := s.memberRepo.Active(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil || m.IsBlocked {
		return nil, models.NewNotAMemberError()
	}
	return s.memberRepo.ActiveMembers(ctx, conversationID)
}

// History returns a user's full join/leave interval history in the
// conversation. Callable by the user themselves or a member with the
// manage-members permission.
func (s *MemberService) History(ctx context.Context, conversationID uuid.UUID, actorID, targetUserID uint) ([]*models.Membership, error) {
	if actorID != targetUserID {
		conv, err := s.convRepo.Get(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		actor, err := s.memberRepo.Active(ctx, conversationID, actorID)
		if err != nil {
			return nil, err
		}
		if err := authorize(ctx, policy.ActionManageMembers, conv, actor, actorID, policy.Env{}); err != nil {
			return nil, err
		}
	}
	return s.memberRepo.History(ctx, conversationID, targetUserID)
}

// IsActiveMember answers the membership check other platform services make
// on their hot paths, through a short-TTL cache.
func (s *MemberService) IsActiveMember(ctx context.Context, conversationID uuid.UUID, userID uint) (bool, error) {
	if isMember, hit := cache.GetMembership(ctx, conversationID, userID); hit {
		return isMember, nil
	}
	isMember, err := s.memberRepo.IsActiveMember(ctx, conversationID, userID)
	if err != nil {
		return false, err
	}
	cache.SetMembership(ctx, conversationID, userID, isMember)
	return isMember, nil
}

// touch bumps the conversation's updated_at after a structural membership
// change. Best effort: the membership write already committed.
func (s *MemberService) touch(ctx context.Context, conversationID uuid.UUID) {
	if err := s.convRepo.Touch(ctx, conversationID); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "conversation touch failed",
			"conversation_id", conversationID.String(), "error", err)
	}
}

// closeMembership closes one membership row, applying the last-owner guard
// for owners of non-direct conversations.
func (s *MemberService) closeMembership(ctx context.Context, conv *models.Conversation, m *models.Membership) error {
	now := time.Now().UTC()
	if m.BaseRole == models.RoleOwner && conv.Kind != models.KindDirect {
		rows, err := s.memberRepo.CloseOwnerGuarded(ctx, m, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return models.NewLastOwnerViolationError()
		}
		return nil
	}
	rows, err := s.memberRepo.Close(ctx, m.ID, now)
	if err != nil {
		return err
	}
	if rows == 0 {
		// Already closed by a concurrent leave/remove.
		return models.NewNotAMemberError()
	}
	return nil
}
