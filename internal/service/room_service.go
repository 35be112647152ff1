package service

import (
	"context"

	"parley/internal/models"
	"parley/internal/policy"
	"parley/internal/repository"

	"github.com/google/uuid"
)

// RoomService provides conversation lifecycle and policy-check logic.
type RoomService struct {
	convRepo   repository.ConversationRepository
	memberRepo repository.MembershipRepository
}

// NewRoomService returns a new RoomService.
func NewRoomService(convRepo repository.ConversationRepository, memberRepo repository.MembershipRepository) *RoomService {
	return &RoomService{convRepo: convRepo, memberRepo: memberRepo}
}

// CreateRoomInput is the input for creating a group or channel conversation.
type CreateRoomInput struct {
	CreatorID   uint
	Kind        models.ConversationKind
	Title       string
	Description string
	AvatarURL   string
	MemberIDs   []uint
}

// UpdateInfoInput carries the optional display fields an edit may change.
type UpdateInfoInput struct {
	Title       *string
	Description *string
	AvatarURL   *string
}

// UpdateSettingsInput carries the optional settings fields an update may
// change. Nil fields are left untouched.
type UpdateSettingsInput struct {
	SendPolicy           *models.SendPolicy
	JoinPolicy           *models.JoinPolicy
	InfoEditPolicy       *models.InfoEditPolicy
	SubroomPolicy        *models.SubroomPolicy
	MaxSubroomDepth      *uint
	MessageRetentionDays *uint
	AllowReactions       *bool
	AllowStickers        *bool
	AllowAttachments     *bool
}

// CreateRoom creates a group or channel conversation with the creator as
// owner and the given users as members. Direct conversations go through the
// resolver and threads through the thread service instead.
func (s *RoomService) CreateRoom(ctx context.Context, in CreateRoomInput) (*models.Conversation, error) {
	if in.Kind != models.KindGroup && in.Kind != models.KindChannel && in.Kind != models.KindSystem {
		return nil, models.NewValidationError("Kind must be group, channel, or system")
	}
	if in.Title == "" {
		return nil, models.NewValidationError("Title is required")
	}

	conv := &models.Conversation{
		Kind:        in.Kind,
		Title:       in.Title,
		Description: in.Description,
		AvatarURL:   in.AvatarURL,
		CreatedBy:   in.CreatorID,
	}
	members := []*models.Membership{
		models.NewActiveMembership(conv.ID, in.CreatorID, models.RoleOwner),
	}
	for _, id := range in.MemberIDs {
		if id == in.CreatorID {
			continue
		}
		members = append(members, models.NewActiveMembership(conv.ID, id, models.RoleMember))
	}

	if err := s.convRepo.CreateWithMembers(ctx, conv, models.DefaultSettings(conv.ID), members); err != nil {
		return nil, err
	}
	return s.convRepo.Get(ctx, conv.ID)
}

// GetRoomForUser returns the conversation with settings and active members,
// requiring the caller to be an active member.
func (s *RoomService) GetRoomForUser(ctx context.Context, conversationID uuid.UUID, userID uint) (*models.Conversation, error) {
	conv, err := s.convRepo.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	m, err := s.memberRepo.Active(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil || m.IsBlocked {
		return nil, models.NewNotAMemberError()
	}
	return conv, nil
}

// ListRoomsForUser returns the caller's active conversations ordered by most
// recent activity.
func (s *RoomService) ListRoomsForUser(ctx context.Context, userID uint) ([]*models.Conversation, error) {
	return s.convRepo.ListForUser(ctx, userID)
}

// UpdateInfo edits the conversation's display fields subject to the
// info-edit policy.
func (s *RoomService) UpdateInfo(ctx context.Context, conversationID uuid.UUID, userID uint, in UpdateInfoInput) (*models.Conversation, error) {
	conv, m, err := s.loadState(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, policy.ActionEditInfo, conv, m, userID, policy.Env{}); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Title != nil {
		if *in.Title == "" {
			return nil, models.NewValidationError("Title cannot be empty")
		}
		updates["title"] = *in.Title
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.AvatarURL != nil {
		updates["avatar_url"] = *in.AvatarURL
	}
	if len(updates) == 0 {
		return conv, nil
	}
	if err := s.convRepo.UpdateInfo(ctx, conversationID, updates); err != nil {
		return nil, err
	}
	return s.convRepo.Get(ctx, conversationID)
}

// UpdateSettings changes the conversation's policy settings, admin and above
// only.
func (s *RoomService) UpdateSettings(ctx context.Context, conversationID uuid.UUID, userID uint, in UpdateSettingsInput) (*models.Conversation, error) {
	conv, m, err := s.loadState(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, policy.ActionManageSettings, conv, m, userID, policy.Env{}); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.SendPolicy != nil {
		if *in.SendPolicy != models.SendAllMembers && *in.SendPolicy != models.SendAdminsOnly {
			return nil, models.NewValidationError("Invalid send_policy")
		}
		updates["send_policy"] = *in.SendPolicy
	}
	if in.JoinPolicy != nil {
		switch *in.JoinPolicy {
		case models.JoinInviteOnly, models.JoinLinkJoin, models.JoinOpen:
		default:
			return nil, models.NewValidationError("Invalid join_policy")
		}
		updates["join_policy"] = *in.JoinPolicy
	}
	if in.InfoEditPolicy != nil {
		switch *in.InfoEditPolicy {
		case models.InfoEditAllMembers, models.InfoEditAdminsOnly, models.InfoEditOwnerOnly:
		default:
			return nil, models.NewValidationError("Invalid info_edit_policy")
		}
		updates["info_edit_policy"] = *in.InfoEditPolicy
	}
	if in.SubroomPolicy != nil {
		switch *in.SubroomPolicy {
		case models.SubroomAllMembers, models.SubroomAdminsOnly, models.SubroomDisabled:
		default:
			return nil, models.NewValidationError("Invalid subroom_policy")
		}
		updates["subroom_policy"] = *in.SubroomPolicy
	}
	if in.MaxSubroomDepth != nil {
		// Zero is valid: it forbids any thread under this root.
		updates["max_subroom_depth"] = *in.MaxSubroomDepth
	}
	if in.MessageRetentionDays != nil {
		updates["message_retention_days"] = *in.MessageRetentionDays
	}
	if in.AllowReactions != nil {
		updates["allow_reactions"] = *in.AllowReactions
	}
	if in.AllowStickers != nil {
		updates["allow_stickers"] = *in.AllowStickers
	}
	if in.AllowAttachments != nil {
		updates["allow_attachments"] = *in.AllowAttachments
	}
	if len(updates) == 0 {
		return conv, nil
	}
	if err := s.convRepo.UpdateSettings(ctx, conversationID, updates); err != nil {
		return nil, err
	}
	return s.convRepo.Get(ctx, conversationID)
}

// SetArchived archives or restores the conversation, owner only. Archiving a
// direct conversation releases its pair key so a fresh direct room can be
// resolved afterwards.
func (s *RoomService) SetArchived(ctx context.Context, conversationID uuid.UUID, userID uint, archived bool) error {
	conv, m, err := s.loadState(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if err := authorize(ctx, policy.ActionArchive, conv, m, userID, policy.Env{}); err != nil {
		return err
	}
	return s.convRepo.SetArchived(ctx, conversationID, archived)
}

// SetLocked locks or unlocks the conversation, owner only. A locked room
// raises the effective send threshold to admin.
func (s *RoomService) SetLocked(ctx context.Context, conversationID uuid.UUID, userID uint, locked bool) error {
	conv, m, err := s.loadState(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if err := authorize(ctx, policy.ActionLock, conv, m, userID, policy.Env{}); err != nil {
		return err
	}
	return s.convRepo.SetLocked(ctx, conversationID, locked)
}

// CheckPermission evaluates a policy action for a user against current state
// and returns the decision without converting denials into errors. This is
// the entry point other platform services call per message send.
func (s *RoomService) CheckPermission(ctx context.Context, conversationID uuid.UUID, userID uint, action policy.Action) (policy.Decision, error) {
	conv, err := s.convRepo.Get(ctx, conversationID)
	if err != nil {
		return policy.Decision{}, err
	}
	m, err := s.memberRepo.Active(ctx, conversationID, userID)
	if err != nil {
		return policy.Decision{}, err
	}
	d := policy.Authorize(action, conv, conv.Settings, m, policy.Env{})
	recordDecision(ctx, action, conversationID, userID, d)
	return d, nil
}

func (s *RoomService) loadState(ctx context.Context, conversationID uuid.UUID, userID uint) (*models.Conversation, *models.Membership, error) {
	conv, err := s.convRepo.Get(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.memberRepo.Active(ctx, conversationID, userID)
	if err != nil {
		return nil, nil, err
	}
	return conv, m, nil
}
