package service

import (
	"context"
	"fmt"

	"parley/internal/models"
	"parley/internal/observability"
	"parley/internal/policy"
	"parley/internal/repository"

	"github.com/google/uuid"
)

// ThreadService provides thread (sub-room) hierarchy business logic.
type ThreadService struct {
	convRepo   repository.ConversationRepository
	memberRepo repository.MembershipRepository
	threadRepo repository.ThreadRepository
}

// NewThreadService returns a new ThreadService.
func NewThreadService(
	convRepo repository.ConversationRepository,
	memberRepo repository.MembershipRepository,
	threadRepo repository.ThreadRepository,
) *ThreadService {
	return &ThreadService{convRepo: convRepo, memberRepo: memberRepo, threadRepo: threadRepo}
}

// CreateThreadInput is the input for creating a thread under a parent
// message.
type CreateThreadInput struct {
	ParentConversationID uuid.UUID
	ParentMessageKey     string
	CreatorID            uint
	Title                string
}

// CreateThread creates the thread conversation anchored to one parent
// message, or returns the existing one: a parent message has at most one
// thread, so concurrent creations converge the same way the direct resolver
// does. created reports whether this call performed the creation.
func (s *ThreadService) CreateThread(ctx context.Context, in CreateThreadInput) (link *models.ThreadLink, created bool, err error) {
	if in.ParentMessageKey == "" {
		return nil, false, models.NewValidationError("parent_message_key is required")
	}

	parent, err := s.convRepo.Get(ctx, in.ParentConversationID)
	if err != nil {
		return nil, false, err
	}
	if parent.IsArchived {
		return nil, false, models.NewConflictError("Conversation is archived")
	}

	m, err := s.memberRepo.Active(ctx, in.ParentConversationID, in.CreatorID)
	if err != nil {
		return nil, false, err
	}
	if err := authorize(ctx, policy.ActionCreateSubroom, parent, m, in.CreatorID, policy.Env{}); err != nil {
		return nil, false, err
	}

	existing, err := s.threadRepo.FindByParentMessage(ctx, in.ParentConversationID, in.ParentMessageKey)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	// Depth and root come from the parent's own link; a thread directly
	// under a top-level room sits at depth 1.
	rootID := parent.ID
	rootSettings := parent.Settings
	depth := uint(1)
	var parentThreadID *uint64
	parentLink, err := s.threadRepo.FindByChild(ctx, in.ParentConversationID)
	if err != nil {
		return nil, false, err
	}
	if parentLink != nil {
		rootID = parentLink.RootConversationID
		depth = parentLink.Depth + 1
		parentThreadID = &parentLink.ID
		root, err := s.convRepo.Get(ctx, rootID)
		if err != nil {
			return nil, false, err
		}
		rootSettings = root.Settings
	}
	maxDepth := uint(models.DefaultMaxSubroomDepth)
	if rootSettings != nil {
		maxDepth = rootSettings.MaxSubroomDepth
	}
	if depth > maxDepth {
		return nil, false, models.NewDepthLimitExceededError(depth, maxDepth)
	}

	child := &models.Conversation{
		Kind:      models.KindThread,
		Title:     in.Title,
		CreatedBy: in.CreatorID,
	}
	settings := models.DefaultSettings(child.ID)
	if parent.Settings != nil {
		// Content toggles flow down from the parent; policy fields reset to
		// platform defaults.
		settings.AllowReactions = parent.Settings.AllowReactions
		settings.AllowStickers = parent.Settings.AllowStickers
		settings.AllowAttachments = parent.Settings.AllowAttachments
	}
	link = &models.ThreadLink{
		ParentConversationID: in.ParentConversationID,
		ParentMessageKey:     in.ParentMessageKey,
		ParentThreadID:       parentThreadID,
		RootConversationID:   rootID,
		Depth:                depth,
		CreatedBy:            in.CreatorID,
	}
	owner := models.NewActiveMembership(child.ID, in.CreatorID, models.RoleOwner)

	createErr := s.threadRepo.CreateThread(ctx, child, settings, owner, link)
	if createErr == nil {
		return link, true, nil
	}
	if !models.IsUniqueViolation(createErr) {
		return nil, false, createErr
	}

	// Lost the per-message uniqueness race; the winner's link must exist.
	existing, err = s.threadRepo.FindByParentMessage(ctx, in.ParentConversationID, in.ParentMessageKey)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		violation := fmt.Errorf("thread for message %q rejected as duplicate but absent on re-read", in.ParentMessageKey)
		observability.LogInvariantViolation(ctx, "thread_hierarchy", violation, map[string]interface{}{
			"parent_conversation_id": in.ParentConversationID.String(),
			"parent_message_key":     in.ParentMessageKey,
		})
		return nil, false, models.NewResolverInvariantViolationError(violation)
	}
	return existing, false, nil
}

// GetThreadForMessage returns the thread anchored to one parent message, for
// active members of the parent.
func (s *ThreadService) GetThreadForMessage(ctx context.Context, parentConversationID uuid.UUID, userID uint, messageKey string) (*models.ThreadLink, error) {
	if err := s.requireMember(ctx, parentConversationID, userID); err != nil {
		return nil, err
	}
	link, err := s.threadRepo.FindByParentMessage(ctx, parentConversationID, messageKey)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, models.NewNotFoundError("Thread", messageKey)
	}
	return link, nil
}

// ListThreads returns the threads under a conversation in creation order,
// for active members.
func (s *ThreadService) ListThreads(ctx context.Context, parentConversationID uuid.UUID, userID uint, limit, offset int) ([]*models.ThreadLink, error) {
	if err := s.requireMember(ctx, parentConversationID, userID); err != nil {
		return nil, err
	}
	return s.threadRepo.ListByParent(ctx, parentConversationID, limit, offset)
}

func (s *ThreadService) requireMember(ctx context.Context, conversationID uuid.UUID, userID uint) error {
	ok, err := s.memberRepo.IsActiveMember(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewNotAMemberError()
	}
	return nil
}
