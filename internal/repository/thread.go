package repository

import (
	"context"
	"errors"

	"parley/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ThreadRepository defines the interface for thread-link data operations.
type ThreadRepository interface {
	// CreateThread inserts the child conversation, its settings, the
	// creator's owner membership, and the thread link in one atomic unit, so
	// a failed depth race never leaves an orphaned conversation.
	CreateThread(ctx context.Context, child *models.Conversation, settings *models.ConversationSettings, owner *models.Membership, link *models.ThreadLink) error
	// FindByParentMessage returns the link for (parent conversation, message
	// key), or (nil, nil) when none exists.
	FindByParentMessage(ctx context.Context, parentConversationID uuid.UUID, messageKey string) (*models.ThreadLink, error)
	// FindByChild returns the link whose child is the given conversation, or
	// (nil, nil) when the conversation is a top-level room.
	FindByChild(ctx context.Context, childConversationID uuid.UUID) (*models.ThreadLink, error)
	// ListByParent returns thread links under a parent conversation ordered
	// by creation time, with the child conversation preloaded. Limit/offset
	// make the sequence restartable.
	ListByParent(ctx context.Context, parentConversationID uuid.UUID, limit, offset int) ([]*models.ThreadLink, error)
}

// threadRepository implements ThreadRepository.
type threadRepository struct {
	db *gorm.DB
}

// NewThreadRepository creates a new thread repository.
func NewThreadRepository(db *gorm.DB) ThreadRepository {
	return &threadRepository{db: db}
}

func (r *threadRepository) CreateThread(ctx context.Context, child *models.Conversation, settings *models.ConversationSettings, owner *models.Membership, link *models.ThreadLink) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(child).Error; err != nil {
			return err
		}
		settings.ConversationID = child.ID
		if err := tx.Create(settings).Error; err != nil {
			return err
		}
		owner.ConversationID = child.ID
		key := models.MembershipActiveKey(child.ID, owner.UserID)
		owner.ActiveKey = &key
		if err := tx.Create(owner).Error; err != nil {
			return err
		}
		link.ChildConversationID = child.ID
		return tx.Create(link).Error
	})
}

func (r *threadRepository) FindByParentMessage(ctx context.Context, parentConversationID uuid.UUID, messageKey string) (*models.ThreadLink, error) {
	var link models.ThreadLink
	err := r.db.WithContext(ctx).
		Where("parent_conversation_id = ? AND parent_message_key = ?", parentConversationID, messageKey).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

func (r *threadRepository) FindByChild(ctx context.Context, childConversationID uuid.UUID) (*models.ThreadLink, error) {
	var link models.ThreadLink
	err := r.db.WithContext(ctx).
		Where("child_conversation_id = ?", childConversationID).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

func (r *threadRepository) ListByParent(ctx context.Context, parentConversationID uuid.UUID, limit, offset int) ([]*models.ThreadLink, error) {
	var links []*models.ThreadLink
	err := r.db.WithContext(ctx).
		Where("parent_conversation_id = ?", parentConversationID).
		Preload("ChildConversation").
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&links).Error
	return links, err
}
