// Package repository contains the data access layer for conversations,
// memberships, and thread links.
package repository

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"parley/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationRepository defines the interface for conversation data operations.
type ConversationRepository interface {
	// CreateWithMembers inserts a conversation, its settings record, and any
	// initial memberships in one atomic unit. A uniqueness rejection (e.g. a
	// racing direct-pair insert) rolls the whole unit back.
	CreateWithMembers(ctx context.Context, conv *models.Conversation, settings *models.ConversationSettings, members []*models.Membership) error
	// Get returns the conversation with its settings and currently-active
	// members in a single consistent view.
	Get(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	// FindByPairKey returns the non-archived direct conversation for the
	// canonical pair key, or (nil, nil) if none exists.
	FindByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID uint) ([]*models.Conversation, error)
	UpdateInfo(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateSettings(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	SetArchived(ctx context.Context, id uuid.UUID, archived bool) error
	SetLocked(ctx context.Context, id uuid.UUID, locked bool) error
	// ApplyActivity is a compare-and-set on the denormalized activity fields:
	// the update lands only when occurredAt is strictly newer than the stored
	// timestamp. Returns whether the update was applied.
	ApplyActivity(ctx context.Context, id uuid.UUID, occurredAt time.Time, preview string) (bool, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// Touch bumps updated_at; membership mutations call it so the
	// conversation row reflects every structural change.
	Touch(ctx context.Context, id uuid.UUID) error
}

// conversationRepository implements ConversationRepository.
type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new conversation repository.
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) CreateWithMembers(ctx context.Context, conv *models.Conversation, settings *models.ConversationSettings, members []*models.Membership) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		settings.ConversationID = conv.ID
		if err := tx.Create(settings).Error; err != nil {
			return err
		}
		for _, m := range members {
			m.ConversationID = conv.ID
			key := models.MembershipActiveKey(conv.ID, m.UserID)
			m.ActiveKey = &key
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *conversationRepository) Get(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.
			Preload("Settings").
			Preload("Members", "left_at IS NULL").
			First(&conv, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Conversation", id)
		}
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) FindByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Settings").
		Preload("Members", "left_at IS NULL").
		Where("pair_key = ?", pairKey).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID uint) ([]*models.Conversation, error) {
	var conversations []*models.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN memberships m ON m.conversation_id = conversations.id AND m.user_id = ? AND m.left_at IS NULL", userID).
		Where("conversations.is_archived = ?", false).
		Preload("Settings").
		Order("conversations.last_activity_at DESC NULLS LAST").
		Find(&conversations).Error
	return conversations, err
}

func (r *conversationRepository) UpdateInfo(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *conversationRepository) UpdateSettings(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&models.ConversationSettings{}).
		Where("conversation_id = ?", id).
		Updates(updates).Error
}

func (r *conversationRepository) SetArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	updates := map[string]interface{}{"is_archived": archived}
	if archived {
		// Release the direct-pair uniqueness slot so a new direct
		// conversation can be created for the same pair.
		updates["pair_key"] = nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *conversationRepository) SetLocked(ctx context.Context, id uuid.UUID, locked bool) error {
	return r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("is_locked", locked).Error
}

func (r *conversationRepository) ApplyActivity(ctx context.Context, id uuid.UUID, occurredAt time.Time, preview string) (bool, error) {
	if len(preview) > models.MaxActivityPreviewLen {
		// Trim on a rune boundary so a multi-byte character is never split.
		cut := models.MaxActivityPreviewLen
		for cut > 0 && !utf8.RuneStart(preview[cut]) {
			cut--
		}
		preview = preview[:cut]
	}
	res := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", id).
		Where("last_activity_at IS NULL OR last_activity_at < ?", occurredAt).
		Updates(map[string]interface{}{
			"last_activity_at":      occurredAt,
			"last_activity_preview": preview,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *conversationRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", id).
		Count(&count).Error
	return count > 0, err
}

func (r *conversationRepository) Touch(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UTC()).Error
}
