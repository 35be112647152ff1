package repository

import (
	"context"
	"errors"
	"time"

	"parley/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MembershipRepository defines the interface for membership data operations.
// Rows are append-only intervals: closing a row sets left_at and releases its
// active-key uniqueness slot; rejoining inserts a fresh row.
type MembershipRepository interface {
	// Active returns the open membership row for (conversation, user), or
	// (nil, nil) when there is none.
	Active(ctx context.Context, conversationID uuid.UUID, userID uint) (*models.Membership, error)
	ActiveMembers(ctx context.Context, conversationID uuid.UUID) ([]*models.Membership, error)
	Insert(ctx context.Context, m *models.Membership) error
	// Close ends the open interval identified by id. Returns the number of
	// rows affected (0 when the row was already closed by a racing writer).
	Close(ctx context.Context, id uint64, leftAt time.Time) (int64, error)
	// CloseOwnerGuarded ends an owner's open interval only while at least one
	// other active owner remains, in a single guarded statement so two racing
	// departures cannot both pass. Returns rows affected.
	CloseOwnerGuarded(ctx context.Context, m *models.Membership, leftAt time.Time) (int64, error)
	ChangeRole(ctx context.Context, id uint64, newRole models.Role) error
	// DemoteOwnerGuarded changes an owner's role only while at least one
	// other active owner remains. Returns rows affected.
	DemoteOwnerGuarded(ctx context.Context, m *models.Membership, newRole models.Role) (int64, error)
	CountActiveOwners(ctx context.Context, conversationID uuid.UUID) (int64, error)
	// History returns all membership intervals for (conversation, user),
	// oldest first.
	History(ctx context.Context, conversationID uuid.UUID, userID uint) ([]*models.Membership, error)
	UpdateSelf(ctx context.Context, id uint64, updates map[string]interface{}) error
	IsActiveMember(ctx context.Context, conversationID uuid.UUID, userID uint) (bool, error)
}

// membershipRepository implements MembershipRepository.
type membershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository creates a new membership repository.
func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) Active(ctx context.Context, conversationID uuid.UUID, userID uint) (*models.Membership, error) {
	var m models.Membership
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ? AND left_at IS NULL", conversationID, userID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *membershipRepository) ActiveMembers(ctx context.Context, conversationID uuid.UUID) ([]*models.Membership, error) {
	var members []*models.Membership
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND left_at IS NULL", conversationID).
		Order("joined_at ASC").
		Find(&members).Error
	return members, err
}

func (r *membershipRepository) Insert(ctx context.Context, m *models.Membership) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *membershipRepository) Close(ctx context.Context, id uint64, leftAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("id = ? AND left_at IS NULL", id).
		Updates(map[string]interface{}{
			"left_at":    leftAt,
			"active_key": nil,
		})
	return res.RowsAffected, res.Error
}

func (r *membershipRepository) CloseOwnerGuarded(ctx context.Context, m *models.Membership, leftAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("id = ? AND left_at IS NULL", m.ID).
		Where("(SELECT COUNT(*) FROM memberships o WHERE o.conversation_id = ? AND o.base_role = ? AND o.left_at IS NULL) > 1",
			m.ConversationID, models.RoleOwner).
		Updates(map[string]interface{}{
			"left_at":    leftAt,
			"active_key": nil,
		})
	return res.RowsAffected, res.Error
}

func (r *membershipRepository) ChangeRole(ctx context.Context, id uint64, newRole models.Role) error {
	return r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("id = ? AND left_at IS NULL", id).
		Update("base_role", newRole).Error
}

func (r *membershipRepository) DemoteOwnerGuarded(ctx context.Context, m *models.Membership, newRole models.Role) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("id = ? AND left_at IS NULL", m.ID).
		Where("(SELECT COUNT(*) FROM memberships o WHERE o.conversation_id = ? AND o.base_role = ? AND o.left_at IS NULL) > 1",
			m.ConversationID, models.RoleOwner).
		Update("base_role", newRole)
	return res.RowsAffected, res.Error
}

func (r *membershipRepository) CountActiveOwners(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("conversation_id = ? AND base_role = ? AND left_at IS NULL", conversationID, models.RoleOwner).
		Count(&count).Error
	return count, err
}

func (r *membershipRepository) History(ctx context.Context, conversationID uuid.UUID, userID uint) ([]*models.Membership, error) {
	var rows []*models.Membership
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Order("joined_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *membershipRepository) UpdateSelf(ctx context.Context, id uint64, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("id = ? AND left_at IS NULL", id).
		Updates(updates).Error
}

func (r *membershipRepository) IsActiveMember(ctx context.Context, conversationID uuid.UUID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("conversation_id = ? AND user_id = ? AND left_at IS NULL AND is_blocked = ?", conversationID, userID, false).
		Count(&count).Error
	return count > 0, err
}
