package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is a member's base role in a conversation. The four roles form a total
// order: owner > admin > member > readonly.
type Role string

const (
	// RoleOwner is the highest role.
	RoleOwner Role = "owner"
	// RoleAdmin can manage members and settings.
	RoleAdmin Role = "admin"
	// RoleMember is the default participant role.
	RoleMember Role = "member"
	// RoleReadonly may observe but not act.
	RoleReadonly Role = "readonly"
)

// Rank maps a role onto the total order; unknown roles rank below readonly.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	case RoleReadonly:
		return 0
	}
	return -1
}

// Valid reports whether the role is one of the four known roles.
func (r Role) Valid() bool {
	return r.Rank() >= 0
}

// Outranks reports whether r is strictly higher than other.
func (r Role) Outranks(other Role) bool {
	return r.Rank() > other.Rank()
}

// AtLeast reports whether r meets the given threshold role.
func (r Role) AtLeast(threshold Role) bool {
	return r.Rank() >= threshold.Rank()
}

// NotificationLevel is a member's notification preference for a conversation.
type NotificationLevel string

const (
	// NotifyAll delivers notifications for every message.
	NotifyAll NotificationLevel = "all"
	// NotifyMentions delivers notifications only for mentions.
	NotifyMentions NotificationLevel = "mentions"
	// NotifyNone suppresses notifications.
	NotifyNone NotificationLevel = "none"
)

// Membership is one interval of a user's participation in a conversation.
// Rows are append-only: leaving sets LeftAt, and rejoining inserts a new row,
// so the full join/leave history is preserved for audit.
type Membership struct {
	ID             uint64    `gorm:"primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index:idx_memberships_conv_user,priority:1" json:"conversation_id"`
	UserID         uint      `gorm:"not null;index:idx_memberships_conv_user,priority:2" json:"user_id"`

	BaseRole Role `gorm:"type:varchar(16);not null;default:'member'" json:"base_role"`

	DisplayName       string            `gorm:"size:255" json:"display_name"`
	NotificationLevel NotificationLevel `gorm:"type:varchar(16);not null;default:'all'" json:"notification_level"`
	Color             string            `gorm:"size:16" json:"color"`

	IsMuted   bool `gorm:"not null;default:false" json:"is_muted"`
	IsBlocked bool `gorm:"not null;default:false" json:"is_blocked"`

	JoinedAt time.Time  `gorm:"not null" json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`

	// ActiveKey is "conversation:user" while the row is active and NULL once
	// closed. The nullable unique index enforces at most one active row per
	// (conversation, user) at the constraint level, racing writers included.
	ActiveKey *string `gorm:"size:128;uniqueIndex" json:"-"`
}

// TableName specifies the table name for GORM.
func (Membership) TableName() string {
	return "memberships"
}

// IsActive reports whether the membership interval is still open.
func (m *Membership) IsActive() bool {
	return m.LeftAt == nil
}

// MembershipActiveKey builds the ActiveKey value for an active row.
func MembershipActiveKey(conversationID uuid.UUID, userID uint) string {
	return fmt.Sprintf("%s:%d", conversationID, userID)
}

// NewActiveMembership constructs an open membership interval with the given
// role, joined now.
func NewActiveMembership(conversationID uuid.UUID, userID uint, role Role) *Membership {
	key := MembershipActiveKey(conversationID, userID)
	return &Membership{
		ConversationID:    conversationID,
		UserID:            userID,
		BaseRole:          role,
		NotificationLevel: NotifyAll,
		JoinedAt:          time.Now().UTC(),
		ActiveKey:         &key,
	}
}
