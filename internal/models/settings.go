package models

import (
	"time"

	"github.com/google/uuid"
)

// SendPolicy governs who may send messages in a conversation.
type SendPolicy string

const (
	// SendAllMembers allows every active member to send.
	SendAllMembers SendPolicy = "all_members"
	// SendAdminsOnly restricts sending to admins and owners.
	SendAdminsOnly SendPolicy = "admins_only"
)

// JoinPolicy governs how users may join a conversation.
type JoinPolicy string

const (
	// JoinInviteOnly requires an existing admin/owner to add the user.
	JoinInviteOnly JoinPolicy = "invite_only"
	// JoinLinkJoin allows joining with a valid invite link token.
	JoinLinkJoin JoinPolicy = "link_join"
	// JoinOpen allows anyone to join.
	JoinOpen JoinPolicy = "open"
)

// InfoEditPolicy governs who may edit the conversation's title/description/avatar.
type InfoEditPolicy string

const (
	// InfoEditAllMembers allows every active member to edit info.
	InfoEditAllMembers InfoEditPolicy = "all_members"
	// InfoEditAdminsOnly restricts info edits to admins and owners.
	InfoEditAdminsOnly InfoEditPolicy = "admins_only"
	// InfoEditOwnerOnly restricts info edits to owners.
	InfoEditOwnerOnly InfoEditPolicy = "owner_only"
)

// SubroomPolicy governs who may create threads under a conversation.
type SubroomPolicy string

const (
	// SubroomAllMembers allows every active member to create threads.
	SubroomAllMembers SubroomPolicy = "all_members"
	// SubroomAdminsOnly restricts thread creation to admins and owners.
	SubroomAdminsOnly SubroomPolicy = "admins_only"
	// SubroomDisabled disables thread creation for everyone.
	SubroomDisabled SubroomPolicy = "disabled"
)

// DefaultMaxSubroomDepth is the default nesting limit for threads.
const DefaultMaxSubroomDepth = 8

// ConversationSettings is the per-conversation policy record, created
// atomically with its conversation and never deleted independently of it.
type ConversationSettings struct {
	ConversationID uuid.UUID `gorm:"type:uuid;primaryKey" json:"conversation_id"`

	SendPolicy     SendPolicy     `gorm:"type:varchar(32);not null;default:'all_members'" json:"send_policy"`
	JoinPolicy     JoinPolicy     `gorm:"type:varchar(32);not null;default:'invite_only'" json:"join_policy"`
	InfoEditPolicy InfoEditPolicy `gorm:"type:varchar(32);not null;default:'admins_only'" json:"info_edit_policy"`
	SubroomPolicy  SubroomPolicy  `gorm:"type:varchar(32);not null;default:'all_members'" json:"subroom_policy"`

	MaxSubroomDepth uint `gorm:"not null;default:8" json:"max_subroom_depth"`

	// MessageRetentionDays is enforced by the external message store; nil
	// means keep forever.
	MessageRetentionDays *uint `json:"message_retention_days,omitempty"`

	AllowReactions   bool `gorm:"not null;default:true" json:"allow_reactions"`
	AllowStickers    bool `gorm:"not null;default:true" json:"allow_stickers"`
	AllowAttachments bool `gorm:"not null;default:true" json:"allow_attachments"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (ConversationSettings) TableName() string {
	return "conversation_settings"
}

// DefaultSettings returns a settings record with platform defaults for the
// given conversation. Defaults are set explicitly rather than relying on
// column defaults so the sqlite test driver and postgres agree.
func DefaultSettings(conversationID uuid.UUID) *ConversationSettings {
	return &ConversationSettings{
		ConversationID:   conversationID,
		SendPolicy:       SendAllMembers,
		JoinPolicy:       JoinInviteOnly,
		InfoEditPolicy:   InfoEditAdminsOnly,
		SubroomPolicy:    SubroomAllMembers,
		MaxSubroomDepth:  DefaultMaxSubroomDepth,
		AllowReactions:   true,
		AllowStickers:    true,
		AllowAttachments: true,
	}
}
