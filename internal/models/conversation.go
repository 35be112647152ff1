// Package models contains data structures for the application's domain models.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationKind classifies a room.
type ConversationKind string

const (
	// KindDirect is a 1:1 conversation between exactly two users.
	KindDirect ConversationKind = "direct"
	// KindGroup is a multi-user group room.
	KindGroup ConversationKind = "group"
	// KindChannel is a broadcast-style room.
	KindChannel ConversationKind = "channel"
	// KindThread is a sub-room scoped to a parent message.
	KindThread ConversationKind = "thread"
	// KindSystem is a platform-internal room.
	KindSystem ConversationKind = "system"
)

// Valid reports whether the kind is one of the known conversation kinds.
func (k ConversationKind) Valid() bool {
	switch k {
	case KindDirect, KindGroup, KindChannel, KindThread, KindSystem:
		return true
	}
	return false
}

// Conversation represents a room. Message bodies live in the external message
// store; this row describes the room itself plus denormalized last-activity
// metadata for chat-list queries.
type Conversation struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Kind        ConversationKind `gorm:"type:varchar(16);not null;index" json:"kind"`
	Title       string           `gorm:"size:255" json:"title"`
	Description string           `gorm:"type:text" json:"description"`
	AvatarURL   string           `gorm:"size:512" json:"avatar_url"`
	CreatedBy   uint             `gorm:"not null" json:"created_by"`

	IsArchived bool `gorm:"not null;default:false;index" json:"is_archived"`
	IsLocked   bool `gorm:"not null;default:false" json:"is_locked"`

	// PairKey is the canonical unordered user-id pair ("min:max") for
	// non-archived direct conversations. The nullable unique index is what
	// makes concurrent direct-resolution converge on a single row; archiving
	// clears it so a fresh direct room can be created afterwards.
	PairKey *string `gorm:"size:64;uniqueIndex" json:"-"`

	LastActivityAt      *time.Time `gorm:"index" json:"last_activity_at,omitempty"`
	LastActivityPreview string     `gorm:"size:255" json:"last_activity_preview"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Settings *ConversationSettings `gorm:"foreignKey:ConversationID" json:"settings,omitempty"`
	Members  []Membership          `gorm:"foreignKey:ConversationID" json:"members,omitempty"`
}

// TableName specifies the table name for GORM.
func (Conversation) TableName() string {
	return "conversations"
}

// BeforeCreate assigns a UUID if one was not provided.
func (c *Conversation) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// MaxActivityPreviewLen bounds the denormalized last-message preview.
const MaxActivityPreviewLen = 255

// DirectPairKey returns the canonical uniqueness key for an unordered pair of
// user ids (smaller id first, so (a,b) and (b,a) map to the same key).
func DirectPairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
