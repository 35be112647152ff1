package models

import (
	"time"

	"github.com/google/uuid"
)

// ThreadLink is a forest edge from a parent room/message context to a child
// thread conversation. Depth is computed once at creation and never
// recomputed; children are always freshly created conversations, so cycles
// are impossible by construction.
type ThreadLink struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	ParentConversationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_thread_links_parent_message,priority:1;index" json:"parent_conversation_id"`
	// ParentMessageKey is the opaque message id from the external message
	// store that the thread hangs off.
	ParentMessageKey string `gorm:"size:255;not null;uniqueIndex:idx_thread_links_parent_message,priority:2" json:"parent_message_key"`

	ChildConversationID uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex" json:"child_conversation_id"`
	ChildConversation   *Conversation `gorm:"foreignKey:ChildConversationID" json:"child_conversation,omitempty"`

	// ParentThreadID links a nested thread to the link it was created under.
	ParentThreadID *uint64 `gorm:"index" json:"parent_thread_id,omitempty"`

	// RootConversationID is the top of the chain; the depth limit is read
	// from the root's settings without walking parent links.
	RootConversationID uuid.UUID `gorm:"type:uuid;not null;index" json:"root_conversation_id"`

	// Depth is 1 for a thread directly under a room and parent depth + 1 for
	// nested threads.
	Depth uint `gorm:"not null;default:1" json:"depth"`

	CreatedBy uint      `gorm:"not null" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (ThreadLink) TableName() string {
	return "thread_links"
}
