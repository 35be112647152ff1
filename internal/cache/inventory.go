package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	InviteKeyPrefix     = "invite:%s"
	MembershipKeyPrefix = "member:%s:%d"
)

const (
	// MembershipTTL keeps the membership-check cache short-lived so a
	// removal or block is never honored much past the mutation; mutations
	// also invalidate eagerly.
	MembershipTTL = 30 * time.Second
)

func InviteKey(token string) string {
	return fmt.Sprintf(InviteKeyPrefix, token)
}

func MembershipKey(conversationID uuid.UUID, userID uint) string {
	return fmt.Sprintf(MembershipKeyPrefix, conversationID, userID)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

// InvalidateMembership drops the cached membership check for one
// (conversation, user) pair. Called on every membership mutation.
func InvalidateMembership(ctx context.Context, conversationID uuid.UUID, userID uint) {
	Invalidate(ctx, MembershipKey(conversationID, userID))
}
