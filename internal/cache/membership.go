package cache

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// GetMembership returns the cached active-membership verdict for the pair,
// or (false, false) on a miss. Cache failures are treated as misses so the
// caller falls through to the database.
func GetMembership(ctx context.Context, conversationID uuid.UUID, userID uint) (isMember, hit bool) {
	if client == nil {
		return false, false
	}
	value, err := client.Get(ctx, MembershipKey(conversationID, userID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// Already counted by the metrics hook; just miss.
			return false, false
		}
		return false, false
	}
	return value == "1", true
}

// SetMembership caches an active-membership verdict for MembershipTTL.
func SetMembership(ctx context.Context, conversationID uuid.UUID, userID uint, isMember bool) {
	if client == nil {
		return
	}
	value := "0"
	if isMember {
		value = "1"
	}
	client.Set(ctx, MembershipKey(conversationID, userID), value, MembershipTTL)
}
