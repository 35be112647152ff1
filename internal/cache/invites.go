package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"parley/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Invite is the redis-backed payload behind a link-join token.
type Invite struct {
	ConversationID uuid.UUID
	InvitedByAdmin bool
}

// MintInvite stores a fresh opaque token for the conversation and returns it.
// Tokens are not consumed on use; they expire with the TTL or are revoked.
func MintInvite(ctx context.Context, conversationID uuid.UUID, invitedByAdmin bool, ttl time.Duration) (string, error) {
	if client == nil {
		return "", models.NewStoreUnavailableError(errors.New("invite store is not connected"))
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	value := fmt.Sprintf("%s|%t", conversationID, invitedByAdmin)
	if err := client.Set(ctx, InviteKey(token), value, ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// LookupInvite resolves a token to its invite payload. A missing or expired
// token returns (nil, nil); only transport failures surface as errors.
func LookupInvite(ctx context.Context, token string) (*Invite, error) {
	if client == nil || token == "" {
		return nil, nil
	}
	value, err := client.Get(ctx, InviteKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	parts := strings.SplitN(value, "|", 2)
	if len(parts) != 2 {
		return nil, nil
	}
	conversationID, err := uuid.Parse(parts[0])
	if err != nil {
		return nil, nil
	}
	return &Invite{
		ConversationID: conversationID,
		InvitedByAdmin: parts[1] == "true",
	}, nil
}

// RevokeInvite deletes a token before its TTL expires.
func RevokeInvite(ctx context.Context, token string) {
	Invalidate(ctx, InviteKey(token))
}
