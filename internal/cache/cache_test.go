package cache

import (
	"context"
	"testing"
	"time"

	"parley/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(func() {
		mr.Close()
		client = nil
	})
	InitRedis(mr.Addr())
	require.NotNil(t, GetClient())
	return mr
}

func TestInviteLifecycle(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()
	convID := uuid.New()

	token, err := MintInvite(ctx, convID, true, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	invite, err := LookupInvite(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, invite)
	assert.Equal(t, convID, invite.ConversationID)
	assert.True(t, invite.InvitedByAdmin)

	// Tokens are not consumed by lookup.
	invite, err = LookupInvite(ctx, token)
	require.NoError(t, err)
	assert.NotNil(t, invite)

	RevokeInvite(ctx, token)
	invite, err = LookupInvite(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, invite)
	assert.False(t, mr.Exists(InviteKey(token)))
}

func TestInviteExpires(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()

	token, err := MintInvite(ctx, uuid.New(), false, time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	invite, err := LookupInvite(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, invite)
}

func TestMintInvite_StoreUnavailable(t *testing.T) {
	client = nil
	_, err := MintInvite(context.Background(), uuid.New(), false, time.Hour)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeStoreUnavailable))
}

func TestMembershipCache(t *testing.T) {
	setupMiniredis(t)
	ctx := context.Background()
	convID := uuid.New()

	_, hit := GetMembership(ctx, convID, 7)
	assert.False(t, hit)

	SetMembership(ctx, convID, 7, true)
	isMember, hit := GetMembership(ctx, convID, 7)
	assert.True(t, hit)
	assert.True(t, isMember)

	SetMembership(ctx, convID, 8, false)
	isMember, hit = GetMembership(ctx, convID, 8)
	assert.True(t, hit)
	assert.False(t, isMember)

	InvalidateMembership(ctx, convID, 7)
	_, hit = GetMembership(ctx, convID, 7)
	assert.False(t, hit)
}

func TestMembershipCache_NilClientIsMiss(t *testing.T) {
	client = nil
	_, hit := GetMembership(context.Background(), uuid.New(), 1)
	assert.False(t, hit)
	// No panic on writes either.
	SetMembership(context.Background(), uuid.New(), 1, true)
	InvalidateMembership(context.Background(), uuid.New(), 1)
}
