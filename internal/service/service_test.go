package service

import (
	"context"
	"testing"

	"parley/internal/models"
	"parley/internal/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testRepos struct {
	db     *gorm.DB
	conv   repository.ConversationRepository
	member repository.MembershipRepository
	thread repository.ThreadRepository
}

func setupRepos(t *testing.T) *testRepos {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	err = db.AutoMigrate(
		&models.Conversation{},
		&models.ConversationSettings{},
		&models.Membership{},
		&models.ThreadLink{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}
	return &testRepos{
		db:     db,
		conv:   repository.NewConversationRepository(db),
		member: repository.NewMembershipRepository(db),
		thread: repository.NewThreadRepository(db),
	}
}

// seedRoom creates a group room owned by user 1 with the given extra members
// at the member role.
func seedRoom(t *testing.T, r *testRepos, memberIDs ...uint) *models.Conversation {
	t.Helper()
	conv := &models.Conversation{Kind: models.KindGroup, Title: "room", CreatedBy: 1}
	members := []*models.Membership{
		models.NewActiveMembership(conv.ID, 1, models.RoleOwner),
	}
	for _, id := range memberIDs {
		members = append(members, models.NewActiveMembership(conv.ID, id, models.RoleMember))
	}
	require.NoError(t, r.conv.CreateWithMembers(
		context.Background(), conv, models.DefaultSettings(conv.ID), members))
	return conv
}

func setRole(t *testing.T, r *testRepos, conv *models.Conversation, userID uint, role models.Role) {
	t.Helper()
	m, err := r.member.Active(context.Background(), conv.ID, userID)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.NoError(t, r.member.ChangeRole(context.Background(), m.ID, role))
}

func setJoinPolicy(t *testing.T, r *testRepos, conv *models.Conversation, p models.JoinPolicy) {
	t.Helper()
	require.NoError(t, r.conv.UpdateSettings(context.Background(), conv.ID,
		map[string]interface{}{"join_policy": p}))
}
