package repository

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"parley/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
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

	return db
}

func TestConversationRepository_CreateWithMembers(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()

	conv := &models.Conversation{Kind: models.KindGroup, Title: "Engineering", CreatedBy: 1}
	settings := models.DefaultSettings(conv.ID)
	members := []*models.Membership{
		models.NewActiveMembership(conv.ID, 1, models.RoleOwner),
		models.NewActiveMembership(conv.ID, 2, models.RoleMember),
	}

	err := repo.CreateWithMembers(ctx, conv, settings, members)
	assert.NoError(t, err)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", conv.ID.String())

	fetched, err := repo.Get(ctx, conv.ID)
	assert.NoError(t, err)
	require.NotNil(t, fetched.Settings)
	assert.Equal(t, models.SendAllMembers, fetched.Settings.SendPolicy)
	assert.Equal(t, uint(models.DefaultMaxSubroomDepth), fetched.Settings.MaxSubroomDepth)
	assert.Len(t, fetched.Members, 2)
}

func TestConversationRepository_CreateIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()

	pair := models.DirectPairKey(7, 42)
	winner := &models.Conversation{Kind: models.KindDirect, CreatedBy: 7, PairKey: &pair}
	err := repo.CreateWithMembers(ctx, winner, models.DefaultSettings(winner.ID), []*models.Membership{
		models.NewActiveMembership(winner.ID, 7, models.RoleOwner),
		models.NewActiveMembership(winner.ID, 42, models.RoleMember),
	})
	require.NoError(t, err)

	// A second insert for the same canonical pair must be rejected and leave
	// nothing behind.
	loserPair := models.DirectPairKey(42, 7)
	loser := &models.Conversation{Kind: models.KindDirect, CreatedBy: 42, PairKey: &loserPair}
	err = repo.CreateWithMembers(ctx, loser, models.DefaultSettings(loser.ID), []*models.Membership{
		models.NewActiveMembership(loser.ID, 7, models.RoleOwner),
		models.NewActiveMembership(loser.ID, 42, models.RoleMember),
	})
	require.Error(t, err)
	assert.True(t, models.IsUniqueViolation(err))

	var convCount, settingsCount, memberCount int64
	db.Model(&models.Conversation{}).Count(&convCount)
	db.Model(&models.ConversationSettings{}).Count(&settingsCount)
	db.Model(&models.Membership{}).Count(&memberCount)
	assert.Equal(t, int64(1), convCount)
	assert.Equal(t, int64(1), settingsCount)
	assert.Equal(t, int64(2), memberCount)
}

func TestConversationRepository_FindByPairKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()

	found, err := repo.FindByPairKey(ctx, models.DirectPairKey(1, 2))
	assert.NoError(t, err)
	assert.Nil(t, found)

	pair := models.DirectPairKey(2, 1)
	conv := &models.Conversation{Kind: models.KindDirect, CreatedBy: 1, PairKey: &pair}
	require.NoError(t, repo.CreateWithMembers(ctx, conv, models.DefaultSettings(conv.ID), []*models.Membership{
		models.NewActiveMembership(conv.ID, 1, models.RoleOwner),
		models.NewActiveMembership(conv.ID, 2, models.RoleMember),
	}))

	found, err = repo.FindByPairKey(ctx, models.DirectPairKey(1, 2))
	assert.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, conv.ID, found.ID)
	assert.Len(t, found.Members, 2)
}

func TestConversationRepository_ArchiveReleasesPairKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()

	pair := models.DirectPairKey(5, 6)
	conv := &models.Conversation{Kind: models.KindDirect, CreatedBy: 5, PairKey: &pair}
	require.NoError(t, repo.CreateWithMembers(ctx, conv, models.DefaultSettings(conv.ID), nil))

	assert.NoError(t, repo.SetArchived(ctx, conv.ID, true))

	found, err := repo.FindByPairKey(ctx, pair)
	assert.NoError(t, err)
	assert.Nil(t, found, "archived direct must release the pair key")

	// A fresh direct for the same pair can now be created.
	next := &models.Conversation{Kind: models.KindDirect, CreatedBy: 6, PairKey: &pair}
	assert.NoError(t, repo.CreateWithMembers(ctx, next, models.DefaultSettings(next.ID), nil))
}

func TestConversationRepository_ApplyActivity(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()

	conv := &models.Conversation{Kind: models.KindGroup, CreatedBy: 1}
	require.NoError(t, repo.CreateWithMembers(ctx, conv, models.DefaultSettings(conv.ID), nil))

	t1 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	t3 := t1.Add(2 * time.Minute)

	// Out-of-order arrival: t3 first, then t1 and t2 must be ignored.
	applied, err := repo.ApplyActivity(ctx, conv.ID, t3, "newest")
	assert.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.ApplyActivity(ctx, conv.ID, t1, "oldest")
	assert.NoError(t, err)
	assert.False(t, applied)

	applied, err = repo.ApplyActivity(ctx, conv.ID, t2, "middle")
	assert.NoError(t, err)
	assert.False(t, applied)

	// Redelivery of the same tuple is a no-op.
	applied, err = repo.ApplyActivity(ctx, conv.ID, t3, "newest")
	assert.NoError(t, err)
	assert.False(t, applied)

	fetched, err := repo.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.LastActivityAt)
	assert.True(t, fetched.LastActivityAt.Equal(t3))
	assert.Equal(t, "newest", fetched.LastActivityPreview)
}

func TestConversationRepository_ApplyActivityBoundsPreview(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()

	conv := &models.Conversation{Kind: models.KindGroup, CreatedBy: 1}
	require.NoError(t, repo.CreateWithMembers(ctx, conv, models.DefaultSettings(conv.ID), nil))

	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	applied, err := repo.ApplyActivity(ctx, conv.ID, time.Now().UTC(), string(long))
	assert.NoError(t, err)
	assert.True(t, applied)

	fetched, err := repo.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, fetched.LastActivityPreview, models.MaxActivityPreviewLen)
}

func TestConversationRepository_ApplyActivityTrimsOnRuneBoundary(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()

	conv := &models.Conversation{Kind: models.KindGroup, CreatedBy: 1}
	require.NoError(t, repo.CreateWithMembers(ctx, conv, models.DefaultSettings(conv.ID), nil))

	// Each é is two bytes, so a byte-index cut would land mid-rune.
	long := strings.Repeat("é", models.MaxActivityPreviewLen)
	applied, err := repo.ApplyActivity(ctx, conv.ID, time.Now().UTC(), long)
	assert.NoError(t, err)
	assert.True(t, applied)

	fetched, err := repo.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(fetched.LastActivityPreview))
	assert.LessOrEqual(t, len(fetched.LastActivityPreview), models.MaxActivityPreviewLen)
	assert.True(t, strings.HasPrefix(long, fetched.LastActivityPreview))
}

func TestConversationRepository_ListForUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)
	ctx := context.Background()

	mk := func(title string, activity *time.Time) *models.Conversation {
		conv := &models.Conversation{Kind: models.KindGroup, Title: title, CreatedBy: 1, LastActivityAt: activity}
		require.NoError(t, repo.CreateWithMembers(ctx, conv, models.DefaultSettings(conv.ID), []*models.Membership{
			models.NewActiveMembership(conv.ID, 1, models.RoleOwner),
		}))
		return conv
	}

	older := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	mk("quiet", nil)
	mk("older", &older)
	mk("newer", &newer)

	// A room the user left should not show up.
	left := mk("left", &newer)
	now := time.Now().UTC()
	db.Model(&models.Membership{}).
		Where("conversation_id = ?", left.ID).
		Updates(map[string]interface{}{"left_at": now, "active_key": nil})

	rooms, err := repo.ListForUser(ctx, 1)
	assert.NoError(t, err)
	require.Len(t, rooms, 3)
	assert.Equal(t, "newer", rooms[0].Title)
	assert.Equal(t, "older", rooms[1].Title)
	assert.Equal(t, "quiet", rooms[2].Title)
}

func TestConversationRepository_GetNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConversationRepository(db)

	_, err := repo.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}
