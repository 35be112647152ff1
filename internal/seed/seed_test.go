package seed

import (
	"testing"

	"parley/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Conversation{},
		&models.ConversationSettings{},
		&models.Membership{},
		&models.ThreadLink{},
	))
	return db
}

func TestRunSeedsConsistentData(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, Run(db, Options{NumUsers: 10, NumRooms: 5}))

	var roomCount int64
	require.NoError(t, db.Model(&models.Conversation{}).
		Where("kind IN ?", []models.ConversationKind{models.KindGroup, models.KindChannel}).
		Count(&roomCount).Error)
	assert.EqualValues(t, 5, roomCount)

	// Every room has exactly one active owner set and a settings row.
	var conversations []models.Conversation
	require.NoError(t, db.Where("kind <> ?", models.KindThread).Find(&conversations).Error)
	for _, conv := range conversations {
		var settings int64
		require.NoError(t, db.Model(&models.ConversationSettings{}).
			Where("conversation_id = ?", conv.ID).Count(&settings).Error)
		assert.EqualValues(t, 1, settings, "conversation %s missing settings", conv.ID)

		var owners int64
		require.NoError(t, db.Model(&models.Membership{}).
			Where("conversation_id = ? AND base_role = ? AND left_at IS NULL", conv.ID, models.RoleOwner).
			Count(&owners).Error)
		assert.GreaterOrEqual(t, owners, int64(1), "conversation %s has no owner", conv.ID)
	}

	// Direct conversations carry pair keys.
	var directs []models.Conversation
	require.NoError(t, db.Where("kind = ?", models.KindDirect).Find(&directs).Error)
	for _, conv := range directs {
		assert.NotNil(t, conv.PairKey)
	}
}

func TestRunCleanWipesPreviousData(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, Run(db, Options{NumUsers: 6, NumRooms: 3}))
	require.NoError(t, Run(db, Options{NumUsers: 6, NumRooms: 2, ShouldClean: true}))

	var roomCount int64
	require.NoError(t, db.Model(&models.Conversation{}).
		Where("kind IN ?", []models.ConversationKind{models.KindGroup, models.KindChannel}).
		Count(&roomCount).Error)
	assert.EqualValues(t, 2, roomCount)
}
