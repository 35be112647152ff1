package service

import (
	"context"
	"testing"
	"time"

	"parley/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// convRepoStub lets individual tests fault-inject specific repository calls.
type convRepoStub struct {
	createWithMembersFn func(context.Context, *models.Conversation, *models.ConversationSettings, []*models.Membership) error
	findByPairKeyFn     func(context.Context, string) (*models.Conversation, error)
}

func (s *convRepoStub) CreateWithMembers(ctx context.Context, conv *models.Conversation, settings *models.ConversationSettings, members []*models.Membership) error {
	return s.createWithMembersFn(ctx, conv, settings, members)
}
func (s *convRepoStub) FindByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error) {
	return s.findByPairKeyFn(ctx, pairKey)
}
func (s *convRepoStub) Get(context.Context, uuid.UUID) (*models.Conversation, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *convRepoStub) ListForUser(context.Context, uint) ([]*models.Conversation, error) {
	return nil, nil
}
func (s *convRepoStub) UpdateInfo(context.Context, uuid.UUID, map[string]interface{}) error {
	return nil
}
func (s *convRepoStub) UpdateSettings(context.Context, uuid.UUID, map[string]interface{}) error {
	return nil
}
func (s *convRepoStub) SetArchived(context.Context, uuid.UUID, bool) error { return nil }
func (s *convRepoStub) SetLocked(context.Context, uuid.UUID, bool) error   { return nil }
func (s *convRepoStub) ApplyActivity(context.Context, uuid.UUID, time.Time, string) (bool, error) {
	return false, nil
}
func (s *convRepoStub) Exists(context.Context, uuid.UUID) (bool, error) { return false, nil }
func (s *convRepoStub) Touch(context.Context, uuid.UUID) error          { return nil }

func TestResolverService_SameUserRejected(t *testing.T) {
	svc := NewResolverService(setupRepos(t).conv)
	_, _, err := svc.ResolveDirect(context.Background(), 4, 4)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeValidationError))
}

func TestResolverService_Converges(t *testing.T) {
	r := setupRepos(t)
	svc := NewResolverService(r.conv)
	ctx := context.Background()

	first, created, err := svc.ResolveDirect(ctx, 7, 3)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.KindDirect, first.Kind)

	// Repeated resolutions for the pair, in either order, return the same
	// conversation.
	for i := 0; i < 5; i++ {
		a, b := uint(3), uint(7)
		if i%2 == 0 {
			a, b = 7, 3
		}
		conv, created, err := svc.ResolveDirect(ctx, a, b)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, conv.ID)
	}

	// Both participants hold an active membership in the one row.
	members, err := r.member.ActiveMembers(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestResolverService_ArchiveAllowsFreshPair(t *testing.T) {
	r := setupRepos(t)
	svc := NewResolverService(r.conv)
	ctx := context.Background()

	old, _, err := svc.ResolveDirect(ctx, 1, 2)
	require.NoError(t, err)
	require.NoError(t, r.conv.SetArchived(ctx, old.ID, true))

	fresh, created, err := svc.ResolveDirect(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, old.ID, fresh.ID)
}

func TestResolverService_LostRaceReturnsWinner(t *testing.T) {
	winner := &models.Conversation{ID: uuid.New(), Kind: models.KindDirect}
	finds := 0
	stub := &convRepoStub{
		// First read misses; the losing insert hits the unique index; the
		// re-read sees the winner.
		findByPairKeyFn: func(context.Context, string) (*models.Conversation, error) {
			finds++
			if finds == 1 {
				return nil, nil
			}
			return winner, nil
		},
		createWithMembersFn: func(context.Context, *models.Conversation, *models.ConversationSettings, []*models.Membership) error {
			return gorm.ErrDuplicatedKey
		},
	}

	conv, created, err := NewResolverService(stub).ResolveDirect(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner.ID, conv.ID)
	assert.Equal(t, 2, finds)
}

func TestResolverService_InvariantViolation(t *testing.T) {
	stub := &convRepoStub{
		findByPairKeyFn: func(context.Context, string) (*models.Conversation, error) {
			return nil, nil
		},
		createWithMembersFn: func(context.Context, *models.Conversation, *models.ConversationSettings, []*models.Membership) error {
			return gorm.ErrDuplicatedKey
		},
	}

	_, _, err := NewResolverService(stub).ResolveDirect(context.Background(), 1, 2)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeResolverInvariantViolation))
}
