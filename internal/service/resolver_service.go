package service

import (
	"context"
	"fmt"

	"parley/internal/models"
	"parley/internal/observability"
	"parley/internal/repository"
)

// ResolverService resolves the unique direct conversation for a pair of
// users.
type ResolverService struct {
	convRepo repository.ConversationRepository
}

// NewResolverService returns a new ResolverService.
func NewResolverService(convRepo repository.ConversationRepository) *ResolverService {
	return &ResolverService{convRepo: convRepo}
}

// ResolveDirect returns the single non-archived direct conversation for the
// unordered pair (userA, userB), creating it if none exists. created reports
// whether this call performed the creation. Concurrent calls for the same
// pair converge on one row: a loser of the pair-key uniqueness race re-reads
// exactly once and returns the winner's conversation.
func (s *ResolverService) ResolveDirect(ctx context.Context, userA, userB uint) (conv *models.Conversation, created bool, err error) {
	if userA == userB {
		return nil, false, models.NewValidationError("A direct conversation requires two distinct users")
	}

	pairKey := models.DirectPairKey(userA, userB)
	conv, err = s.convRepo.FindByPairKey(ctx, pairKey)
	if err != nil {
		return nil, false, err
	}
	if conv != nil {
		observability.ResolverOutcomes.WithLabelValues("found").Inc()
		return conv, false, nil
	}

	fresh := &models.Conversation{
		Kind:      models.KindDirect,
		CreatedBy: userA,
		PairKey:   &pairKey,
	}
	settings := models.DefaultSettings(fresh.ID)
	members := []*models.Membership{
		models.NewActiveMembership(fresh.ID, userA, models.RoleOwner),
		models.NewActiveMembership(fresh.ID, userB, models.RoleOwner),
	}

	createErr := s.convRepo.CreateWithMembers(ctx, fresh, settings, members)
	if createErr == nil {
		observability.ResolverOutcomes.WithLabelValues("created").Inc()
		return fresh, true, nil
	}
	if !models.IsUniqueViolation(createErr) {
		return nil, false, createErr
	}

	// Another caller created the pair's conversation first; its row must now
	// be visible. One re-read, no loop.
	conv, err = s.convRepo.FindByPairKey(ctx, pairKey)
	if err != nil {
		return nil, false, err
	}
	if conv == nil {
		violation := fmt.Errorf("pair key %q rejected as duplicate but absent on re-read", pairKey)
		observability.LogInvariantViolation(ctx, "direct_resolver", violation, map[string]interface{}{
			"pair_key": pairKey,
		})
		observability.ResolverOutcomes.WithLabelValues("invariant_violation").Inc()
		return nil, false, models.NewResolverInvariantViolationError(violation)
	}
	observability.ResolverOutcomes.WithLabelValues("retried").Inc()
	return conv, false, nil
}
