package service

import (
	"context"
	"time"

	"parley/internal/models"
	"parley/internal/observability"
	"parley/internal/repository"

	"github.com/google/uuid"
)

// ActivityService applies last-activity callbacks from the message store.
type ActivityService struct {
	convRepo repository.ConversationRepository
}

// NewActivityService returns a new ActivityService.
func NewActivityService(convRepo repository.ConversationRepository) *ActivityService {
	return &ActivityService{convRepo: convRepo}
}

// ApplyActivity records a message-store activity event against the
// conversation's denormalized last-activity fields. Events may arrive out of
// order or more than once; only an event newer than the stored timestamp
// wins, so the call is idempotent and order-insensitive. applied reports
// whether this event changed the row.
func (s *ActivityService) ApplyActivity(ctx context.Context, conversationID uuid.UUID, occurredAt time.Time, preview string) (applied bool, err error) {
	if occurredAt.IsZero() {
		return false, models.NewValidationError("occurred_at is required")
	}

	exists, err := s.convRepo.Exists(ctx, conversationID)
	if err != nil {
		return false, err
	}
	if !exists {
		observability.ActivitySyncEvents.WithLabelValues("not_found").Inc()
		return false, models.NewNotFoundError("Conversation", conversationID)
	}

	applied, err = s.convRepo.ApplyActivity(ctx, conversationID, occurredAt, preview)
	if err != nil {
		return false, err
	}
	if applied {
		observability.ActivitySyncEvents.WithLabelValues("applied").Inc()
	} else {
		observability.ActivitySyncEvents.WithLabelValues("ignored").Inc()
	}
	return applied, nil
}
