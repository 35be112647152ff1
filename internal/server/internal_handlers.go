package server

import (
	"time"

	"parley/internal/models"
	"parley/internal/policy"

	"github.com/gofiber/fiber/v2"
)

// InternalIsActiveMember handles GET /internal/conversations/:id/members/:userId.
// This is the membership check sibling services make on their hot paths;
// answers come from the short-TTL cache when warm.
func (s *Server) InternalIsActiveMember(c *fiber.Ctx) error {
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}
	userID, err := s.parseUserParam(c, "userId")
	if err != nil {
		return nil
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	isMember, err := s.memberService.IsActiveMember(ctx, conversationID, userID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"is_active_member": isMember})
}

// InternalHasPermission handles
// GET /internal/conversations/:id/members/:userId/permissions/:action.
// The decision is returned as data; denials are 200s, not errors.
func (s *Server) InternalHasPermission(c *fiber.Ctx) error {
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}
	userID, err := s.parseUserParam(c, "userId")
	if err != nil {
		return nil
	}
	action := policy.Action(c.Params("action"))

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	decision, err := s.roomService.CheckPermission(ctx, conversationID, userID, action)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(decision)
}

// InternalApplyActivity handles POST /internal/conversations/:id/activity,
// the message store's per-message callback. Redeliveries and out-of-order
// events are reported as applied=false, not failures.
func (s *Server) InternalApplyActivity(c *fiber.Ctx) error {
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	var req struct {
		OccurredAt time.Time `json:"occurred_at"`
		Preview    string    `json:"preview,omitempty"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	applied, err := s.activityService.ApplyActivity(ctx, conversationID, req.OccurredAt, req.Preview)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"applied": applied})
}
