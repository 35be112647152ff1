package server

import (
	"parley/internal/cache"
	"parley/internal/policy"

	"github.com/gofiber/fiber/v2"
)

// MintInvite handles POST /api/conversations/:id/invites. Admin and above:
// mints a TTL'd opaque token that satisfies the link_join policy.
func (s *Server) MintInvite(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	decision, err := s.roomService.CheckPermission(ctx, conversationID, userID, policy.ActionManageMembers)
	if err != nil {
		return respondErr(c, err)
	}
	if !decision.Allowed {
		return respondErr(c, denialToError(decision.Reason))
	}

	token, err := cache.MintInvite(ctx, conversationID, true, s.config.InviteTTL())
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"invite_token": token,
		"expires_in":   s.config.InviteTTL().String(),
	})
}

// RevokeInvite handles DELETE /api/conversations/:id/invites/:token
func (s *Server) RevokeInvite(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	decision, err := s.roomService.CheckPermission(ctx, conversationID, userID, policy.ActionManageMembers)
	if err != nil {
		return respondErr(c, err)
	}
	if !decision.Allowed {
		return respondErr(c, denialToError(decision.Reason))
	}

	// Only drop tokens that belong to this conversation.
	token := c.Params("token")
	invite, err := cache.LookupInvite(ctx, token)
	if err != nil {
		return respondErr(c, err)
	}
	if invite != nil && invite.ConversationID == conversationID {
		cache.RevokeInvite(ctx, token)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "revoked"})
}
