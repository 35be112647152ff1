package server

import (
	"parley/internal/models"
	"parley/internal/service"

	"github.com/gofiber/fiber/v2"
)

// JoinRoom handles POST /api/conversations/:id/join
// @Summary Join a conversation
// @Description Join under the room's join policy. Link-join rooms require an invite token.
// @Tags members
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 201 {object} models.Membership
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/join [post]
func (s *Server) JoinRoom(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	var req struct {
		InviteToken string `json:"invite_token,omitempty"`
	}
	// The body is optional for open rooms.
	_ = c.BodyParser(&req)

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	m, err := s.memberService.Join(ctx, conversationID, userID, req.InviteToken)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

// LeaveRoom handles POST /api/conversations/:id/leave
// @Summary Leave a conversation
// @Description Close the caller's membership. The sole remaining owner cannot leave.
// @Tags members
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} map[string]string
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/leave [post]
func (s *Server) LeaveRoom(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	if err := s.memberService.Leave(ctx, conversationID, userID); err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "left"})
}

// AddMember handles POST /api/conversations/:id/members
func (s *Server) AddMember(c *fiber.Ctx) error {
	actorID := currentUserID(c)
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	var req struct {
		UserID uint   `json:"user_id"`
		Role   string `json:"role,omitempty"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil || req.UserID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("user_id is required"))
	}
	role := models.RoleMember
	if req.Role != "" {
		role = models.Role(req.Role)
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	m, err := s.memberService.AddMember(ctx, conversationID, actorID, req.UserID, role)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

// ListMembers handles GET /api/conversations/:id/members
// @Summary List active members
// @Tags members
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {array} models.Membership
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/members [get]
func (s *Server) ListMembers(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	members, err := s.memberService.ListMembers(ctx, conversationID, userID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(members)
}

// RemoveMember handles DELETE /api/conversations/:id/members/:userId
func (s *Server) RemoveMember(c *fiber.Ctx) error {
	actorID := currentUserID(c)
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}
	targetID, err := s.parseUserParam(c, "userId")
	if err != nil {
		return nil
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	if err := s.memberService.RemoveMember(ctx, conversationID, actorID, targetID); err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "removed"})
}

// ChangeRole handles PATCH /api/conversations/:id/members/:userId/role
// @Summary Change a member's role
// @Description Promote or demote a member. Actors cannot grant roles above their own.
// @Tags members
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Param userId path int true "Target user ID"
// @Success 200 {object} models.Membership
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/members/{userId}/role [patch]
func (s *Server) ChangeRole(c *fiber.Ctx) error {
	actorID := currentUserID(c)
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}
	targetID, err := s.parseUserParam(c, "userId")
	if err != nil {
		return nil
	}

	var req struct {
		Role string `json:"role"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil || req.Role == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("role is required"))
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	m, err := s.memberService.ChangeRole(ctx, conversationID, actorID, targetID, models.Role(req.Role))
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(m)
}

// UpdateSelfMembership handles PATCH /api/conversations/:id/members/me
func (s *Server) UpdateSelfMembership(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	var req struct {
		DisplayName       *string                   `json:"display_name,omitempty"`
		NotificationLevel *models.NotificationLevel `json:"notification_level,omitempty"`
		Color             *string                   `json:"color,omitempty"`
		IsMuted           *bool                     `json:"is_muted,omitempty"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	m, err := s.memberService.UpdateSelf(ctx, conversationID, userID, service.UpdateSelfInput{
		DisplayName:       req.DisplayName,
		NotificationLevel: req.NotificationLevel,
		Color:             req.Color,
		IsMuted:           req.IsMuted,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(m)
}

// MembershipHistory handles GET /api/conversations/:id/members/:userId/history
func (s *Server) MembershipHistory(c *fiber.Ctx) error {
	actorID := currentUserID(c)
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}
	targetID, err := s.parseUserParam(c, "userId")
	if err != nil {
		return nil
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	history, err := s.memberService.History(ctx, conversationID, actorID, targetID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(history)
}
