package server

import (
	"parley/internal/models"
	"parley/internal/policy"
	"parley/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateRoom handles POST /api/conversations
// @Summary Create a conversation
// @Description Create a group, channel, or system conversation. The caller becomes its owner.
// @Tags conversations
// @Accept json
// @Produce json
// @Success 201 {object} models.Conversation
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations [post]
func (s *Server) CreateRoom(c *fiber.Ctx) error {
	userID := currentUserID(c)

	var req struct {
		Kind        string `json:"kind"`
		Title       string `json:"title"`
		Description string `json:"description,omitempty"`
		AvatarURL   string `json:"avatar_url,omitempty"`
		MemberIDs   []uint `json:"member_ids,omitempty"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	conv, err := s.roomService.CreateRoom(ctx, service.CreateRoomInput{
		CreatorID:   userID,
		Kind:        models.ConversationKind(req.Kind),
		Title:       req.Title,
		Description: req.Description,
		AvatarURL:   req.AvatarURL,
		MemberIDs:   req.MemberIDs,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

// ListRooms handles GET /api/conversations
// @Summary List my conversations
// @Description List conversations the caller is an active member of, most recent activity first.
// @Tags conversations
// @Produce json
// @Success 200 {array} models.Conversation
// @Security BearerAuth
// @Router /conversations [get]
func (s *Server) ListRooms(c *fiber.Ctx) error {
	userID := currentUserID(c)

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	conversations, err := s.roomService.ListRoomsForUser(ctx, userID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(conversations)
}

// GetRoom handles GET /api/conversations/:id
// @Summary Get a conversation
// @Description Fetch a conversation with its settings and active members. Members only.
// @Tags conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} models.Conversation
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id} [get]
func (s *Server) GetRoom(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	conv, err := s.roomService.GetRoomForUser(ctx, conversationID, userID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(conv)
}

// ResolveDirect handles POST /api/conversations/direct
// @Summary Resolve a direct conversation
// @Description Return the direct conversation between the caller and a peer, creating it if absent.
// @Tags conversations
// @Accept json
// @Produce json
// @Success 200 {object} models.Conversation "existing conversation"
// @Success 201 {object} models.Conversation "newly created"
// @Security BearerAuth
// @Router /conversations/direct [post]
func (s *Server) ResolveDirect(c *fiber.Ctx) error {
	userID := currentUserID(c)

	var req struct {
		PeerUserID uint `json:"peer_user_id"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil || req.PeerUserID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("peer_user_id is required"))
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	conv, created, err := s.resolverService.ResolveDirect(ctx, userID, req.PeerUserID)
	if err != nil {
		return respondErr(c, err)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(conv)
}

// UpdateInfo handles PATCH /api/conversations/:id
func (s *Server) UpdateInfo(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	var req struct {
		Title       *string `json:"title,omitempty"`
		Description *string `json:"description,omitempty"`
		AvatarURL   *string `json:"avatar_url,omitempty"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	conv, err := s.roomService.UpdateInfo(ctx, conversationID, userID, service.UpdateInfoInput{
		Title:       req.Title,
		Description: req.Description,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(conv)
}

// UpdateSettings handles PATCH /api/conversations/:id/settings
// @Summary Update conversation settings
// @Description Patch policy and content settings. Requires the manage-settings permission.
// @Tags conversations
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} models.Conversation
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/settings [patch]
func (s *Server) UpdateSettings(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	var req struct {
		SendPolicy           *models.SendPolicy     `json:"send_policy,omitempty"`
		JoinPolicy           *models.JoinPolicy     `json:"join_policy,omitempty"`
		InfoEditPolicy       *models.InfoEditPolicy `json:"info_edit_policy,omitempty"`
		SubroomPolicy        *models.SubroomPolicy  `json:"subroom_policy,omitempty"`
		MaxSubroomDepth      *uint                  `json:"max_subroom_depth,omitempty"`
		MessageRetentionDays *uint                  `json:"message_retention_days,omitempty"`
		AllowReactions       *bool                  `json:"allow_reactions,omitempty"`
		AllowStickers        *bool                  `json:"allow_stickers,omitempty"`
		AllowAttachments     *bool                  `json:"allow_attachments,omitempty"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	conv, err := s.roomService.UpdateSettings(ctx, conversationID, userID, service.UpdateSettingsInput{
		SendPolicy:           req.SendPolicy,
		JoinPolicy:           req.JoinPolicy,
		InfoEditPolicy:       req.InfoEditPolicy,
		SubroomPolicy:        req.SubroomPolicy,
		MaxSubroomDepth:      req.MaxSubroomDepth,
		MessageRetentionDays: req.MessageRetentionDays,
		AllowReactions:       req.AllowReactions,
		AllowStickers:        req.AllowStickers,
		AllowAttachments:     req.AllowAttachments,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(conv)
}

// ArchiveRoom handles POST /api/conversations/:id/archive
func (s *Server) ArchiveRoom(c *fiber.Ctx) error {
	return s.setRoomState(c, "archive")
}

// LockRoom handles POST /api/conversations/:id/lock
func (s *Server) LockRoom(c *fiber.Ctx) error {
	return s.setRoomState(c, "lock")
}

// UnlockRoom handles POST /api/conversations/:id/unlock
func (s *Server) UnlockRoom(c *fiber.Ctx) error {
	return s.setRoomState(c, "unlock")
}

// setRoomState dispatches the owner-gated state toggles.
func (s *Server) setRoomState(c *fiber.Ctx, op string) error {
	userID := currentUserID(c)
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	switch op {
	case "archive":
		err = s.roomService.SetArchived(ctx, conversationID, userID, true)
	case "lock":
		err = s.roomService.SetLocked(ctx, conversationID, userID, true)
	case "unlock":
		err = s.roomService.SetLocked(ctx, conversationID, userID, false)
	}
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}

// CheckMyPermission handles GET /api/conversations/:id/permissions/:action
// @Summary Evaluate a permission for the caller
// @Description Return the allow/deny decision for an action without performing it.
// @Tags permissions
// @Produce json
// @Param id path string true "Conversation ID"
// @Param action path string true "Action name, e.g. send_message"
// @Success 200 {object} policy.Decision
// @Security BearerAuth
// @Router /conversations/{id}/permissions/{action} [get]
func (s *Server) CheckMyPermission(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := s.parseConversationID(c)
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
