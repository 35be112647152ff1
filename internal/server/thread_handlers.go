package server

import (
	"parley/internal/models"
	"parley/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateThread handles POST /api/conversations/:id/threads
// @Summary Create a thread
// @Description Create a thread under a message, or return the existing one for that message.
// @Tags threads
// @Accept json
// @Produce json
// @Param id path string true "Parent conversation ID"
// @Success 200 {object} models.ThreadLink "existing thread"
// @Success 201 {object} models.ThreadLink "newly created"
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /conversations/{id}/threads [post]
func (s *Server) CreateThread(c *fiber.Ctx) error {
	userID := currentUserID(c)
	if s.killSwitchEngaged(c, flagDisableThreadCreation, userID) {
		return nil
	}
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	var req struct {
		ParentMessageKey string `json:"parent_message_key"`
		Title            string `json:"title,omitempty"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()
	link, created, err := s.threadService.CreateThread(ctx, service.CreateThreadInput{
		ParentConversationID: conversationID,
		ParentMessageKey:     req.ParentMessageKey,
		CreatorID:            userID,
		Title:                req.Title,
	})
	if err != nil {
		return respondErr(c, err)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(link)
}

// ListThreads handles GET /api/conversations/:id/threads. With a
// message_key query parameter it returns the single thread anchored to that
// message instead.
func (s *Server) ListThreads(c *fiber.Ctx) error {
	userID := currentUserID(c)
	conversationID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	ctx, cancel := s.storeCtx(c)
	defer cancel()

	if messageKey := c.Query("message_key"); messageKey != "" {
		link, err := s.threadService.GetThreadForMessage(ctx, conversationID, userID, messageKey)
		if err != nil {
			return respondErr(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(link)
	}

	p := parsePagination(c, 50)
	links, err := s.threadService.ListThreads(ctx, conversationID, userID, p.Limit, p.Offset)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(links)
}
