// Package server contains HTTP handlers for the API's endpoints.
package server

import (
	"context"
	"errors"

	"parley/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

const (
	maxPaginationLimit = 100
)

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{
		Limit:  limit,
		Offset: offset,
	}
}

// parseConversationID extracts the :id route parameter as a UUID. On failure
// it writes a 400 JSON response and returns errResponseWritten.
func (s *Server) parseConversationID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid conversation ID"))
		return uuid.Nil, errResponseWritten
	}
	return id, nil
}

// parseUserParam extracts a route parameter as a positive uint user id.
func (s *Server) parseUserParam(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid user ID"))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// currentUserID returns the authenticated user id placed by AuthRequired.
func currentUserID(c *fiber.Ctx) uint {
	if uid, ok := c.Locals("userID").(uint); ok {
		return uid
	}
	return 0
}

// statusForError maps an application error to its HTTP status. Store
// timeouts surface as 503 so callers know to retry with backoff.
func statusForError(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return fiber.StatusServiceUnavailable
	}
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeConflict, models.CodeAlreadyActiveMember, models.CodeLastOwnerViolation,
		models.CodeDepthLimitExceeded:
		return fiber.StatusConflict
	case models.CodeNotAMember, models.CodeInsufficientRole, models.CodeRoomLocked,
		models.CodeSubroomDisabled, models.CodeInviteRequired, models.CodeForbidden:
		return fiber.StatusForbidden
	case models.CodeValidationError:
		return fiber.StatusBadRequest
	case models.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case models.CodeStoreUnavailable, models.CodeResolverInvariantViolation:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// denialToError converts a policy denial reason into the application error
// surfaced on endpoints that gate on a decision themselves.
func denialToError(reason string) error {
	switch reason {
	case "not_a_member":
		return models.NewNotAMemberError()
	case "insufficient_role":
		return models.NewInsufficientRoleError("Your role does not permit this action")
	default:
		return models.NewForbiddenError("Action not permitted", reason)
	}
}

// respondErr writes the standard error envelope for a service-layer error.
func respondErr(c *fiber.Ctx, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = models.NewStoreUnavailableError(err)
	}
	return models.RespondWithError(c, statusForError(err), err)
}
