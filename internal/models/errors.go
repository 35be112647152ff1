package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Error codes returned to clients. Policy denial reasons are a separate
// vocabulary (see the policy package); these identify the failure class of a
// whole operation.
const (
	CodeNotFound                   = "NOT_FOUND"
	CodeConflict                   = "CONFLICT"
	CodeAlreadyActiveMember        = "ALREADY_ACTIVE_MEMBER"
	CodeNotAMember                 = "NOT_A_MEMBER"
	CodeRoomLocked                 = "ROOM_LOCKED"
	CodeInsufficientRole           = "INSUFFICIENT_ROLE"
	CodeLastOwnerViolation         = "LAST_OWNER_VIOLATION"
	CodeDepthLimitExceeded         = "DEPTH_LIMIT_EXCEEDED"
	CodeSubroomDisabled            = "SUBROOM_DISABLED"
	CodeInviteRequired             = "INVITE_REQUIRED"
	CodeStoreUnavailable           = "STORE_UNAVAILABLE"
	CodeResolverInvariantViolation = "RESOLVER_INVARIANT_VIOLATION"
	CodeValidationError            = "VALIDATION_ERROR"
	CodeUnauthorized               = "UNAUTHORIZED"
	CodeForbidden                  = "FORBIDDEN"
	CodeInternalError              = "INTERNAL_ERROR"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error.
type AppError struct {
	Code    string
	Message string
	// Reason is a stable machine-readable policy denial reason (e.g.
	// "insufficient_role"), distinct from the transport-level Code.
	Reason string
	Err    error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message}
}

func NewAlreadyActiveMemberError() *AppError {
	return &AppError{
		Code:    CodeAlreadyActiveMember,
		Message: "User is already an active member of this conversation",
	}
}

func NewNotAMemberError() *AppError {
	return &AppError{
		Code:    CodeNotAMember,
		Message: "User is not an active member of this conversation",
		Reason:  "not_a_member",
	}
}

func NewRoomLockedError() *AppError {
	return &AppError{
		Code:    CodeRoomLocked,
		Message: "Conversation is locked",
		Reason:  "room_locked",
	}
}

func NewInsufficientRoleError(message string) *AppError {
	return &AppError{
		Code:    CodeInsufficientRole,
		Message: message,
		Reason:  "insufficient_role",
	}
}

func NewLastOwnerViolationError() *AppError {
	return &AppError{
		Code:    CodeLastOwnerViolation,
		Message: "Cannot remove or demote the last remaining owner",
	}
}

func NewDepthLimitExceededError(depth, max uint) *AppError {
	return &AppError{
		Code:    CodeDepthLimitExceeded,
		Message: fmt.Sprintf("Thread depth %d exceeds the maximum of %d", depth, max),
	}
}

func NewSubroomDisabledError() *AppError {
	return &AppError{
		Code:    CodeSubroomDisabled,
		Message: "Thread creation is disabled for this conversation",
		Reason:  "subroom_disabled",
	}
}

func NewInviteRequiredError() *AppError {
	return &AppError{
		Code:    CodeInviteRequired,
		Message: "An invite is required to join this conversation",
		Reason:  "invite_required",
	}
}

func NewStoreUnavailableError(err error) *AppError {
	return &AppError{
		Code:    CodeStoreUnavailable,
		Message: "Storage temporarily unavailable, retry with backoff",
		Err:     err,
	}
}

func NewResolverInvariantViolationError(err error) *AppError {
	return &AppError{
		Code:    CodeResolverInvariantViolation,
		Message: "Direct-conversation uniqueness invariant violated by storage",
		Err:     err,
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{Code: CodeValidationError, Message: message}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message}
}

// NewForbiddenError carries a policy denial reason alongside the message.
func NewForbiddenError(message, reason string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message, Reason: reason}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: "Internal server error",
		Err:     err,
	}
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsUniqueViolation reports whether err is a uniqueness-constraint rejection
// from the store. Covers GORM's translated error, raw postgres 23505 from
// pgx, and the sqlite driver's message used in tests.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// RespondWithError creates a standardized error response.
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error:  appErr.Message,
			Code:   appErr.Code,
			Reason: appErr.Reason,
		}
		if appErr.Err != nil {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{Error: err.Error()}
	}

	return c.Status(status).JSON(response)
}
