package server

import (
	"github.com/gofiber/fiber/v2"
)

// flagDisableThreadCreation is an operational kill switch for the thread
// write path. When on for a user, thread creation is refused while reads
// keep working.
const flagDisableThreadCreation = "disable_thread_creation"

// GetFeatureFlags returns configured feature flags and evaluated state for current user.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	userID := currentUserID(c)

	if s.featureFlags == nil {
		return c.JSON(fiber.Map{
			"raw":       map[string]string{},
			"evaluated": map[string]bool{},
		})
	}

	return c.JSON(fiber.Map{
		"raw":       s.featureFlags.Raw(),
		"evaluated": s.featureFlags.Snapshot(userID),
	})
}

// killSwitchEngaged writes a 503 and returns true when the named flag is on
// for the caller.
func (s *Server) killSwitchEngaged(c *fiber.Ctx, flag string, userID uint) bool {
	if !s.featureFlags.Enabled(flag, userID) {
		return false
	}
	_ = c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "This operation is temporarily disabled.",
	})
	return true
}
