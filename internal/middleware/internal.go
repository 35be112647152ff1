package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// InternalTokenHeader carries the shared secret on service-to-service calls.
const InternalTokenHeader = "X-Internal-Token"

// InternalAuthRequired guards the /internal surface called by sibling
// platform services (message store, presence). It accepts only the shared
// token; end-user JWTs are not valid here.
func InternalAuthRequired(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			// Refuse everything rather than run an unauthenticated internal
			// surface when the deployment forgot the token.
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Internal API token is not configured",
			})
		}
		provided := c.Get(InternalTokenHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid internal token",
			})
		}
		return c.Next()
	}
}
