// middleware/auth.go
package middleware

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware extracts the user identity and the logical block
// height set by the Gateway. Height is the chain's monotonic counter, never a
// wall clock; handlers fall back to the cached chain state when the header is
// absent.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		if userID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID required but missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
			})
		}

		var height int64
		if raw := c.Get("X-Block-Height"); raw != "" {
			h, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || h < 0 {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "X-Block-Height must be a non-negative integer",
				})
			}
			height = h
		}

		// Attach to ctx for handlers
		c.Locals("user_id", userID)
		c.Locals("block_height", height)

		return c.Next()
	}
}
