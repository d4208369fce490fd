package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const anonymousActor = "anonymous"

// UserContextMiddleware reads the identity the gateway attached to the request.
// Requests without X-User-ID are rejected; every timer and ledger change is
// attributed to someone.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
			})
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals("user_id", userID)
		c.Locals("user_roles", roles)
		return c.Next()
	}
}

// ActorFrom returns the user the request acts on behalf of.
func ActorFrom(c *fiber.Ctx) string {
	if id, ok := c.Locals("user_id").(string); ok && id != "" {
		return id
	}
	return anonymousActor
}
