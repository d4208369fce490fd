package middleware

import (
	"context"
	"strings"

	"poker-league/logger"

	"github.com/gofiber/fiber/v2"
)

// GatewayAuthMiddleware only lets requests through that carry the gateway's
// bearer token. An empty expected token disables the check for local runs.
func GatewayAuthMiddleware(expectedToken string) fiber.Handler {
	log := logger.Named("gateway_auth")
	if expectedToken == "" {
		log.Warn(context.Background(), "gateway token not configured, requests are not authenticated")
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "gateway authentication token missing",
			})
		}

		// Raw tokens are accepted as well as "Bearer <token>".
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token != expectedToken {
			log.Warn(c.UserContext(), "invalid gateway token", logger.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
			})
		}
		return c.Next()
	}
}
