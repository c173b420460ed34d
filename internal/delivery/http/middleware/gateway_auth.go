package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/LavaJover/shvark-settlement-service/internal/delivery/http/dto/settlement/response"
	"github.com/gofiber/fiber/v2"
)

const unauthorizedCode = "UNAUTHORIZED"

// GatewayAuth validates the bearer service token the platform API gateway
// attaches to every call.
func GatewayAuth(expectedToken string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			slog.Warn("missing authorization header", "path", c.Path())
			return unauthorized(c, "service token missing")
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			slog.Warn("invalid service token", "path", c.Path(), "ip", c.IP())
			return unauthorized(c, "invalid service token")
		}
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(response.ErrorResponse{
		Success: false,
		Error:   message,
		Code:    unauthorizedCode,
	})
}
