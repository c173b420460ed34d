package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

func RequestLog(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		level := slog.LevelInfo
		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.UserContext(), level, "http request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
			"duration", time.Since(start).String(),
		)
		return err
	}
}
