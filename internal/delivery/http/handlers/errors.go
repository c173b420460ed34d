package handlers

import (
	"errors"
	"log/slog"

	"github.com/LavaJover/shvark-settlement-service/internal/delivery/http/dto/settlement/response"
	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/gofiber/fiber/v2"
)

// statusFor maps the settlement error taxonomy onto HTTP. Validation and
// conflict messages are safe to show; gateway and internal details are not.
func statusFor(err error) (int, string) {
	switch domain.ErrorKind(err) {
	case domain.KindValidation:
		return fiber.StatusBadRequest, err.Error()
	case domain.KindNotFound:
		return fiber.StatusNotFound, err.Error()
	case domain.KindConflict:
		return fiber.StatusConflict, err.Error()
	case domain.KindGatewayRejected:
		return fiber.StatusPaymentRequired, "payment declined"
	case domain.KindGatewayUnavailable:
		return fiber.StatusServiceUnavailable, "temporarily unavailable, retry later"
	}
	return fiber.StatusInternalServerError, "internal error"
}

func writeError(c *fiber.Ctx, err error) error {
	status, message := statusFor(err)
	kind := domain.ErrorKind(err)
	if status >= fiber.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"code", string(kind),
			"error", err.Error(),
		)
	}
	return c.Status(status).JSON(response.ErrorResponse{
		Success: false,
		Error:   message,
		Code:    string(kind),
	})
}

// ErrorHandler renders errors fiber itself produces (unknown route, bad
// method, body too large) in the same envelope as handler errors.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := string(domain.KindInternal)
		switch {
		case fe.Code == fiber.StatusNotFound:
			code = string(domain.KindNotFound)
		case fe.Code < fiber.StatusInternalServerError:
			code = string(domain.KindValidation)
		}
		return c.Status(fe.Code).JSON(response.ErrorResponse{Success: false, Error: fe.Message, Code: code})
	}
	return writeError(c, err)
}
