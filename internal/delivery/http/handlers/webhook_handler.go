package handlers

import (
	"log/slog"

	"github.com/LavaJover/shvark-settlement-service/internal/delivery/http/dto/settlement/response"
	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/gateway"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/metrics"
	"github.com/LavaJover/shvark-settlement-service/internal/usecase/settlement"
	"github.com/gofiber/fiber/v2"
)

const notificationSourceHTTP = "http"

type WebhookHandler struct {
	uc      settlement.SettlementUsecase
	secret  string
	metrics *metrics.SettlementMetrics
}

func NewWebhookHandler(uc settlement.SettlementUsecase, secret string, settlementMetrics *metrics.SettlementMetrics) *WebhookHandler {
	return &WebhookHandler{
		uc:      uc,
		secret:  secret,
		metrics: settlementMetrics,
	}
}

type webhookAck struct {
	Success bool   `json:"success"`
	Outcome string `json:"outcome"`
}

// HandleGatewayWebhook verifies and applies a provider notification. A 2xx
// tells the provider to stop redelivering, so only unavailability of the
// engine's collaborators produces a 5xx. A conflict means the ledger already
// moved past the notification and is acknowledged as a duplicate.
func (h *WebhookHandler) HandleGatewayWebhook(c *fiber.Ctx) error {
	// fasthttp переиспользует буфер тела после ответа
	body := append([]byte(nil), c.Body()...)

	if !gateway.VerifySignature(h.secret, body, c.Get(gateway.SignatureHeader)) {
		slog.Warn("gateway webhook rejected", "reason", "bad signature", "ip", c.IP())
		h.metrics.RecordNotification(notificationSourceHTTP, domain.NotificationRejected)
		return c.Status(fiber.StatusBadRequest).JSON(response.ErrorResponse{
			Success: false,
			Error:   "invalid signature",
			Code:    string(domain.KindValidation),
		})
	}

	notification, err := gateway.ParseNotification(body)
	if err != nil {
		slog.Warn("gateway webhook rejected", "reason", "malformed", "error", err.Error())
		h.metrics.RecordNotification(notificationSourceHTTP, domain.NotificationRejected)
		return writeError(c, err)
	}

	outcome, err := h.uc.HandleGatewayNotification(c.UserContext(), notification)
	if domain.ErrorKind(err) == domain.KindConflict {
		// состояние уже изменилось, повтор доставки ничего не даст
		slog.Info("gateway webhook settled elsewhere",
			"event_id", notification.EventID,
			"external_id", notification.ExternalID,
			"reason", err.Error(),
		)
		outcome, err = domain.NotificationDuplicate, nil
	}
	if err != nil {
		slog.Error("gateway webhook failed",
			"event_id", notification.EventID,
			"event_type", notification.EventType,
			"external_id", notification.ExternalID,
			"error", err.Error(),
		)
		return writeError(c, err)
	}

	h.metrics.RecordNotification(notificationSourceHTTP, outcome)
	return c.JSON(webhookAck{Success: true, Outcome: string(outcome)})
}
