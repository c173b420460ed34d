package handlers

import (
	"log/slog"
	"time"

	"github.com/LavaJover/shvark-settlement-service/internal/delivery/http/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	Settlement   *SettlementHandler
	Webhook      *WebhookHandler
	ServiceToken string
	Gatherer     prometheus.Gatherer
	Logger       *slog.Logger
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func NewRouter(cfg RouterConfig) *fiber.App {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               "settlement-service",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ErrorHandler:          ErrorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLog(logger))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	// провайдер подписывает тело, сервисный токен тут не нужен
	app.Post("/webhooks/gateway", cfg.Webhook.HandleGatewayWebhook)

	api := app.Group("/api/v1")
	if cfg.ServiceToken != "" {
		api.Use(middleware.GatewayAuth(cfg.ServiceToken))
	} else {
		logger.Warn("service token is not set, API is served without authentication")
	}

	h := cfg.Settlement
	api.Get("/pools", h.ListPools)
	api.Post("/pools", h.CreatePool)
	api.Get("/pools/:id", h.GetPool)
	api.Post("/pools/:id/contributions", h.InitiateContribution)
	api.Get("/pools/:id/contributions", h.ListPoolContributions)
	api.Post("/pools/:id/close", h.ClosePool)
	api.Post("/pools/:id/distribute", h.DistributePrize)
	api.Get("/tournaments/:id/pool", h.GetPoolByTournament)
	api.Post("/contributions/confirm", h.ConfirmContribution)
	api.Get("/contributions/:id", h.GetContribution)
	api.Post("/payouts/:handle/refresh", h.RefreshPayout)
	api.Get("/users/:id/transactions", h.ListUserTransactions)

	return app
}
