package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/LavaJover/shvark-settlement-service/internal/client"
	"github.com/LavaJover/shvark-settlement-service/internal/config"
	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/audit"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/gateway"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/kafka"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/logger"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/metrics"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/migrate"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/notifier"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/postgres"
	"github.com/LavaJover/shvark-settlement-service/internal/infrastructure/postgres/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

type Dependencies struct {
	Config   *config.SettlementConfig
	Logger   *slog.Logger
	DB       *gorm.DB
	Ledger   domain.LedgerRepository
	Gateway  domain.PaymentGateway
	Platform *client.PlatformClient
	Events   domain.EventPublisher
	Archiver domain.AuditArchiver
	// nil, если Kafka не настроена
	Subscriber domain.SubscriberPort
	Registry   *prometheus.Registry
	Metrics    *metrics.SettlementMetrics

	closers []io.Closer
}

func InitializeDependencies(ctx context.Context, cfg *config.SettlementConfig) (*Dependencies, error) {
	log, logCloser, err := logger.New(cfg.LogConfig)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	slog.SetDefault(log)

	deps := &Dependencies{
		Config:  cfg,
		Logger:  log,
		closers: []io.Closer{logCloser},
	}

	deps.DB = postgres.MustInitDB(cfg)
	if cfg.SettlementDB.MigrateOnStart {
		if err := migrate.RunMigrations(deps.DB, cfg.SettlementDB.MigrationsPath); err != nil {
			deps.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	deps.Ledger = repository.NewDefaultLedgerRepository(deps.DB)

	deps.Gateway = gateway.NewClient(gateway.Config{
		BaseURL:      cfg.Gateway.BaseURL,
		ClientID:     cfg.Gateway.ClientID,
		ClientSecret: cfg.Gateway.ClientSecret,
		Timeout:      cfg.Gateway.Timeout,
		MaxAttempts:  cfg.Gateway.MaxAttempts,
		RetryBackoff: cfg.Gateway.RetryBackoff,
		ReturnURL:    cfg.Gateway.ReturnURL,
		CancelURL:    cfg.Gateway.CancelURL,
	}, &http.Client{Timeout: cfg.Gateway.Timeout}, log.With("component", "gateway"))

	if cfg.PlatformService.BaseURL != "" {
		deps.Platform = client.NewPlatformClient(cfg.PlatformService.BaseURL, cfg.PlatformService.Token, cfg.PlatformService.Timeout)
	} else {
		log.Warn("platform service is not configured, tournament checks are skipped and payouts go to the user id")
	}

	deps.Events = deps.initEvents(cfg)

	if cfg.Audit.Enabled {
		archiver, err := audit.NewS3ArchiverFromConfig(ctx, cfg.Audit)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("audit archiver: %w", err)
		}
		deps.Archiver = archiver
	}

	deps.Registry = prometheus.NewRegistry()
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps.Metrics = metrics.NewSettlementMetrics(deps.Registry)

	return deps, nil
}

// initEvents prefers Kafka and falls back to posting events to the platform.
func (d *Dependencies) initEvents(cfg *config.SettlementConfig) domain.EventPublisher {
	switch {
	case cfg.KafkaService.Enabled():
		pub := kafka.NewDefaultKafkaPublisher(cfg.KafkaService.Brokers)
		d.closers = append(d.closers, pub)
		if cfg.KafkaService.WebhookTopic != "" {
			d.Subscriber = kafka.NewDefaultKafkaSubscriber(cfg.KafkaService.Brokers)
		}
		d.Logger.Info("settlement events go to kafka", "topic", cfg.KafkaService.EventsTopic)
		return kafka.NewSettlementEventPublisher(pub, cfg.KafkaService.EventsTopic)
	case cfg.PlatformService.BaseURL != "":
		url := strings.TrimRight(cfg.PlatformService.BaseURL, "/") + cfg.PlatformService.EventsPath
		d.Logger.Info("settlement events go to platform", "url", url)
		return notifier.NewHTTPEventPublisher(url, cfg.PlatformService.Token, cfg.PlatformService.Timeout)
	}
	d.Logger.Warn("no event sink configured, settlement events are dropped")
	return nil
}

func (d *Dependencies) Close() {
	if d.DB != nil {
		if sqlDB, err := d.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			slog.Error("failed to close dependency", "error", err.Error())
		}
	}
}
